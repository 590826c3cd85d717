package actors

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-io/gatehouse/internal/gate"
	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/rbac"
)

// Handler manages actor administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mediator *gate.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mediator *gate.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		mediator: mediator,
		validate: validator.New(),
	}
}

// MountRoutes registers actor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mediator.Require("actor", "read", rbac.ScopeAll))
		r.Get("/", h.listActors)
		r.Get("/{actorID}", h.getActor)
		r.Get("/{actorID}/roles", h.actorRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mediator.Require("actor", "write", rbac.ScopeAll))
		r.Put("/{actorID}/active", h.setActive)
		r.Put("/{actorID}/locked", h.setLocked)
		r.Put("/{actorID}/group", h.setGroup)
	})
}

type flagRequest struct {
	Value *bool `json:"value" validate:"required"`
}

type groupRequest struct {
	GroupID *int64 `json:"group_id"`
}

type actorResponse struct {
	ID      int64  `json:"id"`
	Handle  string `json:"handle"`
	GroupID *int64 `json:"group_id,omitempty"`
	Active  bool   `json:"active"`
	Locked  bool   `json:"locked"`
}

func toResponse(a rbac.Actor) actorResponse {
	return actorResponse{ID: a.ID, Handle: a.Handle, GroupID: a.GroupID, Active: a.Active, Locked: a.Locked}
}

func (h *Handler) listActors(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListActors(r.Context())
	if err != nil {
		h.logger.Error("list actors", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]actorResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getActor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid actor id")
		return
	}
	actor, err := h.service.GetActor(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(actor))
}

func (h *Handler) actorRoles(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid actor id")
		return
	}
	roles, err := h.service.ActorRoles(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	type roleResponse struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse{ID: role.ID, Name: role.Name})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, h.service.SetActive)
}

func (h *Handler) setLocked(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, h.service.SetLocked)
}

func (h *Handler) setFlag(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id int64, v bool) (rbac.Actor, error)) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid actor id")
		return
	}
	var req flagRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, err := apply(r.Context(), id, *req.Value)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(actor))
}

func (h *Handler) setGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid actor id")
		return
	}
	var req groupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	actor, err := h.service.SetGroup(r.Context(), id, req.GroupID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(actor))
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, rbac.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "actor not found")
		return
	}
	h.logger.Error("actors service", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "actorID"), 10, 64)
}
