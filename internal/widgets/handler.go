package widgets

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-io/gatehouse/internal/gate"
	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/rbac"
)

// Handler manages widget endpoints.
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

// MountRoutes registers widget routes. Collection routes gate on the
// narrowest scope so any read grant passes; the listing then shrinks
// to the caller's broadest granted window. Single-record routes load
// first and authorize against the record's actual ownership.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mediator.Require("widget", "read", rbac.ScopeOwn))
		r.Get("/", h.listWidgets)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mediator.Require("widget", "create", rbac.ScopeOwn))
		r.Post("/", h.createWidget)
	})
	r.Get("/{widgetID}", h.getWidget)
	r.Put("/{widgetID}", h.updateWidget)
	r.Delete("/{widgetID}", h.deleteWidget)
}

type widgetRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=128"`
	Notes string `json:"notes" validate:"max=2048"`
}

type widgetResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Notes     string `json:"notes"`
	OwnerID   *int64 `json:"owner_actor_id,omitempty"`
	GroupID   *int64 `json:"owner_group_id,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toResponse(w *Widget) widgetResponse {
	return widgetResponse{
		ID:        w.ID,
		Name:      w.Name,
		Notes:     w.Notes,
		OwnerID:   w.OwnerID,
		GroupID:   w.GroupID,
		CreatedAt: w.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: w.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) listWidgets(w http.ResponseWriter, r *http.Request) {
	decision, _ := gate.DecisionFromContext(r.Context())
	list, err := h.service.List(r.Context(), decision.Actor, decision.Permissions)
	if err != nil {
		h.logger.Error("list widgets", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]widgetResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createWidget(w http.ResponseWriter, r *http.Request) {
	decision, _ := gate.DecisionFromContext(r.Context())
	var req widgetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	widget, err := h.service.Create(r.Context(), decision.Actor, req.Name, req.Notes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(widget))
}

func (h *Handler) getWidget(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.loadAndAuthorize(w, r, "read")
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(widget))
}

func (h *Handler) updateWidget(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.loadAndAuthorize(w, r, "update")
	if !ok {
		return
	}
	var req widgetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.Update(r.Context(), widget, req.Name, req.Notes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) deleteWidget(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.loadAndAuthorize(w, r, "delete")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), widget); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadAndAuthorize fetches the target widget and runs the gate against
// its ownership. A miss renders 404 before authorization: record ids
// are not secret, but a denied caller learns nothing else.
func (h *Handler) loadAndAuthorize(w http.ResponseWriter, r *http.Request, action string) (*Widget, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "widgetID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid widget id")
		return nil, false
	}
	widget, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	decision := h.mediator.Authorize(r, "widget", action, widget)
	if !decision.Granted {
		h.mediator.Deny(w, r, decision)
		return nil, false
	}
	return widget, true
}
