// Package traceshttp exposes the trace history over HTTP for
// operational review.
package traceshttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-io/gatehouse/internal/gate"
	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/traces"
)

// Handler serves trace history queries.
type Handler struct {
	logger   *slog.Logger
	service  *traces.Service
	mediator *gate.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *traces.Service, mediator *gate.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mediator: mediator}
}

// MountRoutes registers trace history routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mediator.Require("trace", "read", rbac.ScopeAll))
		r.Get("/", h.history)
		r.Get("/{traceID}", h.timeline)
	})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.History(r.Context(), filters)
	if err != nil {
		h.logger.Error("trace history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Timeline(r.Context(), chi.URLParam(r, "traceID"))
	if err != nil {
		h.logger.Error("trace timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if len(rows) == 0 {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "trace not found")
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func parseFilters(r *http.Request) (traces.Filters, error) {
	q := r.URL.Query()
	var filters traces.Filters
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, err
		}
		filters.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, err
		}
		filters.To = t
	}
	if v := q.Get("actor_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filters, err
		}
		filters.ActorID = &id
	}
	filters.Endpoint = q.Get("endpoint")
	filters.Disposition = q.Get("disposition")
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return filters, err
		}
		filters.Page = page
	}
	if v := q.Get("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return filters, err
		}
		filters.PageSize = size
	}
	return filters, nil
}
