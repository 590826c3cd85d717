package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-io/gatehouse/internal/gate"
	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		validator:      validator.New(),
	}
}

// MountPublicRoutes registers the unauthenticated auth routes.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/register", h.handleRegister)
}

// MountProtectedRoutes registers routes that require an identified
// caller: logout and delegated token management.
func (h *Handler) MountProtectedRoutes(r chi.Router) {
	r.Post("/logout", h.handleLogout)
	r.Get("/tokens", h.listTokens)
	r.Post("/tokens", h.issueToken)
	r.Delete("/tokens/{tokenID}", h.revokeToken)
}

type credentialsRequest struct {
	Handle   string `json:"handle" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8"`
}

type issueTokenRequest struct {
	Label       string   `json:"label" validate:"required,max=128"`
	Permissions []string `json:"permissions" validate:"required,min=1,dive,required"`
	TTLSeconds  int64    `json:"ttl_seconds" validate:"required,gt=0"`
}

type tokenResponse struct {
	ID          int64    `json:"id"`
	Label       string   `json:"label"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expires_at"`
	Revoked     bool     `json:"revoked"`
	Secret      string   `json:"secret,omitempty"`
}

func toTokenResponse(t *Token, secret string) tokenResponse {
	perms := make([]string, 0, len(t.Permissions))
	for _, p := range t.Permissions {
		perms = append(perms, p.String())
	}
	return tokenResponse{
		ID:          t.ID,
		Label:       t.Label,
		Permissions: perms,
		ExpiresAt:   t.ExpiresAt.UTC().Format(time.RFC3339),
		Revoked:     t.Revoked(),
		Secret:      secret,
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Authenticate(r.Context(), req.Handle, req.Password)
	if err != nil {
		// Unknown handle, wrong password, and disabled account all
		// collapse into one answer.
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "session unavailable")
		return
	}
	sess.SetActor(account.ID)
	if err := h.service.RegisterSession(r.Context(), sess.ID, account.ID, time.Now().Add(h.sessionManager.TTL()), r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"actor_id": account.ID,
		"handle":   account.Handle,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Register(r.Context(), req.Handle, req.Password)
	if err != nil {
		if errors.Is(err, ErrHandleTaken) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "handle already registered")
			return
		}
		h.logger.Error("register account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"actor_id": account.ID,
		"handle":   account.Handle,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil && sess.ID != "" {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTokens(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	tokens, err := h.service.ListTokens(r.Context(), actor.ID)
	if err != nil {
		h.logger.Error("list tokens", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, toTokenResponse(t, ""))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	var req issueTokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	issued, err := h.service.IssueToken(r.Context(), actor, req.Label, req.Permissions, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		switch {
		case errors.Is(err, ErrExpiryRequired), errors.Is(err, rbac.ErrMalformedPermission):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, ErrSubsetExceedsIssuer):
			httpx.RespondCode(w, shared.CodePermissionDenied, err.Error(), shared.TraceIDFromContext(r.Context()))
		default:
			h.logger.Error("issue token", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	// The plaintext secret appears in this response and nowhere else.
	httpx.JSON(w, http.StatusCreated, toTokenResponse(issued.Token, issued.Secret))
}

func (h *Handler) revokeToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "tokenID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid token id")
		return
	}
	if err := h.service.RevokeToken(r.Context(), id, actor.ID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "token not found")
			return
		}
		h.logger.Error("revoke token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func callerActor(r *http.Request) (*rbac.Actor, bool) {
	decision, ok := gate.DecisionFromContext(r.Context())
	if !ok || decision.Actor == nil {
		return nil, false
	}
	return decision.Actor, true
}
