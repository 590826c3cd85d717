package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gatehouse-io/gatehouse/internal/actors"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	broadcasthttp "github.com/gatehouse-io/gatehouse/internal/broadcast/http"
	"github.com/gatehouse-io/gatehouse/internal/gate"
	"github.com/gatehouse-io/gatehouse/internal/observability"
	"github.com/gatehouse-io/gatehouse/internal/roles"
	"github.com/gatehouse-io/gatehouse/internal/shared"
	traceshttp "github.com/gatehouse-io/gatehouse/internal/traces/http"
	"github.com/gatehouse-io/gatehouse/internal/widgets"
)

// PublicEndpoints is the built-in allow-list: paths the gate admits
// without credentials. Deployments may extend it via configuration but
// never shrink it below the authentication entry points.
var PublicEndpoints = []string{
	"/auth/login",
	"/auth/register",
	"/healthz",
	"/metrics",
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Mediator       *gate.Middleware
	AuthHandler    *auth.Handler
	RolesHandler   *roles.Handler
	ActorsHandler  *actors.Handler
	TracesHandler  *traceshttp.Handler
	WidgetsHandler *widgets.Handler
	EventsHandler  *broadcasthttp.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with Gatehouse defaults. Every
// route except health and metrics runs inside the mediation pipeline:
// traced, gated, and journaled.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(params.Mediator.Trace(gate.SourceHTTP))

		r.Route("/auth", func(r chi.Router) {
			params.AuthHandler.MountPublicRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(params.Mediator.RequireIdentity())
				params.AuthHandler.MountProtectedRoutes(r)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Route("/roles", params.RolesHandler.MountRoutes)
			r.Route("/actors", params.ActorsHandler.MountRoutes)
			if params.TracesHandler != nil {
				r.Route("/traces", params.TracesHandler.MountRoutes)
			}
		})

		r.Route("/widgets", params.WidgetsHandler.MountRoutes)
	})

	if params.EventsHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(params.Mediator.Trace(gate.SourceStream))
			r.Use(params.Mediator.RequireIdentity())
			r.Get("/events", params.EventsHandler.Stream)
		})
	}

	return r
}
