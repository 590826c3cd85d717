package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/gatehouse-io/gatehouse/internal/actors"
	"github.com/gatehouse-io/gatehouse/internal/app"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/broadcast"
	broadcasthttp "github.com/gatehouse-io/gatehouse/internal/broadcast/http"
	"github.com/gatehouse-io/gatehouse/internal/gate"
	"github.com/gatehouse-io/gatehouse/internal/ledger"
	"github.com/gatehouse-io/gatehouse/internal/observability"
	"github.com/gatehouse-io/gatehouse/internal/platform/cache"
	"github.com/gatehouse-io/gatehouse/internal/platform/db"
	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/roles"
	"github.com/gatehouse-io/gatehouse/internal/shared"
	"github.com/gatehouse-io/gatehouse/internal/traces"
	traceshttp "github.com/gatehouse-io/gatehouse/internal/traces/http"
	"github.com/gatehouse-io/gatehouse/internal/widgets"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "gatehouse_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	metrics := observability.NewMetrics()

	rbacService := rbac.NewService(rbac.NewPGStore(dbpool))

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, rbacService)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	requestLedger := ledger.New(asynqClient, logger, metrics)

	authGate := gate.New(gate.Config{
		PublicEndpoints: append(app.PublicEndpoints, cfg.PublicEndpoints...),
		Credentials:     app.NewCredentialAdapter(sessionManager, authService),
		Permissions:     rbacService,
		Logger:          logger,
	})
	mediator := &gate.Middleware{
		Gate:    authGate,
		Ledger:  requestLedger,
		Metrics: metrics,
		Logger:  logger,
	}

	broadcaster := broadcast.New(rbacService, logger, metrics)
	publisher := broadcast.NewPublisher(redisClient, logger)
	eventsHandler := broadcasthttp.NewHandler(broadcaster, logger)

	rolesService := roles.NewService(roles.NewRepository(dbpool))
	rolesHandler := roles.NewHandler(logger, rolesService, mediator)

	actorsService := actors.NewService(actors.NewRepository(dbpool))
	actorsHandler := actors.NewHandler(logger, actorsService, mediator)

	widgetsService := widgets.NewService(widgets.NewRepository(dbpool), publisher)
	widgetsHandler := widgets.NewHandler(logger, widgetsService, mediator)

	tracesService := traces.NewService(traces.NewRepository(dbpool))
	tracesHandler := traceshttp.NewHandler(logger, tracesService, mediator)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Mediator:       mediator,
		AuthHandler:    authHandler,
		RolesHandler:   rolesHandler,
		ActorsHandler:  actorsHandler,
		TracesHandler:  tracesHandler,
		WidgetsHandler: widgetsHandler,
		EventsHandler:  eventsHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		// Consumes the redis change channel and fans events out to
		// SSE subscribers.
		return broadcaster.Run(groupCtx, redisClient)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("stopped")
}
