package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gatehouse-io/gatehouse/internal/ledger"
)

// Worker wraps the Asynq server draining the ledger queues.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Traces    *TraceWriter
	Handlers  []TaskHandler
}

// NewWorker constructs a Worker instance. The three ledger queues get
// equal weight: cross-channel arrival order carries no meaning, only
// per-channel order does, and asynq preserves that per queue.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Traces == nil {
		return nil, errors.New("jobs: trace writer is required")
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			ledger.QueueSubmitted: 1,
			ledger.QueueCompleted: 1,
			ledger.QueueFailed:    1,
		},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(ledger.TaskTraceSubmitted, cfg.Traces.HandleTrace)
	mux.HandleFunc(ledger.TaskTraceCompleted, cfg.Traces.HandleTrace)
	mux.HandleFunc(ledger.TaskTraceFailed, cfg.Traces.HandleTrace)
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
