// Package ledger journals every request's lifecycle onto ordered queues
// for operational visibility. Anonymous and rejected requests are traced
// identically to successful ones.
package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/gatehouse-io/gatehouse/internal/observability"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Enqueuer is the slice of asynq.Client the ledger uses. Kept as an
// interface so tests can journal in memory.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Ledger assigns trace identifiers and journals lifecycle entries.
// Enqueues are fire-and-forget with one bounded retry: a broker outage
// is logged, never surfaced to the request path. Observability must not
// become an availability dependency.
type Ledger struct {
	client  Enqueuer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New constructs a Ledger. Metrics may be nil.
func New(client Enqueuer, logger *slog.Logger, metrics *observability.Metrics) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{client: client, logger: logger, metrics: metrics}
}

// Begin mints a trace for an inbound request and journals the submitted
// entry. It is called at ingress, before authorization, so every
// request is traced whatever its fate.
func (l *Ledger) Begin(ctx context.Context, source, endpoint string, actorID *int64) Trace {
	trace := Trace{
		ID:          uuid.NewString(),
		Source:      source,
		Endpoint:    endpoint,
		ActorID:     actorID,
		SubmittedAt: time.Now().UTC(),
	}
	l.enqueue(ctx, QueueSubmitted, TaskTraceSubmitted, Entry{
		TraceID:     trace.ID,
		Timestamp:   trace.SubmittedAt,
		Source:      source,
		ActorID:     actorID,
		Endpoint:    endpoint,
		Disposition: DispositionSubmitted,
	})
	return trace
}

// RecordOutcome journals the terminal disposition for a trace onto the
// completed or failed channel. errorCode is empty for completions.
func (l *Ledger) RecordOutcome(ctx context.Context, trace Trace, disposition Disposition, errorCode string) {
	queue, taskType := QueueCompleted, TaskTraceCompleted
	if disposition == DispositionFailed {
		queue, taskType = QueueFailed, TaskTraceFailed
	}
	entry := Entry{
		TraceID:     trace.ID,
		Timestamp:   time.Now().UTC(),
		Source:      trace.Source,
		ActorID:     trace.ActorID,
		Endpoint:    trace.Endpoint,
		Disposition: disposition,
	}
	if errorCode != "" {
		entry.ErrorCode = &errorCode
	}
	l.enqueue(ctx, queue, taskType, entry)
}

// SetActor rebinds the trace to a resolved actor. Ingress journals
// before credential resolution, so the submitted entry may be anonymous
// while the terminal one is identified.
func (t *Trace) SetActor(actorID int64) {
	t.ActorID = &actorID
}

func (l *Ledger) enqueue(ctx context.Context, queue, taskType string, entry Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error("ledger marshal entry", slog.String("trace_id", entry.TraceID), slog.Any("error", err))
		return
	}
	task := asynq.NewTask(taskType, payload)

	// One immediate retry covers transient broker hiccups; anything
	// longer is an outage the request must not wait out.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if _, lastErr = l.client.EnqueueContext(ctx, task, asynq.Queue(queue)); lastErr == nil {
			l.metrics.LedgerEnqueue(queue, true)
			return
		}
	}
	l.metrics.LedgerEnqueue(queue, false)
	l.logger.Error("ledger enqueue failed",
		slog.String("code", string(shared.CodeLedgerUnavailable)),
		slog.String("queue", queue),
		slog.String("trace_id", entry.TraceID),
		slog.Any("error", lastErr),
	)
}
