// Package jobs runs the queue consumer side of the request ledger:
// entries journaled by the gateway are drained into the append-only
// trace table.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gatehouse-io/gatehouse/internal/jobs"
	"github.com/gatehouse-io/gatehouse/internal/ledger"
)

// TraceWriter persists drained ledger entries.
type TraceWriter struct {
	repo    ledger.Repository
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewTraceWriter constructs a TraceWriter.
func NewTraceWriter(repo ledger.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *TraceWriter {
	return &TraceWriter{repo: repo, logger: logger, metrics: metrics}
}

// HandleTrace decodes one journaled entry and appends it. A payload
// that does not decode is dropped rather than retried: the broker will
// never redeliver it in a better shape.
func (w *TraceWriter) HandleTrace(ctx context.Context, t *asynq.Task) error {
	tracker := w.metrics.Track(t.Type())
	var entry ledger.Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		w.logger.Error("decode trace entry", slog.String("type", t.Type()), slog.Any("error", err))
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	if err := w.repo.Insert(ctx, entry); err != nil {
		w.logger.Error("persist trace entry",
			slog.String("trace_id", entry.TraceID),
			slog.String("disposition", string(entry.Disposition)),
			slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}
