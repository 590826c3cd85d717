package perf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/gatehouse-io/gatehouse/internal/jobs"
	"github.com/gatehouse-io/gatehouse/internal/ledger"
	"github.com/gatehouse-io/gatehouse/jobs"
)

type countingRepo struct {
	mu       sync.Mutex
	inserted int
}

func (r *countingRepo) Insert(context.Context, ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted++
	return nil
}

func traceTask(t testing.TB, i int) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(ledger.Entry{
		TraceID:     fmt.Sprintf("trace-%d", i),
		Timestamp:   time.Now().UTC(),
		Source:      "http",
		Endpoint:    "/widgets",
		Disposition: ledger.DispositionCompleted,
	})
	if err != nil {
		t.Fatalf("marshal entry: %v", err)
	}
	return asynq.NewTask(ledger.TaskTraceCompleted, payload)
}

// TestTraceWriterThroughputAndReliability drains a burst of journaled
// entries through the writer and checks the recorded success ratio and
// per-task duration against the operational budget.
func TestTraceWriterThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	repo := &countingRepo{}
	writer := jobs.NewTraceWriter(repo, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics)

	ctx := context.Background()
	const good = 200
	for i := 0; i < good; i++ {
		if err := writer.HandleTrace(ctx, traceTask(t, i)); err != nil {
			t.Fatalf("handle trace %d: %v", i, err)
		}
	}

	// Undecodable payloads are dropped, not retried, and counted as
	// failures.
	for i := 0; i < 3; i++ {
		err := writer.HandleTrace(ctx, asynq.NewTask(ledger.TaskTraceCompleted, []byte("not json")))
		if !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("expected SkipRetry for bad payload, got %v", err)
		}
	}

	if repo.inserted != good {
		t.Fatalf("expected %d inserts, got %d", good, repo.inserted)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	success := metricValue(t, families, "gatehouse_jobs_total", map[string]string{"task": ledger.TaskTraceCompleted, "status": "success"})
	failure := metricValue(t, families, "gatehouse_jobs_total", map[string]string{"task": ledger.TaskTraceCompleted, "status": "failure"})
	if success != good || failure != 3 {
		t.Fatalf("unexpected counts: success=%f failure=%f", success, failure)
	}
	if ratio := success / (success + failure); ratio < 0.95 {
		t.Fatalf("trace writer success ratio too low: %f", ratio)
	}

	if mean := histogramMean(t, families, "gatehouse_job_duration_seconds", map[string]string{"task": ledger.TaskTraceCompleted}); mean > 0.1 {
		t.Fatalf("trace write duration above budget: %f", mean)
	}
}

func BenchmarkTraceWriterHandle(b *testing.B) {
	writer := jobs.NewTraceWriter(&countingRepo{}, slog.New(slog.NewTextHandler(io.Discard, nil)), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task := traceTask(b, 0)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := writer.HandleTrace(ctx, task); err != nil {
			b.Fatalf("handle trace: %v", err)
		}
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) && fam.GetType() == dto.MetricType_COUNTER {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	have := make(map[string]string, len(metric.GetLabel()))
	for _, pair := range metric.GetLabel() {
		have[pair.GetName()] = pair.GetValue()
	}
	for k, v := range labels {
		if have[k] != v {
			return false
		}
	}
	return true
}
