package traces

import (
	"context"
	"testing"
	"time"
)

type stubRepo struct {
	rows       []Row
	lastOffset int
	lastLimit  int
	lastFilter Filters
}

func (s *stubRepo) Window(ctx context.Context, filters Filters, offset, limit int) ([]Row, error) {
	s.lastFilter = filters
	s.lastOffset = offset
	s.lastLimit = limit
	if limit < len(s.rows) {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func (s *stubRepo) ByTraceID(ctx context.Context, traceID string) ([]Row, error) {
	var out []Row
	for _, r := range s.rows {
		if r.TraceID == traceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func mockRow(traceID, disposition string, at string) Row {
	t, _ := time.Parse(time.RFC3339, at)
	return Row{TraceID: traceID, OccurredAt: t, Source: "http", Endpoint: "/widgets", Disposition: disposition}
}

func TestHistoryPaging(t *testing.T) {
	repo := &stubRepo{rows: []Row{
		mockRow("t1", "submitted", "2026-08-10T10:00:00Z"),
		mockRow("t2", "completed", "2026-08-10T09:00:00Z"),
		mockRow("t3", "failed", "2026-08-10T08:00:00Z"),
	}}
	svc := NewService(repo)

	result, err := svc.History(context.Background(), Filters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext {
		t.Fatalf("expected hasNext true")
	}
	if repo.lastLimit != 3 {
		t.Fatalf("expected limit 3, got %d", repo.lastLimit)
	}
	if repo.lastOffset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastOffset)
	}
}

func TestHistoryClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	if _, err := svc.History(context.Background(), Filters{PageSize: 500}); err != nil {
		t.Fatalf("history: %v", err)
	}
	if repo.lastLimit != 51 {
		t.Fatalf("expected clamped limit 51, got %d", repo.lastLimit)
	}

	if _, err := svc.History(context.Background(), Filters{Page: -2}); err != nil {
		t.Fatalf("history: %v", err)
	}
	if repo.lastOffset != 0 {
		t.Fatalf("negative page should start at offset 0, got %d", repo.lastOffset)
	}
}

func TestTimelineCollectsBothEntries(t *testing.T) {
	repo := &stubRepo{rows: []Row{
		mockRow("t1", "submitted", "2026-08-10T10:00:00Z"),
		mockRow("t1", "completed", "2026-08-10T10:00:01Z"),
		mockRow("t2", "submitted", "2026-08-10T09:00:00Z"),
	}}
	svc := NewService(repo)

	rows, err := svc.Timeline(context.Background(), "t1")
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(rows))
	}
	if rows[0].Disposition != "submitted" || rows[1].Disposition != "completed" {
		t.Fatalf("unexpected dispositions: %+v", rows)
	}
}
