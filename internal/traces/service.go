package traces

import (
	"context"
	"fmt"
)

// Repository provides read access to the trace table.
type Repository interface {
	Window(ctx context.Context, filters Filters, offset, limit int) ([]Row, error)
	ByTraceID(ctx context.Context, traceID string) ([]Row, error)
}

// Service coordinates trace history queries.
type Service struct {
	repo Repository
}

// NewService builds a trace history service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// History fetches a filtered page of trace entries, newest first.
func (s *Service) History(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("traces: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	// One extra row decides HasNext without a count query.
	rows, err := s.repo.Window(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	return Result{
		Rows:   rows,
		Paging: PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext},
	}, nil
}

// Timeline returns every entry journaled for one trace id: the
// submitted entry plus, normally, exactly one terminal entry. The two
// arrive on different channels, so either may land first.
func (s *Service) Timeline(ctx context.Context, traceID string) ([]Row, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("traces: repository not configured")
	}
	return s.repo.ByTraceID(ctx, traceID)
}
