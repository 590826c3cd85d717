package traces

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository against PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const traceColumns = `trace_id, occurred_at, source, actor_id, endpoint, disposition, error_code`

// Window fetches one page of filtered entries, newest first.
func (r *PGRepository) Window(ctx context.Context, filters Filters, offset, limit int) ([]Row, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filters.From.IsZero() {
		conds = append(conds, "occurred_at >= "+arg(filters.From))
	}
	if !filters.To.IsZero() {
		conds = append(conds, "occurred_at <= "+arg(filters.To))
	}
	if filters.ActorID != nil {
		conds = append(conds, "actor_id = "+arg(*filters.ActorID))
	}
	if endpoint := strings.TrimSpace(filters.Endpoint); endpoint != "" {
		conds = append(conds, "endpoint = "+arg(endpoint))
	}
	if disposition := strings.TrimSpace(filters.Disposition); disposition != "" {
		conds = append(conds, "disposition = "+arg(disposition))
	}

	query := `SELECT ` + traceColumns + ` FROM request_traces`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY occurred_at DESC OFFSET " + arg(offset) + " LIMIT " + arg(limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// ByTraceID fetches all entries for one trace in journal order.
func (r *PGRepository) ByTraceID(ctx context.Context, traceID string) ([]Row, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+traceColumns+` FROM request_traces WHERE trace_id = $1 ORDER BY occurred_at`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.TraceID, &row.OccurredAt, &row.Source, &row.ActorID, &row.Endpoint, &row.Disposition, &row.ErrorCode); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
