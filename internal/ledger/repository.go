package ledger

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists consumed ledger entries. The worker drains the
// queues into an append-only table; entries are never updated in place.
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
}

// PGRepository implements Repository against PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert appends one trace entry.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) error {
	const query = `
		INSERT INTO request_traces (trace_id, occurred_at, source, actor_id, endpoint, disposition, error_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		entry.TraceID, entry.Timestamp, entry.Source, entry.ActorID, entry.Endpoint, string(entry.Disposition), entry.ErrorCode)
	return err
}

var _ Repository = (*PGRepository)(nil)
