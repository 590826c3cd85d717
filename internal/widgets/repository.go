package widgets

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// ListFilter narrows a listing to what the caller's broadest granted
// scope allows. Exactly one branch applies per query.
type ListFilter struct {
	Scope   rbac.Scope
	ActorID int64
	GroupID *int64
}

// RepositoryPort defines data access methods for widgets.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Widget, error)
	Get(ctx context.Context, id int64) (*Widget, error)
	Create(ctx context.Context, widget *Widget) (*Widget, error)
	Update(ctx context.Context, widget *Widget) (*Widget, error)
	Delete(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const widgetColumns = `id, name, notes, owner_actor_id, owner_group_id, created_at, updated_at`

// List returns widgets visible under the filter's scope.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Widget, error) {
	query := `SELECT ` + widgetColumns + ` FROM widgets`
	var args []any
	switch filter.Scope {
	case rbac.ScopeOwn:
		query += ` WHERE owner_actor_id = $1`
		args = append(args, filter.ActorID)
	case rbac.ScopeGroup:
		if filter.GroupID == nil {
			// Group scope without a group collapses to own.
			query += ` WHERE owner_actor_id = $1`
			args = append(args, filter.ActorID)
		} else {
			query += ` WHERE owner_actor_id = $1 OR owner_group_id = $2`
			args = append(args, filter.ActorID, *filter.GroupID)
		}
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var widgets []Widget
	for rows.Next() {
		var w Widget
		if err := rows.Scan(&w.ID, &w.Name, &w.Notes, &w.OwnerID, &w.GroupID, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		widgets = append(widgets, w)
	}
	return widgets, rows.Err()
}

// Get fetches one widget by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Widget, error) {
	var w Widget
	err := r.pool.QueryRow(ctx, `SELECT `+widgetColumns+` FROM widgets WHERE id = $1`, id).
		Scan(&w.ID, &w.Name, &w.Notes, &w.OwnerID, &w.GroupID, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts a widget.
func (r *Repository) Create(ctx context.Context, widget *Widget) (*Widget, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO widgets (name, notes, owner_actor_id, owner_group_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 RETURNING `+widgetColumns,
		widget.Name, widget.Notes, widget.OwnerID, widget.GroupID,
	).Scan(&widget.ID, &widget.Name, &widget.Notes, &widget.OwnerID, &widget.GroupID, &widget.CreatedAt, &widget.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return widget, nil
}

// Update rewrites the mutable fields.
func (r *Repository) Update(ctx context.Context, widget *Widget) (*Widget, error) {
	err := r.pool.QueryRow(ctx,
		`UPDATE widgets SET name = $2, notes = $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+widgetColumns,
		widget.ID, widget.Name, widget.Notes,
	).Scan(&widget.ID, &widget.Name, &widget.Notes, &widget.OwnerID, &widget.GroupID, &widget.CreatedAt, &widget.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return widget, nil
}

// Delete removes a widget.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM widgets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
