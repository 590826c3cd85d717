package actors

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActors returns all actors.
func (r *Repository) ListActors(ctx context.Context) ([]rbac.Actor, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, handle, group_id, is_active, is_locked FROM actors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actors []rbac.Actor
	for rows.Next() {
		var a rbac.Actor
		if err := rows.Scan(&a.ID, &a.Handle, &a.GroupID, &a.Active, &a.Locked); err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actors, nil
}

// GetActor fetches one actor by id.
func (r *Repository) GetActor(ctx context.Context, id int64) (rbac.Actor, error) {
	var a rbac.Actor
	err := r.pool.QueryRow(ctx,
		`SELECT id, handle, group_id, is_active, is_locked FROM actors WHERE id = $1`, id,
	).Scan(&a.ID, &a.Handle, &a.GroupID, &a.Active, &a.Locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.Actor{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Actor{}, err
	}
	return a, nil
}

// UpdateFlags sets the active and locked flags.
func (r *Repository) UpdateFlags(ctx context.Context, id int64, active, locked bool) (rbac.Actor, error) {
	var a rbac.Actor
	err := r.pool.QueryRow(ctx,
		`UPDATE actors SET is_active = $2, is_locked = $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING id, handle, group_id, is_active, is_locked`, id, active, locked,
	).Scan(&a.ID, &a.Handle, &a.GroupID, &a.Active, &a.Locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.Actor{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Actor{}, err
	}
	return a, nil
}

// UpdateGroup sets or clears the actor's group membership.
func (r *Repository) UpdateGroup(ctx context.Context, id int64, groupID *int64) (rbac.Actor, error) {
	var a rbac.Actor
	err := r.pool.QueryRow(ctx,
		`UPDATE actors SET group_id = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING id, handle, group_id, is_active, is_locked`, id, groupID,
	).Scan(&a.ID, &a.Handle, &a.GroupID, &a.Active, &a.Locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.Actor{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Actor{}, err
	}
	return a, nil
}

// ActorRoles lists the roles assigned to an actor, without their
// permission sets.
func (r *Repository) ActorRoles(ctx context.Context, id int64) ([]rbac.Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name, r.description
		 FROM roles r
		 JOIN actor_roles ar ON ar.role_id = r.id
		 WHERE ar.actor_id = $1
		 ORDER BY r.name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []rbac.Role
	for rows.Next() {
		var role rbac.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
