package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
)

// PGRepository implements RepositoryPort using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListRoles returns all roles ordered by name, permissions included.
func (r *PGRepository) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	const query = `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var role rbac.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range roles {
		perms, err := r.rolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	const query = `SELECT id, name, description, created_at, updated_at FROM roles WHERE id = $1`
	var role rbac.Role
	err := r.pool.QueryRow(ctx, query, id).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, rbac.ErrNotFound
		}
		return rbac.Role{}, err
	}
	perms, err := r.rolePermissions(ctx, id)
	if err != nil {
		return rbac.Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

// CreateRole inserts a new role.
func (r *PGRepository) CreateRole(ctx context.Context, name, description string) (rbac.Role, error) {
	const query = `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, name, description, created_at, updated_at`
	var role rbac.Role
	err := r.pool.QueryRow(ctx, query, name, description).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// UpdateRole updates an existing role.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, name, description string) (rbac.Role, error) {
	const query = `
		UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, created_at, updated_at`
	var role rbac.Role
	err := r.pool.QueryRow(ctx, query, id, name, description).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, rbac.ErrNotFound
		}
		return rbac.Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role by ID.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

// CountActorsWithRole reports how many actors still hold the role.
func (r *PGRepository) CountActorsWithRole(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM actor_roles WHERE role_id = $1`, id).Scan(&count)
	return count, err
}

// ReplacePermissions swaps the role's permission set in one transaction.
func (r *PGRepository) ReplacePermissions(ctx context.Context, roleID int64, perms []rbac.Permission) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	for _, p := range perms {
		var permID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO permissions (resource, action, scope)
			VALUES ($1, $2, $3)
			ON CONFLICT (resource, action, scope) DO UPDATE SET resource = EXCLUDED.resource
			RETURNING id`,
			p.Resource, p.Action, string(p.Scope)).Scan(&permID)
		if err != nil {
			return fmt.Errorf("roles: upsert permission %s: %w", p, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, roleID, permID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// AssignRole links an actor to a role.
func (r *PGRepository) AssignRole(ctx context.Context, actorID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO actor_roles (actor_id, role_id, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING`, actorID, roleID)
	return err
}

// RemoveRole unlinks an actor from a role.
func (r *PGRepository) RemoveRole(ctx context.Context, actorID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM actor_roles WHERE actor_id = $1 AND role_id = $2`, actorID, roleID)
	return err
}

func (r *PGRepository) rolePermissions(ctx context.Context, roleID int64) ([]rbac.Permission, error) {
	const query = `
		SELECT p.resource, p.action, p.scope
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.resource, p.action, p.scope`
	rows, err := r.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []rbac.Permission
	for rows.Next() {
		var resource, action, scope string
		if err := rows.Scan(&resource, &action, &scope); err != nil {
			return nil, err
		}
		parsed, err := rbac.ParseScope(scope)
		if err != nil {
			return nil, err
		}
		perms = append(perms, rbac.Permission{Resource: resource, Action: action, Scope: parsed})
	}
	return perms, rows.Err()
}

var _ RepositoryPort = (*PGRepository)(nil)
