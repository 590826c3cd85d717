package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// Store is the read side the authorization core depends on. It is
// backed by an external, concurrently-read credential/role store; the
// core only ever reads current state at decision time.
type Store interface {
	FindActor(ctx context.Context, id int64) (*Actor, error)
	EffectivePermissions(ctx context.Context, actorID int64) ([]Permission, error)
}

// Service resolves actors and their derived permission sets.
type Service struct {
	store Store
}

// NewService constructs a Service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Actor fetches the actor by id.
func (s *Service) Actor(ctx context.Context, id int64) (*Actor, error) {
	return s.store.FindActor(ctx, id)
}

// EffectivePermissions returns the union of all permissions across the
// actor's roles. The set is derived fresh on every call; a role edit
// becomes visible to new checks as soon as the store makes it visible.
func (s *Service) EffectivePermissions(ctx context.Context, actorID int64) ([]Permission, error) {
	return s.store.EffectivePermissions(ctx, actorID)
}

// PGStore implements Store against PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL-backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// FindActor fetches an actor row by id.
func (st *PGStore) FindActor(ctx context.Context, id int64) (*Actor, error) {
	const query = `SELECT id, handle, group_id, is_active, is_locked FROM actors WHERE id = $1`
	var a Actor
	if err := st.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.Handle, &a.GroupID, &a.Active, &a.Locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// EffectivePermissions unions permission triples across the actor's roles.
func (st *PGStore) EffectivePermissions(ctx context.Context, actorID int64) ([]Permission, error) {
	const query = `
		SELECT DISTINCT p.resource, p.action, p.scope
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN actor_roles ar ON ar.role_id = rp.role_id
		WHERE ar.actor_id = $1`
	rows, err := st.pool.Query(ctx, query, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var resource, action, scope string
		if err := rows.Scan(&resource, &action, &scope); err != nil {
			return nil, err
		}
		parsed, err := ParseScope(scope)
		if err != nil {
			return nil, fmt.Errorf("rbac: stored permission for actor %d: %w", actorID, err)
		}
		perms = append(perms, Permission{Resource: resource, Action: action, Scope: parsed})
	}
	return perms, rows.Err()
}

var _ Store = (*PGStore)(nil)
