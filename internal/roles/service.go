// Package roles manages the role and permission catalogue: the write
// side of the authorization store. Malformed permission strings are
// rejected here, at save time, so the matcher can assume well-formed
// triples on every request.
package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
)

var (
	// ErrRoleInUse blocks deletion while any actor still references
	// the role; reassignment must happen first.
	ErrRoleInUse = errors.New("roles: role is assigned to actors")
	// ErrDuplicatePermission rejects an identical triple twice within
	// one role.
	ErrDuplicatePermission = errors.New("roles: duplicate permission in role")
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
	CreateRole(ctx context.Context, name, description string) (rbac.Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (rbac.Role, error)
	DeleteRole(ctx context.Context, id int64) error
	CountActorsWithRole(ctx context.Context, id int64) (int64, error)
	ReplacePermissions(ctx context.Context, roleID int64, perms []rbac.Permission) error
	AssignRole(ctx context.Context, actorID, roleID int64) error
	RemoveRole(ctx context.Context, actorID, roleID int64) error
}

// Service handles role business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles with their permission sets.
func (s *Service) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches one role.
func (s *Service) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a role and its validated permission set.
func (s *Service) CreateRole(ctx context.Context, name, description string, permissions []string) (rbac.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return rbac.Role{}, errors.New("roles: role name required")
	}
	perms, err := validatePermissions(permissions)
	if err != nil {
		return rbac.Role{}, err
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return rbac.Role{}, err
	}
	if err := s.repo.ReplacePermissions(ctx, role.ID, perms); err != nil {
		return rbac.Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

// UpdateRole updates role metadata.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (rbac.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return rbac.Role{}, errors.New("roles: role name required")
	}
	return s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
}

// SetPermissions replaces the role's permission set after validating
// every triple. The permission change becomes visible to new requests
// as soon as the store makes it visible; in-flight requests keep the
// set they resolved.
func (s *Service) SetPermissions(ctx context.Context, roleID int64, permissions []string) error {
	perms, err := validatePermissions(permissions)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	return s.repo.ReplacePermissions(ctx, roleID, perms)
}

// DeleteRole removes a role unless any actor still holds it.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	count, err := s.repo.CountActorsWithRole(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %d actors", ErrRoleInUse, count)
	}
	return s.repo.DeleteRole(ctx, id)
}

// AssignRole grants the role to an actor.
func (s *Service) AssignRole(ctx context.Context, actorID, roleID int64) error {
	return s.repo.AssignRole(ctx, actorID, roleID)
}

// RemoveRole removes the role from an actor.
func (s *Service) RemoveRole(ctx context.Context, actorID, roleID int64) error {
	return s.repo.RemoveRole(ctx, actorID, roleID)
}

// validatePermissions parses every string and rejects duplicates. A
// malformed triple is a configuration error surfaced to the author,
// never deferred to request time.
func validatePermissions(raw []string) ([]rbac.Permission, error) {
	perms := make([]rbac.Permission, 0, len(raw))
	seen := make(map[rbac.Permission]struct{}, len(raw))
	for _, r := range raw {
		p, err := rbac.Parse(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePermission, p)
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}
	return perms, nil
}
