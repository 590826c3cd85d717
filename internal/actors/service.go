// Package actors manages the actor directory: the identities the
// gate authenticates and the ownership resolver compares against.
// Locking or deactivating an actor here invalidates their sessions
// and delegated tokens on the next request, without touching either.
package actors

import (
	"context"
	"strings"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// RepositoryPort defines data access methods for actors.
type RepositoryPort interface {
	ListActors(ctx context.Context) ([]rbac.Actor, error)
	GetActor(ctx context.Context, id int64) (rbac.Actor, error)
	UpdateFlags(ctx context.Context, id int64, active, locked bool) (rbac.Actor, error)
	UpdateGroup(ctx context.Context, id int64, groupID *int64) (rbac.Actor, error)
	ActorRoles(ctx context.Context, id int64) ([]rbac.Role, error)
}

// Service handles actor directory business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListActors returns all actors.
func (s *Service) ListActors(ctx context.Context) ([]rbac.Actor, error) {
	return s.repo.ListActors(ctx)
}

// GetActor fetches one actor.
func (s *Service) GetActor(ctx context.Context, id int64) (rbac.Actor, error) {
	return s.repo.GetActor(ctx, id)
}

// ActorRoles lists the roles currently assigned to an actor.
func (s *Service) ActorRoles(ctx context.Context, id int64) ([]rbac.Role, error) {
	if _, err := s.repo.GetActor(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ActorRoles(ctx, id)
}

// SetActive toggles the active flag. A deactivated actor fails
// credential resolution as if their token were invalid.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (rbac.Actor, error) {
	actor, err := s.repo.GetActor(ctx, id)
	if err != nil {
		return rbac.Actor{}, err
	}
	return s.repo.UpdateFlags(ctx, id, active, actor.Locked)
}

// SetLocked toggles the locked flag.
func (s *Service) SetLocked(ctx context.Context, id int64, locked bool) (rbac.Actor, error) {
	actor, err := s.repo.GetActor(ctx, id)
	if err != nil {
		return rbac.Actor{}, err
	}
	return s.repo.UpdateFlags(ctx, id, actor.Active, locked)
}

// SetGroup moves the actor to another group, or out of any group when
// groupID is nil. Group-scoped grants follow the new membership on the
// next permission check.
func (s *Service) SetGroup(ctx context.Context, id int64, groupID *int64) (rbac.Actor, error) {
	if _, err := s.repo.GetActor(ctx, id); err != nil {
		return rbac.Actor{}, err
	}
	return s.repo.UpdateGroup(ctx, id, groupID)
}

// FindByHandle looks an actor up by handle, case-insensitively.
func (s *Service) FindByHandle(ctx context.Context, handle string) (rbac.Actor, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return rbac.Actor{}, shared.ErrNotFound
	}
	actors, err := s.repo.ListActors(ctx)
	if err != nil {
		return rbac.Actor{}, err
	}
	for _, a := range actors {
		if strings.ToLower(a.Handle) == handle {
			return a, nil
		}
	}
	return rbac.Actor{}, shared.ErrNotFound
}
