package actors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

type stubRepo struct {
	actors map[int64]rbac.Actor
	roles  map[int64][]rbac.Role
}

func newStubRepo(actors ...rbac.Actor) *stubRepo {
	s := &stubRepo{actors: map[int64]rbac.Actor{}, roles: map[int64][]rbac.Role{}}
	for _, a := range actors {
		s.actors[a.ID] = a
	}
	return s
}

func (s *stubRepo) ListActors(ctx context.Context) ([]rbac.Actor, error) {
	out := make([]rbac.Actor, 0, len(s.actors))
	for _, a := range s.actors {
		out = append(out, a)
	}
	return out, nil
}

func (s *stubRepo) GetActor(ctx context.Context, id int64) (rbac.Actor, error) {
	a, ok := s.actors[id]
	if !ok {
		return rbac.Actor{}, rbac.ErrNotFound
	}
	return a, nil
}

func (s *stubRepo) UpdateFlags(ctx context.Context, id int64, active, locked bool) (rbac.Actor, error) {
	a, ok := s.actors[id]
	if !ok {
		return rbac.Actor{}, rbac.ErrNotFound
	}
	a.Active, a.Locked = active, locked
	s.actors[id] = a
	return a, nil
}

func (s *stubRepo) UpdateGroup(ctx context.Context, id int64, groupID *int64) (rbac.Actor, error) {
	a, ok := s.actors[id]
	if !ok {
		return rbac.Actor{}, rbac.ErrNotFound
	}
	a.GroupID = groupID
	s.actors[id] = a
	return a, nil
}

func (s *stubRepo) ActorRoles(ctx context.Context, id int64) ([]rbac.Role, error) {
	return s.roles[id], nil
}

func TestSetActivePreservesLock(t *testing.T) {
	repo := newStubRepo(rbac.Actor{ID: 1, Handle: "ada", Active: true, Locked: true})
	svc := NewService(repo)

	actor, err := svc.SetActive(context.Background(), 1, false)
	require.NoError(t, err)
	assert.False(t, actor.Active)
	assert.True(t, actor.Locked, "toggling active must not clear the lock")
}

func TestSetLockedPreservesActive(t *testing.T) {
	repo := newStubRepo(rbac.Actor{ID: 1, Handle: "ada", Active: true})
	svc := NewService(repo)

	actor, err := svc.SetLocked(context.Background(), 1, true)
	require.NoError(t, err)
	assert.True(t, actor.Locked)
	assert.True(t, actor.Active)
}

func TestSetGroupClearsMembership(t *testing.T) {
	group := int64(9)
	repo := newStubRepo(rbac.Actor{ID: 2, Handle: "bob", Active: true, GroupID: &group})
	svc := NewService(repo)

	actor, err := svc.SetGroup(context.Background(), 2, nil)
	require.NoError(t, err)
	assert.Nil(t, actor.GroupID)
}

func TestFindByHandleCaseInsensitive(t *testing.T) {
	repo := newStubRepo(rbac.Actor{ID: 3, Handle: "Carol", Active: true})
	svc := NewService(repo)

	actor, err := svc.FindByHandle(context.Background(), "  cArOl ")
	require.NoError(t, err)
	assert.Equal(t, int64(3), actor.ID)

	_, err = svc.FindByHandle(context.Background(), "nobody")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFlagUpdatesUnknownActor(t *testing.T) {
	svc := NewService(newStubRepo())
	_, err := svc.SetActive(context.Background(), 99, true)
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}
