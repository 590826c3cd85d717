package widgets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/broadcast"
	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

type stubRepo struct {
	widgets    map[int64]Widget
	nextID     int64
	lastFilter ListFilter
}

func newStubRepo(widgets ...Widget) *stubRepo {
	s := &stubRepo{widgets: map[int64]Widget{}, nextID: 100}
	for _, w := range widgets {
		s.widgets[w.ID] = w
	}
	return s
}

func (s *stubRepo) List(ctx context.Context, filter ListFilter) ([]Widget, error) {
	s.lastFilter = filter
	var out []Widget
	for _, w := range s.widgets {
		switch filter.Scope {
		case rbac.ScopeOwn:
			if w.OwnerID == nil || *w.OwnerID != filter.ActorID {
				continue
			}
		case rbac.ScopeGroup:
			owned := w.OwnerID != nil && *w.OwnerID == filter.ActorID
			inGroup := filter.GroupID != nil && w.GroupID != nil && *w.GroupID == *filter.GroupID
			if !owned && !inGroup {
				continue
			}
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *stubRepo) Get(ctx context.Context, id int64) (*Widget, error) {
	w, ok := s.widgets[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &w, nil
}

func (s *stubRepo) Create(ctx context.Context, widget *Widget) (*Widget, error) {
	widget.ID = s.nextID
	widget.CreatedAt = time.Now().UTC()
	widget.UpdatedAt = widget.CreatedAt
	s.nextID++
	s.widgets[widget.ID] = *widget
	return widget, nil
}

func (s *stubRepo) Update(ctx context.Context, widget *Widget) (*Widget, error) {
	if _, ok := s.widgets[widget.ID]; !ok {
		return nil, shared.ErrNotFound
	}
	widget.UpdatedAt = time.Now().UTC()
	s.widgets[widget.ID] = *widget
	return widget, nil
}

func (s *stubRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := s.widgets[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.widgets, id)
	return nil
}

type stubAnnouncer struct {
	events []broadcast.ChangeEvent
}

func (s *stubAnnouncer) Publish(ctx context.Context, event broadcast.ChangeEvent) {
	s.events = append(s.events, event)
}

func ptr(v int64) *int64 { return &v }

func TestListScopesToGrants(t *testing.T) {
	repo := newStubRepo(
		Widget{ID: 1, Name: "mine", OwnerID: ptr(1)},
		Widget{ID: 2, Name: "teammate", OwnerID: ptr(2), GroupID: ptr(9)},
		Widget{ID: 3, Name: "elsewhere", OwnerID: ptr(3), GroupID: ptr(8)},
	)
	svc := NewService(repo, nil)
	actor := &rbac.Actor{ID: 1, GroupID: ptr(9), Active: true}

	cases := []struct {
		name  string
		perms []rbac.Permission
		want  int
	}{
		{"own scope", rbac.MustParseSet("widget:read:own"), 1},
		{"group scope", rbac.MustParseSet("widget:read:group"), 2},
		{"all scope", rbac.MustParseSet("widget:read:all"), 3},
		{"broadest wins", rbac.MustParseSet("widget:read:own", "widget:read:all"), 3},
		{"wildcard action", rbac.MustParseSet("widget:*:group"), 2},
		{"no read grant", rbac.MustParseSet("widget:write:all"), 0},
		{"empty grants", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			list, err := svc.List(context.Background(), actor, tc.perms)
			require.NoError(t, err)
			assert.Len(t, list, tc.want)
		})
	}
}

func TestCreateSetsOwnershipAndAnnounces(t *testing.T) {
	repo := newStubRepo()
	announcer := &stubAnnouncer{}
	svc := NewService(repo, announcer)
	actor := &rbac.Actor{ID: 7, GroupID: ptr(2), Active: true}

	widget, err := svc.Create(context.Background(), actor, "  gizmo  ", "first one")
	require.NoError(t, err)
	require.NotNil(t, widget.OwnerID)
	assert.Equal(t, int64(7), *widget.OwnerID)
	require.NotNil(t, widget.GroupID)
	assert.Equal(t, int64(2), *widget.GroupID)
	assert.Equal(t, "gizmo", widget.Name)

	require.Len(t, announcer.events, 1)
	event := announcer.events[0]
	assert.Equal(t, "widget", event.Resource)
	assert.Equal(t, "create", event.Action)
	assert.Equal(t, widget.ID, event.RecordID)
	assert.Equal(t, widget.OwnerID, event.OwnerActorID)
}

func TestCreateRejectsBlankName(t *testing.T) {
	announcer := &stubAnnouncer{}
	svc := NewService(newStubRepo(), announcer)

	_, err := svc.Create(context.Background(), &rbac.Actor{ID: 1}, "   ", "")
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, announcer.events, "failed mutations are not announced")
}

func TestUpdateAnnouncesChange(t *testing.T) {
	repo := newStubRepo(Widget{ID: 5, Name: "old", OwnerID: ptr(1)})
	announcer := &stubAnnouncer{}
	svc := NewService(repo, announcer)

	widget, err := repo.Get(context.Background(), 5)
	require.NoError(t, err)
	updated, err := svc.Update(context.Background(), widget, "new", "notes")
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Name)

	require.Len(t, announcer.events, 1)
	assert.Equal(t, "update", announcer.events[0].Action)
	assert.Equal(t, "new", announcer.events[0].Payload["name"])
}

func TestDeleteAnnouncesWithOwnership(t *testing.T) {
	repo := newStubRepo(Widget{ID: 5, Name: "doomed", OwnerID: ptr(1), GroupID: ptr(4)})
	announcer := &stubAnnouncer{}
	svc := NewService(repo, announcer)

	widget, err := repo.Get(context.Background(), 5)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), widget))

	_, err = repo.Get(context.Background(), 5)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	require.Len(t, announcer.events, 1)
	// Ownership rides along so subscriber filtering still works after
	// the row is gone.
	assert.Equal(t, ptr(int64(1)), announcer.events[0].OwnerActorID)
	assert.Equal(t, ptr(int64(4)), announcer.events[0].OwnerGroupID)
}
