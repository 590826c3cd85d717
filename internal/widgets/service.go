package widgets

import (
	"context"
	"strings"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/broadcast"
	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// AnnouncerPort publishes change events after successful mutations.
// Publishing is best effort; a mutation never fails because its
// announcement could not be delivered.
type AnnouncerPort interface {
	Publish(ctx context.Context, event broadcast.ChangeEvent)
}

// Service handles widget business logic.
type Service struct {
	repo      RepositoryPort
	announcer AnnouncerPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, announcer AnnouncerPort) *Service {
	return &Service{repo: repo, announcer: announcer}
}

// List returns the widgets the caller may see. The listing window is
// the broadest read scope among the caller's grants: own shows only
// their records, group adds their group's, all shows everything.
func (s *Service) List(ctx context.Context, actor *rbac.Actor, granted []rbac.Permission) ([]Widget, error) {
	scope, ok := rbac.BroadestScope(granted, "widget", "read")
	if !ok {
		return nil, nil
	}
	return s.repo.List(ctx, ListFilter{Scope: scope, ActorID: actor.ID, GroupID: actor.GroupID})
}

// Get fetches one widget.
func (s *Service) Get(ctx context.Context, id int64) (*Widget, error) {
	return s.repo.Get(ctx, id)
}

// Create inserts a widget owned by the caller and announces it.
func (s *Service) Create(ctx context.Context, actor *rbac.Actor, name, notes string) (*Widget, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.ErrValidation
	}
	ownerID := actor.ID
	widget, err := s.repo.Create(ctx, &Widget{
		Name:    name,
		Notes:   notes,
		OwnerID: &ownerID,
		GroupID: actor.GroupID,
	})
	if err != nil {
		return nil, err
	}
	s.announce(ctx, "create", widget)
	return widget, nil
}

// Update rewrites a widget's mutable fields and announces the change.
// The caller's authorization against the loaded record has already
// happened at the gate.
func (s *Service) Update(ctx context.Context, widget *Widget, name, notes string) (*Widget, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.ErrValidation
	}
	widget.Name, widget.Notes = name, notes
	updated, err := s.repo.Update(ctx, widget)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, "update", updated)
	return updated, nil
}

// Delete removes a widget and announces the removal.
func (s *Service) Delete(ctx context.Context, widget *Widget) error {
	if err := s.repo.Delete(ctx, widget.ID); err != nil {
		return err
	}
	s.announce(ctx, "delete", widget)
	return nil
}

func (s *Service) announce(ctx context.Context, action string, widget *Widget) {
	if s.announcer == nil {
		return
	}
	s.announcer.Publish(ctx, broadcast.ChangeEvent{
		Resource:     "widget",
		Action:       action,
		RecordID:     widget.ID,
		OwnerActorID: widget.OwnerID,
		OwnerGroupID: widget.GroupID,
		OccurredAt:   time.Now().UTC(),
		Payload:      map[string]any{"name": widget.Name},
	})
}
