package broadcast

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
)

type stubPerms struct {
	grants map[int64][]rbac.Permission
}

func (s *stubPerms) EffectivePermissions(ctx context.Context, actorID int64) ([]rbac.Permission, error) {
	return s.grants[actorID], nil
}

func ptr(v int64) *int64 { return &v }

func mustSet(t *testing.T, raw ...string) []rbac.Permission {
	t.Helper()
	perms, err := rbac.ParseSet(raw)
	require.NoError(t, err)
	return perms
}

func drain(sub *Subscription) []Delivery {
	var got []Delivery
	for {
		select {
		case d := <-sub.Events():
			got = append(got, d)
		default:
			return got
		}
	}
}

func event(resource string, owner, group *int64) ChangeEvent {
	return ChangeEvent{
		Resource:     resource,
		Action:       "update",
		RecordID:     int64(1),
		OwnerActorID: owner,
		OwnerGroupID: group,
		OccurredAt:   time.Now().UTC(),
	}
}

func TestPublishFiltersByPermission(t *testing.T) {
	perms := &stubPerms{grants: map[int64][]rbac.Permission{
		1: mustSet(t, "widget:read:own"),
		2: mustSet(t, "widget:read:all"),
	}}
	b := New(perms, nil, nil)
	ctx := context.Background()

	owner := b.Subscribe(ctx, &rbac.Actor{ID: 1, Active: true}, "")
	admin := b.Subscribe(ctx, &rbac.Actor{ID: 2, Active: true}, "")
	defer owner.Close()
	defer admin.Close()

	// Record owned by actor 1: both may see it.
	b.Publish(ctx, event("widget", ptr(1), nil))
	// Record owned by actor 9: only the all-scoped subscriber may.
	b.Publish(ctx, event("widget", ptr(9), nil))

	assert.Len(t, drain(owner), 1)
	assert.Len(t, drain(admin), 2)
}

func TestResourceNarrowingIsNotASecurityBoundary(t *testing.T) {
	perms := &stubPerms{grants: map[int64][]rbac.Permission{
		1: mustSet(t, "widget:read:all"),
	}}
	b := New(perms, nil, nil)
	ctx := context.Background()

	sub := b.Subscribe(ctx, &rbac.Actor{ID: 1, Active: true}, "invoice")
	defer sub.Close()

	// Narrowed to invoices, but holds no invoice grant: the permission
	// filter still applies and nothing is delivered.
	b.Publish(ctx, event("invoice", nil, nil))
	// Widget events are dropped by the narrowing even though permitted.
	b.Publish(ctx, event("widget", ptr(1), nil))

	assert.Empty(t, drain(sub))
}

func TestSlowSubscriberDropsOldestOnly(t *testing.T) {
	perms := &stubPerms{grants: map[int64][]rbac.Permission{
		1: mustSet(t, "widget:read:all"),
		2: mustSet(t, "widget:read:all"),
	}}
	b := New(perms, nil, nil)
	ctx := context.Background()

	slow := b.Subscribe(ctx, &rbac.Actor{ID: 1, Active: true}, "")
	fast := b.Subscribe(ctx, &rbac.Actor{ID: 2, Active: true}, "")
	defer slow.Close()
	defer fast.Close()

	total := DefaultBufferSize + 5
	for i := 0; i < total; i++ {
		ev := event("widget", nil, nil)
		ev.RecordID = int64(i)
		b.Publish(ctx, ev)
		// The fast consumer keeps up.
		select {
		case <-fast.Events():
		default:
			t.Fatalf("fast subscriber starved at event %d", i)
		}
	}

	got := drain(slow)
	require.Len(t, got, DefaultBufferSize)
	// Drop-oldest: the newest events survive.
	assert.Equal(t, int64(total-1), got[len(got)-1].RecordID)
	assert.Equal(t, int64(total-DefaultBufferSize), got[0].RecordID)
}

func TestDeliveryStripsOwnershipFields(t *testing.T) {
	perms := &stubPerms{grants: map[int64][]rbac.Permission{1: mustSet(t, "widget:read:all")}}
	b := New(perms, nil, nil)
	ctx := context.Background()

	sub := b.Subscribe(ctx, &rbac.Actor{ID: 1, Active: true}, "")
	defer sub.Close()

	ev := event("widget", ptr(42), ptr(7))
	ev.Payload = map[string]any{"name": "gear"}
	b.Publish(ctx, ev)

	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, "widget", got[0].Resource)
	assert.Equal(t, map[string]any{"name": "gear"}, got[0].Payload)
}

func TestSubscriptionReclaimedOnContextCancel(t *testing.T) {
	perms := &stubPerms{grants: map[int64][]rbac.Permission{}}
	b := New(perms, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx, &rbac.Actor{ID: 1, Active: true}, "")
	require.Equal(t, 1, b.SubscriberCount())

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not reclaimed after cancel")
	}
	require.Eventually(t, func() bool { return b.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestGroupScopeDelivery(t *testing.T) {
	perms := &stubPerms{grants: map[int64][]rbac.Permission{
		1: mustSet(t, "widget:read:group"),
	}}
	b := New(perms, nil, nil)
	ctx := context.Background()

	sub := b.Subscribe(ctx, &rbac.Actor{ID: 1, GroupID: ptr(3), Active: true}, "")
	defer sub.Close()

	b.Publish(ctx, event("widget", ptr(9), ptr(3))) // group record: delivered
	b.Publish(ctx, event("widget", ptr(9), ptr(4))) // foreign group: requires all
	b.Publish(ctx, event("widget", nil, nil))       // unowned: requires all

	assert.Len(t, drain(sub), 1)
}

// Randomized actors, grants and events: a subscriber must never receive
// an event its permission set does not admit.
func TestNoOverDelivery(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	scopes := []rbac.Scope{rbac.ScopeOwn, rbac.ScopeGroup, rbac.ScopeAll}
	resources := []string{"widget", "invoice", "order"}

	for trial := 0; trial < 50; trial++ {
		perms := &stubPerms{grants: map[int64][]rbac.Permission{}}
		b := New(perms, nil, nil)
		ctx := context.Background()

		actors := make([]*rbac.Actor, 0, 4)
		subs := make([]*Subscription, 0, 4)
		for id := int64(1); id <= 4; id++ {
			actor := &rbac.Actor{ID: id, Active: true}
			if rng.Intn(2) == 0 {
				actor.GroupID = ptr(int64(rng.Intn(2) + 1))
			}
			if rng.Intn(4) > 0 {
				perms.grants[id] = []rbac.Permission{{
					Resource: resources[rng.Intn(len(resources))],
					Action:   "read",
					Scope:    scopes[rng.Intn(len(scopes))],
				}}
			}
			actors = append(actors, actor)
			subs = append(subs, b.Subscribe(ctx, actor, ""))
		}

		events := make([]ChangeEvent, 0, 10)
		for i := 0; i < 10; i++ {
			ev := event(resources[rng.Intn(len(resources))], nil, nil)
			ev.RecordID = int64(i)
			if rng.Intn(2) == 0 {
				ev.OwnerActorID = ptr(int64(rng.Intn(5)))
			}
			if rng.Intn(2) == 0 {
				ev.OwnerGroupID = ptr(int64(rng.Intn(3)))
			}
			events = append(events, ev)
			b.Publish(ctx, ev)
		}

		for i, sub := range subs {
			actor := actors[i]
			for _, d := range drain(sub) {
				ev := events[d.RecordID.(int64)]
				requested := rbac.Permission{
					Resource: ev.Resource,
					Action:   "read",
					Scope:    rbac.RequiredScope(actor, ev.Ownership()),
				}
				if !rbac.Matches(perms.grants[actor.ID], requested) {
					t.Fatalf("trial %d: actor %d over-delivered event %+v", trial, actor.ID, ev)
				}
			}
			sub.Close()
		}
	}
}
