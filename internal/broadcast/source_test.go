package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
)

func TestPublisherToBroadcasterRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	perms := &stubPerms{grants: map[int64][]rbac.Permission{
		1: mustSet(t, "widget:read:all"),
	}}
	b := New(perms, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = b.Run(ctx, client) }()

	sub := b.Subscribe(ctx, &rbac.Actor{ID: 1, Active: true}, "")
	t.Cleanup(sub.Close)

	publisher := NewPublisher(client, nil)
	// The Run subscription races the first publish; retry until the
	// event lands or the deadline passes.
	deadline := time.After(3 * time.Second)
	for {
		publisher.Publish(ctx, ChangeEvent{Resource: "widget", Action: "create", RecordID: "w1"})
		select {
		case d := <-sub.Events():
			require.Equal(t, "widget", d.Resource)
			require.Equal(t, "create", d.Action)
			require.Equal(t, "w1", d.RecordID)
			require.False(t, d.OccurredAt.IsZero())
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("event never delivered through redis pubsub")
		}
	}
}
