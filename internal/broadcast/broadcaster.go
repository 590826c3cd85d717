// Package broadcast fans successful mutations out to live subscribers,
// filtering every event against each subscriber's current permission
// set before delivery.
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gatehouse-io/gatehouse/internal/observability"
	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// DefaultBufferSize bounds each subscriber's outbound queue. On
// overflow the oldest buffered event is dropped so a stalled consumer
// never delays the rest.
const DefaultBufferSize = 16

// PermissionSource resolves a subscriber's grants at event time, so a
// role edit takes effect on live streams without reconnecting.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, actorID int64) ([]rbac.Permission, error)
}

// Subscription is one subscriber's live event feed.
type Subscription struct {
	actor  *rbac.Actor
	filter string
	ch     chan Delivery
	once   sync.Once
	done   chan struct{}
}

// Events returns the delivery channel. Consumers must select against
// Done as well; the channel itself is never closed, so a send can never
// race a teardown.
func (s *Subscription) Events() <-chan Delivery {
	return s.ch
}

// Done is closed when the subscription has been reclaimed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close tears the subscription down. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { close(s.done) })
}

// Broadcaster tracks active subscribers and fans published events out
// to those whose permissions admit them. Delivery is best-effort and
// at-most-once per subscriber: a disconnected subscriber simply misses
// events published while it was away.
type Broadcaster struct {
	perms   PermissionSource
	logger  *slog.Logger
	metrics *observability.Metrics
	bufSize int

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// New constructs a Broadcaster. Metrics may be nil.
func New(perms PermissionSource, logger *slog.Logger, metrics *observability.Metrics) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		perms:   perms,
		logger:  logger,
		metrics: metrics,
		bufSize: DefaultBufferSize,
		subs:    make(map[*Subscription]struct{}),
	}
}

// Subscribe registers the actor for event delivery. resourceFilter, when
// non-empty, narrows delivery to a single resource name; the permission
// filter still applies regardless — narrowing is a convenience, not a
// security boundary. The subscription is reclaimed when ctx ends or
// Close is called.
func (b *Broadcaster) Subscribe(ctx context.Context, actor *rbac.Actor, resourceFilter string) *Subscription {
	sub := &Subscription{
		actor:  actor,
		filter: resourceFilter,
		ch:     make(chan Delivery, b.bufSize),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	b.metrics.SubscriberChange(1)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
		b.remove(sub)
	}()
	return sub
}

// Publish evaluates the event against every active subscriber and
// delivers to those whose grants cover (resource, "read", required
// scope for this record). Fan-out is independent per subscriber; a slow
// one only ever loses its own oldest events.
func (b *Broadcaster) Publish(ctx context.Context, event ChangeEvent) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.filter != "" && sub.filter != event.Resource {
			continue
		}
		granted, err := b.perms.EffectivePermissions(ctx, sub.actor.ID)
		if err != nil {
			// Fail closed for this subscriber only.
			b.logger.Warn("broadcast permission lookup",
				slog.Int64("actor_id", sub.actor.ID), slog.Any("error", err))
			continue
		}
		requested := rbac.Permission{
			Resource: event.Resource,
			Action:   "read",
			Scope:    rbac.RequiredScope(sub.actor, event.Ownership()),
		}
		if !rbac.Matches(granted, requested) {
			continue
		}
		b.deliver(sub, event.delivery())
	}
}

// SubscriberCount reports the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) deliver(sub *Subscription, d Delivery) {
	select {
	case sub.ch <- d:
		b.metrics.EventDelivered()
		return
	default:
	}
	// Buffer full: drop the oldest event, then try once more. If the
	// subscriber raced a drain in between, the event is dropped instead.
	select {
	case <-sub.ch:
		b.metrics.EventDropped()
	default:
	}
	select {
	case sub.ch <- d:
		b.metrics.EventDelivered()
	default:
		b.metrics.EventDropped()
		b.logger.Warn("broadcast delivery dropped",
			slog.String("code", string(shared.CodeBroadcastDeliveryFailed)),
			slog.Int64("actor_id", sub.actor.ID),
		)
	}
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	_, present := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if present {
		b.metrics.SubscriberChange(-1)
	}
}
