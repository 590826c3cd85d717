package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel carrying change notifications.
const Channel = "gatehouse:changes"

// Publisher pushes change events onto the notification channel after a
// successful mutation. Business services hold one of these; the
// broadcaster holds the matching subscription.
type Publisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, logger: logger}
}

// Publish serialises the event onto the channel. A publish failure is
// logged and swallowed: change notification is best-effort and must not
// fail the mutation that triggered it.
func (p *Publisher) Publish(ctx context.Context, event ChangeEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal change event", slog.Any("error", err))
		return
	}
	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		p.logger.Warn("publish change event", slog.String("resource", event.Resource), slog.Any("error", err))
	}
}

// Run subscribes the broadcaster to the Redis channel and pumps decoded
// events into it until ctx ends. Intended to run under an errgroup next
// to the HTTP server.
func (b *Broadcaster) Run(ctx context.Context, client *redis.Client) error {
	pubsub := client.Subscribe(ctx, Channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Warn("close pubsub", slog.Any("error", err))
		}
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("decode change event", slog.Any("error", err))
				continue
			}
			b.Publish(ctx, event)
		}
	}
}
