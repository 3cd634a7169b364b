package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StreamPublisher delivers outbox entries to a Redis stream consumed by the
// notification service.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	if stream == "" {
		stream = "notifications"
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: 100_000}
}

func (p *StreamPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("events: redis client not configured")
	}
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":     entry.ID.String(),
			"aggregate_id": entry.AggregateID.String(),
			"type":         entry.Type,
			"payload":      string(entry.Payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("events: xadd %s: %w", p.stream, err)
	}
	return nil
}
