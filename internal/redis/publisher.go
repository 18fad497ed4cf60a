package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"docvault/internal/domain/upload"

	"github.com/redis/go-redis/v9"
)

// DocumentEventsChannel carries every audit event as JSON.
const DocumentEventsChannel = "channel:documents:events"

type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

func (p *Publisher) PublishJSON(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", channel, err)
	}
	return p.Publish(ctx, channel, payload)
}

// WriteEvent makes the publisher an audit event sink.
func (p *Publisher) WriteEvent(ctx context.Context, e upload.AuditEvent) error {
	return p.PublishJSON(ctx, DocumentEventsChannel, e)
}
