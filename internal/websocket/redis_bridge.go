package websocket

import (
	"context"
	"encoding/json"
)

// Subscriber is the Redis pattern subscriber.
type Subscriber interface {
	Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error
}

// RedisBridge relays audit events published by any agent to the events channel.
type RedisBridge struct {
	subscriber Subscriber
	hub        *Hub
}

func NewRedisBridge(subscriber Subscriber, hub *Hub) *RedisBridge {
	return &RedisBridge{subscriber: subscriber, hub: hub}
}

type eventEnvelope struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

// Run blocks until ctx ends or the subscription fails.
func (b *RedisBridge) Run(ctx context.Context, channels []string) error {
	return b.subscriber.Subscribe(ctx, channels, func(channel string, payload []byte) {
		b.hub.Broadcast(EventsChannel, wrapEvent(payload))
	})
}

func wrapEvent(payload []byte) []byte {
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(payload))
	}
	out, _ := json.Marshal(eventEnvelope{Type: "document_event", Event: payload})
	return out
}
