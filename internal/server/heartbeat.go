package server

import (
	"context"
	"time"

	"docvault/pkg/logger"

	"go.uber.org/zap"
)

type AgentRegistry interface {
	Heartbeat(ctx context.Context, name string, activeSessions int) error
	Deregister(ctx context.Context, name string) error
}

// Heartbeat advertises this agent and its running session count until ctx
// ends, then removes the entry.
type Heartbeat struct {
	registry AgentRegistry
	name     string
	interval time.Duration
	active   func() int
	log      *logger.Logger
}

func NewHeartbeat(registry AgentRegistry, name string, interval time.Duration, active func() int, log *logger.Logger) *Heartbeat {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Heartbeat{registry: registry, name: name, interval: interval, active: active, log: log}
}

func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			if err := h.registry.Deregister(cleanup, h.name); err != nil {
				h.log.Logger.Warn("failed to deregister agent", zap.String("agent", h.name), zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	if err := h.registry.Heartbeat(ctx, h.name, h.active()); err != nil && ctx.Err() == nil {
		h.log.Logger.Warn("agent heartbeat failed", zap.String("agent", h.name), zap.Error(err))
	}
}
