package websocket

import (
	"errors"
	"sync"
	"time"
)

var errInboundRateExceeded = errors.New("inbound message rate exceeded")

// inboundLimiter is a fixed-window token bucket refilled once per window.
type inboundLimiter struct {
	mu         sync.Mutex
	max        int
	tokens     int
	window     time.Duration
	lastRefill time.Time
}

func newInboundLimiter(max int, window time.Duration) *inboundLimiter {
	return &inboundLimiter{max: max, tokens: max, window: window, lastRefill: time.Now()}
}

func (l *inboundLimiter) allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastRefill) >= l.window {
		l.tokens = l.max
		l.lastRefill = now
	}
	if l.tokens <= 0 {
		return false
	}
	l.tokens--
	return true
}
