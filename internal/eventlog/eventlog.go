package eventlog

import (
	"context"
	"maps"
	"sync"
	"time"

	"docvault/internal/domain/upload"
	"docvault/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultWriteTimeout = 5 * time.Second

// Sink stores or forwards audit events.
type Sink interface {
	WriteEvent(ctx context.Context, e upload.AuditEvent) error
}

type actorKey struct{}

// WithActor attaches the acting user to ctx; Log records it on every event.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func actorFrom(ctx context.Context) string {
	v, _ := ctx.Value(actorKey{}).(string)
	return v
}

// EventLog fans events out to its sinks in the background. Sink failures
// are logged and never reach the caller.
type EventLog struct {
	sinks   []Sink
	log     *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func New(log *logger.Logger, timeout time.Duration, sinks ...Sink) *EventLog {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &EventLog{sinks: sinks, log: log, timeout: timeout}
}

func (l *EventLog) Log(ctx context.Context, eventType string, documentID *uuid.UUID, metadata map[string]any) {
	e := upload.AuditEvent{
		Type:       eventType,
		ActorID:    actorFrom(ctx),
		Metadata:   maps.Clone(metadata),
		OccurredAt: time.Now().UTC(),
	}
	if documentID != nil {
		id := *documentID
		e.DocumentID = &id
	}

	// the session may already be cancelled; the audit write must still happen
	base := context.WithoutCancel(ctx)

	for _, sink := range l.sinks {
		l.wg.Add(1)
		go func(sink Sink) {
			defer l.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					l.log.Ctx(base).Error("event sink panicked", zap.String("event_type", e.Type), zap.Any("panic", r))
				}
			}()

			writeCtx, cancel := context.WithTimeout(base, l.timeout)
			defer cancel()
			if err := sink.WriteEvent(writeCtx, e); err != nil {
				l.log.Ctx(base).Warn("failed to write document event",
					zap.String("event_type", e.Type), zap.Error(err))
			}
		}(sink)
	}
}

// Wait blocks until every pending write has finished.
func (l *EventLog) Wait() {
	l.wg.Wait()
}
