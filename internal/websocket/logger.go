package websocket

import (
	"docvault/pkg/logger"

	"go.uber.org/zap"
)

// WebSocketLogger provides structured logging for WebSocket events
type WebSocketLogger struct {
	logger *logger.Logger
}

func NewWebSocketLogger(l *logger.Logger) *WebSocketLogger {
	if l == nil {
		l = logger.Nop()
	}
	return &WebSocketLogger{logger: l.With(zap.String("component", "websocket"))}
}

func (l *WebSocketLogger) Info(event, clientID string, fields ...zap.Field) {
	l.logger.Logger.Info("websocket_event", l.fields(event, clientID, fields)...)
}

func (l *WebSocketLogger) Warn(event, clientID string, fields ...zap.Field) {
	l.logger.Logger.Warn("websocket_warning", l.fields(event, clientID, fields)...)
}

func (l *WebSocketLogger) Error(event, clientID string, err error, fields ...zap.Field) {
	l.logger.Logger.Error("websocket_error", append(l.fields(event, clientID, fields), zap.Error(err))...)
}

func (l *WebSocketLogger) fields(event, clientID string, extra []zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event", event),
		zap.String("client_id", clientID),
	}, extra...)
}
