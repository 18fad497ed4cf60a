package repository

import (
	"context"
	"encoding/json"
	"time"

	"docvault/internal/domain/upload"

	"github.com/google/uuid"
)

type DocumentRepository interface {
	Create(ctx context.Context, d *upload.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (upload.Document, error)
	ListByClient(ctx context.Context, clientID string, limit int) ([]upload.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error

	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status upload.DocumentStatus) error
	MarkUploadCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	SaveVerification(ctx context.Context, id uuid.UUID, metadata json.RawMessage, verifiedAt time.Time) error

	ClientUsage(ctx context.Context, clientID string) (int64, error)
}

type MetricsRepository interface {
	Insert(ctx context.Context, m upload.TransferMetrics) error
}

type EventRepository interface {
	WriteEvent(ctx context.Context, e upload.AuditEvent) error
	ListByDocument(ctx context.Context, documentID uuid.UUID, limit int) ([]upload.AuditEvent, error)
}

type ConfigRepository interface {
	GetValue(ctx context.Context, key string) (string, error)
	GetValues(ctx context.Context, keys []string) (map[string]string, error)
}
