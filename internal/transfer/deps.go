package transfer

import (
	"context"
	"time"

	"docvault/internal/domain/upload"
	"docvault/internal/flags"
	"docvault/internal/hashing"
	"docvault/internal/storage"
	"docvault/pkg/logger"

	"github.com/google/uuid"
)

type BlobStore interface {
	Upload(ctx context.Context, in storage.UploadInput, onProgress func(int)) (storage.UploadOutput, error)
}

// QuotaResolver is the configuration collaborator, read once per session.
type QuotaResolver interface {
	Resolve(ctx context.Context, clientID string) (flags.SessionConfig, error)
}

type DocumentStore interface {
	Create(ctx context.Context, doc *upload.Document) error
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status upload.DocumentStatus) error
	MarkUploadCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

type Hasher interface {
	Start(ctx context.Context, src upload.Source) *hashing.Task
}

type Verifier interface {
	Verify(ctx context.Context, documentID uuid.UUID, objectID string, expectedSize int64, expectedHash string) (upload.VerificationResult, error)
}

type MetricsRecorder interface {
	Record(ctx context.Context, s upload.Session, success bool, errMsg string) upload.TransferMetrics
}

type EventLogger interface {
	Log(ctx context.Context, eventType string, documentID *uuid.UUID, metadata map[string]any)
}

type Deps struct {
	Blob      BlobStore
	Quota     QuotaResolver
	Documents DocumentStore
	Hasher    Hasher
	Verifier  Verifier
	Metrics   MetricsRecorder
	Events    EventLogger
	Log       *logger.Logger
}

type Options struct {
	// Key identifies the session before a document exists. Generated when empty.
	Key           string
	UploadTimeout time.Duration
	VerifyTimeout time.Duration
	// ProgressStep is the persisted progress granularity in percent.
	ProgressStep int
	// PartSize is only used to count chunks of multipart uploads.
	PartSize int64
}

const (
	defaultProgressStep = 10
	defaultPartSize     = 16 * 1024 * 1024
)

// Callbacks are invoked on the session goroutine and never after the
// session is cancelled. They must not call back into the Manager's
// Pause, Resume or Cancel synchronously.
type Callbacks struct {
	OnProgress     func(percent int)
	OnHashProgress func(percent int, eta time.Duration, hasETA bool)
	OnStateChange  func(state upload.State)
	OnComplete     func(documentID uuid.UUID)
	OnError        func(err error)
}

type noopMetrics struct{}

func (noopMetrics) Record(ctx context.Context, s upload.Session, success bool, errMsg string) upload.TransferMetrics {
	return upload.TransferMetrics{}
}

type noopEvents struct{}

func (noopEvents) Log(ctx context.Context, eventType string, documentID *uuid.UUID, metadata map[string]any) {
}
