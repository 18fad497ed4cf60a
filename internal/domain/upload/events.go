package upload

import (
	"time"

	"github.com/google/uuid"
)

// Event types written to document_events_log.
const (
	EventValidationFailed      = "validation_failed"
	EventHashStarted           = "hash_started"
	EventHashCompleted         = "hash_completed"
	EventHashFailed            = "hash_failed"
	EventUploadStarted         = "upload_started"
	EventUploadProgress        = "upload_progress"
	EventUploadCompleted       = "upload_completed"
	EventUploadFailed          = "upload_failed"
	EventUploadPaused          = "upload_paused"
	EventUploadResumed         = "upload_resumed"
	EventUploadCancelled       = "upload_cancelled"
	EventVerificationStarted   = "verification_started"
	EventVerificationCompleted = "verification_completed"
	EventVerificationFailed    = "verification_failed"
)

// AuditEvent is one entry of the document audit trail.
type AuditEvent struct {
	Type       string         `json:"event_type"`
	DocumentID *uuid.UUID     `json:"document_id,omitempty"`
	ActorID    string         `json:"user_id,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	OccurredAt time.Time      `json:"created_at"`
}
