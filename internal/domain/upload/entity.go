package upload

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateIdle            State = "IDLE"
	StateValidatingQuota State = "VALIDATING_QUOTA"
	StateHashing         State = "HASHING"
	StateUploading       State = "UPLOADING"
	StatePaused          State = "PAUSED"
	StateVerifying       State = "VERIFYING"
	StateVerified        State = "VERIFIED"
	StateFailed          State = "FAILED"
	StateCancelled       State = "CANCELLED"
)

// transitions lists the forward moves of the state machine. Failed and
// Cancelled are reachable from every non-terminal state and are checked
// separately in CanTransition.
var transitions = map[State][]State{
	StateIdle:            {StateValidatingQuota},
	StateValidatingQuota: {StateHashing},
	StateHashing:         {StateUploading},
	StateUploading:       {StateUploading, StateVerifying, StatePaused},
	StatePaused:          {StateUploading},
	StateVerifying:       {StateVerified},
}

func (s State) IsTerminal() bool {
	return s == StateVerified || s == StateFailed || s == StateCancelled
}

func (s State) CanTransition(to State) bool {
	if s.IsTerminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Method string

const (
	MethodStandard  Method = "standard"
	MethodMultipart Method = "multipart"
)

// Timings are wall-clock marks used by the metrics recorder.
type Timings struct {
	HashStartedAt   time.Time
	HashEndedAt     time.Time
	UploadStartedAt time.Time
	UploadEndedAt   time.Time
}

func (t Timings) HashDuration() time.Duration {
	if t.HashStartedAt.IsZero() || t.HashEndedAt.Before(t.HashStartedAt) {
		return 0
	}
	return t.HashEndedAt.Sub(t.HashStartedAt)
}

func (t Timings) UploadDuration() time.Duration {
	if t.UploadStartedAt.IsZero() || t.UploadEndedAt.Before(t.UploadStartedAt) {
		return 0
	}
	return t.UploadEndedAt.Sub(t.UploadStartedAt)
}

// Session is the in-memory source of truth for one file transfer.
type Session struct {
	Key            string
	DocumentID     uuid.UUID
	ClientID       string
	UploadedBy     string
	FileName       string
	FileSize       int64
	MimeType       string
	ContentHash    string
	ObjectKey      string
	Method         Method
	State          State
	UploadProgress int
	HashProgress   int
	RetryCount     int
	ChunksCount    int
	Err            *StageError
	Timings        Timings
	StartedAt      time.Time
	UpdatedAt      time.Time
}

func (s Session) HasDocument() bool {
	return s.DocumentID != uuid.Nil
}

type DocumentStatus string

const (
	DocumentStatusUploading DocumentStatus = "uploading"
	DocumentStatusPaused    DocumentStatus = "paused"
	DocumentStatusVerifying DocumentStatus = "verifying"
	DocumentStatusVerified  DocumentStatus = "verified"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// Document represents client_documents
type Document struct {
	ID                   uuid.UUID
	ClientID             string
	DocumentName         string
	DocumentType         string
	FileSize             int64
	FilePath             string
	FileHash             string
	UploadStatus         DocumentStatus
	UploadProgress       int
	UploadedBy           string
	UploadStartedAt      time.Time
	UploadCompletedAt    *time.Time
	VerifiedAt           *time.Time
	VerificationMetadata json.RawMessage
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
