package httpdto

import (
	"encoding/json"

	"docvault/internal/domain/upload"

	"github.com/dustin/go-humanize"
)

// ListDocumentsRequest holds query parameters for GET /v1/documents
type ListDocumentsRequest struct {
	ClientID string `form:"client_id" binding:"required"`
	Limit    int    `form:"limit"`
}

// DocumentDTO represents a client document in API responses
type DocumentDTO struct {
	ID                   string          `json:"id"`
	ClientID             string          `json:"client_id"`
	DocumentName         string          `json:"document_name"`
	DocumentType         string          `json:"document_type"`
	FileSize             int64           `json:"file_size"`
	FileSizeHuman        string          `json:"file_size_human"`
	FilePath             string          `json:"file_path"`
	FileHash             string          `json:"file_hash"`
	UploadStatus         string          `json:"upload_status"`
	UploadProgress       int             `json:"upload_progress"`
	UploadedBy           string          `json:"uploaded_by,omitempty"`
	UploadStartedAt      string          `json:"upload_started_at,omitempty"`
	UploadCompletedAt    string          `json:"upload_completed_at,omitempty"`
	VerifiedAt           string          `json:"verified_at,omitempty"`
	VerificationMetadata json.RawMessage `json:"verification_metadata,omitempty"`
	CreatedAt            string          `json:"created_at"`
}

type ListDocumentsResponse struct {
	Documents []DocumentDTO `json:"documents"`
}

// AuditEventDTO is one entry of GET /v1/documents/:id/events
type AuditEventDTO struct {
	Type       string         `json:"event_type"`
	ActorID    string         `json:"user_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt string         `json:"created_at"`
}

func NewDocumentDTO(d upload.Document) DocumentDTO {
	return DocumentDTO{
		ID:                   d.ID.String(),
		ClientID:             d.ClientID,
		DocumentName:         d.DocumentName,
		DocumentType:         d.DocumentType,
		FileSize:             d.FileSize,
		FileSizeHuman:        humanize.IBytes(uint64(max(d.FileSize, 0))),
		FilePath:             d.FilePath,
		FileHash:             d.FileHash,
		UploadStatus:         string(d.UploadStatus),
		UploadProgress:       d.UploadProgress,
		UploadedBy:           d.UploadedBy,
		UploadStartedAt:      formatTime(d.UploadStartedAt),
		UploadCompletedAt:    formatTimePtr(d.UploadCompletedAt),
		VerifiedAt:           formatTimePtr(d.VerifiedAt),
		VerificationMetadata: d.VerificationMetadata,
		CreatedAt:            formatTime(d.CreatedAt),
	}
}

func NewDocumentDTOs(docs []upload.Document) []DocumentDTO {
	out := make([]DocumentDTO, 0, len(docs))
	for _, d := range docs {
		out = append(out, NewDocumentDTO(d))
	}
	return out
}

func NewAuditEventDTOs(events []upload.AuditEvent) []AuditEventDTO {
	out := make([]AuditEventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, AuditEventDTO{
			Type:       e.Type,
			ActorID:    e.ActorID,
			Metadata:   e.Metadata,
			OccurredAt: formatTime(e.OccurredAt),
		})
	}
	return out
}
