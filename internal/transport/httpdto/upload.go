package httpdto

import (
	"time"

	"docvault/internal/domain/upload"
)

// StartUploadRequest is used for POST /v1/uploads
type StartUploadRequest struct {
	Path       string `json:"path" binding:"required"`
	ClientID   string `json:"client_id" binding:"required"`
	UploadedBy string `json:"uploaded_by"`
}

// SessionDTO represents an upload session in API responses
type SessionDTO struct {
	Key            string `json:"session_key"`
	DocumentID     string `json:"document_id,omitempty"`
	ClientID       string `json:"client_id"`
	UploadedBy     string `json:"uploaded_by,omitempty"`
	FileName       string `json:"file_name"`
	FileSize       int64  `json:"file_size"`
	MimeType       string `json:"mime_type"`
	ContentHash    string `json:"content_hash,omitempty"`
	ObjectKey      string `json:"object_key,omitempty"`
	Method         string `json:"method,omitempty"`
	State          string `json:"state"`
	UploadProgress int    `json:"upload_progress"`
	HashProgress   int    `json:"hash_progress"`
	RetryCount     int    `json:"retry_count"`
	ChunksCount    int    `json:"chunks_count,omitempty"`
	ErrorStage     string `json:"error_stage,omitempty"`
	Error          string `json:"error,omitempty"`
	StartedAt      string `json:"started_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

type ListSessionsResponse struct {
	Sessions []SessionDTO `json:"sessions"`
	Active   int          `json:"active"`
}

func NewSessionDTO(s upload.Session) SessionDTO {
	dto := SessionDTO{
		Key:            s.Key,
		ClientID:       s.ClientID,
		UploadedBy:     s.UploadedBy,
		FileName:       s.FileName,
		FileSize:       s.FileSize,
		MimeType:       s.MimeType,
		ContentHash:    s.ContentHash,
		ObjectKey:      s.ObjectKey,
		Method:         string(s.Method),
		State:          string(s.State),
		UploadProgress: s.UploadProgress,
		HashProgress:   s.HashProgress,
		RetryCount:     s.RetryCount,
		ChunksCount:    s.ChunksCount,
		StartedAt:      formatTime(s.StartedAt),
		UpdatedAt:      formatTime(s.UpdatedAt),
	}
	if s.HasDocument() {
		dto.DocumentID = s.DocumentID.String()
	}
	if s.Err != nil {
		dto.ErrorStage = string(s.Err.Stage)
		dto.Error = s.Err.Error()
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
