package services

import (
	"context"
	"fmt"

	"docvault/internal/domain/upload"
	"docvault/internal/repository"
	docvault_errors "docvault/pkg/errors"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

type DocumentService struct {
	documents repository.DocumentRepository
	events    repository.EventRepository
}

func NewDocumentService(documents repository.DocumentRepository, events repository.EventRepository) *DocumentService {
	return &DocumentService{documents: documents, events: events}
}

func (s *DocumentService) ListByClient(ctx context.Context, clientID string, limit int) ([]upload.Document, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: client_id is required", docvault_errors.ErrInvalidInput)
	}
	return s.documents.ListByClient(ctx, clientID, clampLimit(limit))
}

func (s *DocumentService) GetByID(ctx context.Context, id uuid.UUID) (upload.Document, error) {
	return s.documents.GetByID(ctx, id)
}

// Events returns the audit trail of a document, oldest first.
func (s *DocumentService) Events(ctx context.Context, id uuid.UUID, limit int) ([]upload.AuditEvent, error) {
	if _, err := s.documents.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.events.ListByDocument(ctx, id, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
