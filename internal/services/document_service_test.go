package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"docvault/internal/domain/upload"
	docvault_errors "docvault/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDocumentRepo struct {
	docs      map[uuid.UUID]upload.Document
	lastLimit int
}

func (r *stubDocumentRepo) Create(ctx context.Context, d *upload.Document) error { return nil }
func (r *stubDocumentRepo) Delete(ctx context.Context, id uuid.UUID) error       { return nil }

func (r *stubDocumentRepo) GetByID(ctx context.Context, id uuid.UUID) (upload.Document, error) {
	d, ok := r.docs[id]
	if !ok {
		return upload.Document{}, docvault_errors.ErrNotFound
	}
	return d, nil
}

func (r *stubDocumentRepo) ListByClient(ctx context.Context, clientID string, limit int) ([]upload.Document, error) {
	r.lastLimit = limit
	var out []upload.Document
	for _, d := range r.docs {
		if d.ClientID == clientID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *stubDocumentRepo) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return nil
}

func (r *stubDocumentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status upload.DocumentStatus) error {
	return nil
}

func (r *stubDocumentRepo) MarkUploadCompleted(ctx context.Context, id uuid.UUID) error { return nil }
func (r *stubDocumentRepo) MarkFailed(ctx context.Context, id uuid.UUID) error          { return nil }

func (r *stubDocumentRepo) SaveVerification(ctx context.Context, id uuid.UUID, metadata json.RawMessage, verifiedAt time.Time) error {
	return nil
}

func (r *stubDocumentRepo) ClientUsage(ctx context.Context, clientID string) (int64, error) {
	return 0, nil
}

type stubEventRepo struct {
	events []upload.AuditEvent
	calls  int
}

func (r *stubEventRepo) WriteEvent(ctx context.Context, e upload.AuditEvent) error {
	r.events = append(r.events, e)
	return nil
}

func (r *stubEventRepo) ListByDocument(ctx context.Context, documentID uuid.UUID, limit int) ([]upload.AuditEvent, error) {
	r.calls++
	var out []upload.AuditEvent
	for _, e := range r.events {
		if e.DocumentID != nil && *e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestDocumentService_ListByClient(t *testing.T) {
	id := uuid.New()
	docs := &stubDocumentRepo{docs: map[uuid.UUID]upload.Document{
		id:         {ID: id, ClientID: "client-1"},
		uuid.New(): {ClientID: "client-2"},
	}}
	svc := NewDocumentService(docs, &stubEventRepo{})

	got, err := svc.ListByClient(context.Background(), "client-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, defaultListLimit, docs.lastLimit)

	_, err = svc.ListByClient(context.Background(), "client-1", 10_000)
	require.NoError(t, err)
	assert.Equal(t, maxListLimit, docs.lastLimit)

	_, err = svc.ListByClient(context.Background(), "", 10)
	assert.ErrorIs(t, err, docvault_errors.ErrInvalidInput)
}

func TestDocumentService_Events(t *testing.T) {
	id := uuid.New()
	other := uuid.New()
	docs := &stubDocumentRepo{docs: map[uuid.UUID]upload.Document{id: {ID: id}}}
	events := &stubEventRepo{events: []upload.AuditEvent{
		{Type: upload.EventHashStarted},
		{Type: upload.EventUploadStarted, DocumentID: &id},
		{Type: upload.EventUploadStarted, DocumentID: &other},
		{Type: upload.EventVerificationCompleted, DocumentID: &id},
	}}
	svc := NewDocumentService(docs, events)

	got, err := svc.Events(context.Background(), id, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, upload.EventUploadStarted, got[0].Type)
	assert.Equal(t, upload.EventVerificationCompleted, got[1].Type)

	_, err = svc.Events(context.Background(), uuid.New(), 0)
	assert.ErrorIs(t, err, docvault_errors.ErrNotFound)
	assert.Equal(t, 1, events.calls, "unknown documents must not hit the event log")
}
