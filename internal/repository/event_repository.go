package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docvault/internal/domain/upload"

	"github.com/google/uuid"
)

type PostgresEventRepository struct {
	db DBTX
}

func NewEventRepository(db DBTX) EventRepository {
	return &PostgresEventRepository{db: db}
}

func (r *PostgresEventRepository) WriteEvent(ctx context.Context, e upload.AuditEvent) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}

	var documentID uuid.NullUUID
	if e.DocumentID != nil {
		documentID = uuid.NullUUID{UUID: *e.DocumentID, Valid: true}
	}
	occurredAt := e.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO document_events_log (document_id, user_id, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, documentID, e.ActorID, e.Type, payload, occurredAt); err != nil {
		return fmt.Errorf("insert document event: %w", err)
	}
	return nil
}

func (r *PostgresEventRepository) ListByDocument(ctx context.Context, documentID uuid.UUID, limit int) ([]upload.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT document_id, user_id, event_type, metadata, created_at
		FROM document_events_log
		WHERE document_id = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("select document events: %w", err)
	}
	defer rows.Close()

	var result []upload.AuditEvent
	for rows.Next() {
		var (
			e       upload.AuditEvent
			docID   uuid.NullUUID
			payload []byte
		)
		if err := rows.Scan(&docID, &e.ActorID, &e.Type, &payload, &e.OccurredAt); err != nil {
			return nil, err
		}
		if docID.Valid {
			id := docID.UUID
			e.DocumentID = &id
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode event metadata: %w", err)
			}
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
