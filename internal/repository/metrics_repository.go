package repository

import (
	"context"
	"database/sql"
	"fmt"

	"docvault/internal/domain/upload"

	"github.com/google/uuid"
)

type PostgresMetricsRepository struct {
	db DBTX
}

func NewMetricsRepository(db DBTX) MetricsRepository {
	return &PostgresMetricsRepository{db: db}
}

func (r *PostgresMetricsRepository) Insert(ctx context.Context, m upload.TransferMetrics) error {
	var documentID uuid.NullUUID
	if id, err := uuid.Parse(m.DocumentID); err == nil {
		documentID = uuid.NullUUID{UUID: id, Valid: true}
	}
	var errorMessage sql.NullString
	if m.ErrorMessage != "" {
		errorMessage = sql.NullString{String: m.ErrorMessage, Valid: true}
	}

	query := `
		INSERT INTO upload_metrics (user_id, client_id, document_id, file_size, upload_method,
			hash_duration_ms, upload_duration_ms, upload_speed_mbps, retry_count, success,
			error_message, user_agent, chunks_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		m.UploadedBy, m.ClientID, documentID, m.FileSize, string(m.Method),
		m.HashDurationMS, m.UploadDurationMS, m.SpeedMbps, m.RetryCount, m.Success,
		errorMessage, m.Agent, m.ChunksCount,
	)
	if err != nil {
		return fmt.Errorf("insert upload metrics: %w", err)
	}
	return nil
}
