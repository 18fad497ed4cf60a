package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docvault/internal/domain/upload"
	docvault_errors "docvault/pkg/errors"

	"github.com/google/uuid"
)

const documentColumns = `id, client_id, document_name, document_type, file_size, file_path, file_hash,
	upload_status, upload_progress, uploaded_by, upload_started_at, upload_completed_at,
	verified_at, verification_metadata, created_at, updated_at`

type PostgresDocumentRepository struct {
	db DBTX
}

func NewDocumentRepository(db DBTX) DocumentRepository {
	return &PostgresDocumentRepository{db: db}
}

func (r *PostgresDocumentRepository) Create(ctx context.Context, d *upload.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UploadStatus == "" {
		d.UploadStatus = upload.DocumentStatusUploading
	}
	if d.UploadStartedAt.IsZero() {
		d.UploadStartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO client_documents (id, client_id, document_name, document_type, file_size, file_path,
			file_hash, upload_status, upload_progress, uploaded_by, upload_started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		d.ID, d.ClientID, d.DocumentName, d.DocumentType, d.FileSize, d.FilePath,
		d.FileHash, d.UploadStatus, d.UploadProgress, d.UploadedBy, d.UploadStartedAt,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return docvault_errors.ErrAlreadyExists
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (upload.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM client_documents WHERE id = $1`

	d, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return upload.Document{}, docvault_errors.ErrNotFound
		}
		return upload.Document{}, fmt.Errorf("select document: %w", err)
	}
	return d, nil
}

func (r *PostgresDocumentRepository) ListByClient(ctx context.Context, clientID string, limit int) ([]upload.Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `SELECT ` + documentColumns + ` FROM client_documents
		WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	var result []upload.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM client_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return expectOneRow(res, docvault_errors.ErrNotFound)
}

func (r *PostgresDocumentRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `UPDATE client_documents SET upload_progress = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, progress)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return expectOneRow(res, docvault_errors.ErrNotFound)
}

func (r *PostgresDocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status upload.DocumentStatus) error {
	query := `UPDATE client_documents SET upload_status = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return expectOneRow(res, docvault_errors.ErrNotFound)
}

func (r *PostgresDocumentRepository) MarkUploadCompleted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE client_documents
		SET upload_status = $2, upload_progress = 100, upload_completed_at = NOW(), updated_at = NOW()
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, upload.DocumentStatusVerifying)
	if err != nil {
		return fmt.Errorf("mark upload completed: %w", err)
	}
	return expectOneRow(res, docvault_errors.ErrNotFound)
}

func (r *PostgresDocumentRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return r.UpdateStatus(ctx, id, upload.DocumentStatusFailed)
}

func (r *PostgresDocumentRepository) SaveVerification(ctx context.Context, id uuid.UUID, metadata json.RawMessage, verifiedAt time.Time) error {
	query := `
		UPDATE client_documents
		SET upload_status = $2, verification_metadata = $3, verified_at = $4, updated_at = NOW()
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, upload.DocumentStatusVerified, []byte(metadata), verifiedAt)
	if err != nil {
		return fmt.Errorf("save verification: %w", err)
	}
	return expectOneRow(res, docvault_errors.ErrNotFound)
}

// ClientUsage sums the sizes of the client's documents that are not failed.
func (r *PostgresDocumentRepository) ClientUsage(ctx context.Context, clientID string) (int64, error) {
	var usage int64
	err := r.db.QueryRowContext(ctx, `SELECT calculate_client_storage_usage($1)`, clientID).Scan(&usage)
	if err != nil {
		return 0, fmt.Errorf("client storage usage: %w", err)
	}
	return usage, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (upload.Document, error) {
	var (
		d           upload.Document
		status      string
		completedAt sql.NullTime
		verifiedAt  sql.NullTime
		metadata    []byte
	)
	err := row.Scan(&d.ID, &d.ClientID, &d.DocumentName, &d.DocumentType, &d.FileSize, &d.FilePath,
		&d.FileHash, &status, &d.UploadProgress, &d.UploadedBy, &d.UploadStartedAt, &completedAt,
		&verifiedAt, &metadata, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return upload.Document{}, err
	}

	d.UploadStatus = upload.DocumentStatus(status)
	if completedAt.Valid {
		d.UploadCompletedAt = &completedAt.Time
	}
	if verifiedAt.Valid {
		d.VerifiedAt = &verifiedAt.Time
	}
	if len(metadata) > 0 {
		d.VerificationMetadata = json.RawMessage(metadata)
	}
	return d, nil
}
