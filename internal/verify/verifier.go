package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docvault/internal/domain/upload"
	"docvault/internal/storage"
	docvault_errors "docvault/pkg/errors"
	"docvault/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// SizeTolerance absorbs store-side padding differences.
	SizeTolerance = 1024

	Provider = "s3"
	Method   = "head_object_exact_key"
)

type MetadataFetcher interface {
	GetObjectMetadata(ctx context.Context, key string) (storage.ObjectMetadata, error)
}

type Store interface {
	SaveVerification(ctx context.Context, id uuid.UUID, metadata json.RawMessage, verifiedAt time.Time) error
}

type Verifier struct {
	fetcher MetadataFetcher
	store   Store
	log     *logger.Logger
	now     func() time.Time
}

// NewVerifier builds a verifier. store may be nil, in which case results
// are not persisted.
func NewVerifier(fetcher MetadataFetcher, store Store, log *logger.Logger) *Verifier {
	if log == nil {
		log = logger.Nop()
	}
	return &Verifier{fetcher: fetcher, store: store, log: log, now: time.Now}
}

// Verify compares the stored object against the expected size and digest.
// A missing object is reported as a failed result, any other metadata error
// is returned.
func (v *Verifier) Verify(ctx context.Context, documentID uuid.UUID, objectID string, expectedSize int64, expectedHash string) (upload.VerificationResult, error) {
	result := upload.VerificationResult{
		ExpectedSize: expectedSize,
		ExpectedHash: expectedHash,
	}

	meta, err := v.fetcher.GetObjectMetadata(ctx, objectID)
	if err != nil {
		if errors.Is(err, docvault_errors.ErrObjectNotFound) {
			result.FailureReason = upload.ReasonObjectNotFound
			return result, nil
		}
		return result, fmt.Errorf("fetch metadata of %s: %w", objectID, err)
	}

	result.ActualSize = meta.Size
	result.ActualHash = meta.Digest
	result.FailureReason = Compare(expectedSize, meta.Size, expectedHash, meta.Digest)
	result.Verified = result.FailureReason == upload.ReasonNone

	if !result.Verified {
		return result, nil
	}

	v.persist(ctx, documentID, objectID, expectedHash, meta)
	return result, nil
}

// Compare applies the size tolerance and digest rules. A differing remote
// digest wins over the size outcome; no remote digest means size only.
func Compare(expectedSize, actualSize int64, expectedHash, actualHash string) upload.FailureReason {
	if actualHash != "" && actualHash != expectedHash {
		return upload.ReasonHashMismatch
	}
	diff := actualSize - expectedSize
	if diff < 0 {
		diff = -diff
	}
	if diff > SizeTolerance {
		return upload.ReasonSizeMismatch
	}
	return upload.ReasonNone
}

// Err converts a failed result into a sentinel-backed error, nil when verified.
func Err(r upload.VerificationResult) error {
	switch r.FailureReason {
	case upload.ReasonNone:
		if r.Verified {
			return nil
		}
		return errors.New("verification failed")
	case upload.ReasonSizeMismatch:
		return fmt.Errorf("%w: expected %d bytes, got %d", docvault_errors.ErrSizeMismatch, r.ExpectedSize, r.ActualSize)
	case upload.ReasonHashMismatch:
		return fmt.Errorf("%w: expected %s, got %s", docvault_errors.ErrHashMismatch, r.ExpectedHash, r.ActualHash)
	case upload.ReasonObjectNotFound:
		return docvault_errors.ErrObjectNotFound
	}
	return fmt.Errorf("verification failed: %s", r.FailureReason)
}

func (v *Verifier) persist(ctx context.Context, documentID uuid.UUID, objectID, digest string, meta storage.ObjectMetadata) {
	if v.store == nil || documentID == uuid.Nil {
		return
	}

	at := v.now().UTC()
	raw, err := json.Marshal(upload.VerificationMetadata{
		Provider:     Provider,
		ObjectID:     objectID,
		Digest:       digest,
		RemoteDigest: meta.Digest,
		ActualSize:   meta.Size,
		Method:       Method,
		VerifiedAt:   at,
		AccessLinks:  meta.AccessLinks,
	})
	if err != nil {
		v.log.Ctx(ctx).Warn("failed to encode verification metadata", zap.Error(err))
		return
	}

	if err := v.store.SaveVerification(ctx, documentID, raw, at); err != nil {
		v.log.Ctx(ctx).Warn("failed to persist verification metadata",
			zap.String("document_id", documentID.String()), zap.Error(err))
	}
}
