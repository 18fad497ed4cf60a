package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"docvault/internal/domain/upload"
	"docvault/internal/storage"
	docvault_errors "docvault/pkg/errors"
	"docvault/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubFetcher struct {
	meta storage.ObjectMetadata
	err  error
	keys []string
}

func (s *stubFetcher) GetObjectMetadata(ctx context.Context, key string) (storage.ObjectMetadata, error) {
	s.keys = append(s.keys, key)
	return s.meta, s.err
}

type savedVerification struct {
	id   uuid.UUID
	meta json.RawMessage
	at   time.Time
}

type stubStore struct {
	saved []savedVerification
	err   error
}

func (s *stubStore) SaveVerification(ctx context.Context, id uuid.UUID, metadata json.RawMessage, verifiedAt time.Time) error {
	s.saved = append(s.saved, savedVerification{id: id, meta: metadata, at: verifiedAt})
	return s.err
}

const digest = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestCompare_SizeTolerance(t *testing.T) {
	tests := []struct {
		name   string
		actual int64
		want   upload.FailureReason
	}{
		{name: "exact", actual: 10_000, want: upload.ReasonNone},
		{name: "plus 1024", actual: 11_024, want: upload.ReasonNone},
		{name: "minus 1024", actual: 8_976, want: upload.ReasonNone},
		{name: "plus 1025", actual: 11_025, want: upload.ReasonSizeMismatch},
		{name: "minus 1025", actual: 8_975, want: upload.ReasonSizeMismatch},
		{name: "plus 2000", actual: 12_000, want: upload.ReasonSizeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(10_000, tt.actual, digest, ""))
		})
	}
}

func TestCompare_HashMismatchWins(t *testing.T) {
	assert.Equal(t, upload.ReasonHashMismatch, Compare(10, 10, digest, "other"))
	assert.Equal(t, upload.ReasonHashMismatch, Compare(10, 50_000, digest, "other"))
	assert.Equal(t, upload.ReasonNone, Compare(10, 10, digest, digest))
}

func TestVerify_SizeOnlySuccessPersistsMetadata(t *testing.T) {
	fetcher := &stubFetcher{meta: storage.ObjectMetadata{
		Size:        4096,
		AccessLinks: []string{"https://cdn.example.com/c/x/a.pdf"},
	}}
	store := &stubStore{}
	v := NewVerifier(fetcher, store, nil)
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	v.now = func() time.Time { return fixed }
	id := uuid.New()

	res, err := v.Verify(context.Background(), id, "c/x/a.pdf", 4096, digest)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, upload.ReasonNone, res.FailureReason)
	assert.Empty(t, res.ActualHash)
	assert.Equal(t, []string{"c/x/a.pdf"}, fetcher.keys)

	require.Len(t, store.saved, 1)
	assert.Equal(t, id, store.saved[0].id)
	assert.Equal(t, fixed, store.saved[0].at)

	var meta upload.VerificationMetadata
	require.NoError(t, json.Unmarshal(store.saved[0].meta, &meta))
	assert.Equal(t, Provider, meta.Provider)
	assert.Equal(t, Method, meta.Method)
	assert.Equal(t, "c/x/a.pdf", meta.ObjectID)
	assert.Equal(t, digest, meta.Digest)
	assert.Equal(t, int64(4096), meta.ActualSize)
	assert.Equal(t, []string{"https://cdn.example.com/c/x/a.pdf"}, meta.AccessLinks)
}

func TestVerify_SizeMismatch(t *testing.T) {
	store := &stubStore{}
	v := NewVerifier(&stubFetcher{meta: storage.ObjectMetadata{Size: 12_000}}, store, nil)

	res, err := v.Verify(context.Background(), uuid.New(), "k", 10_000, digest)
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, upload.ReasonSizeMismatch, res.FailureReason)
	assert.Equal(t, int64(12_000), res.ActualSize)
	assert.Empty(t, store.saved)
	assert.ErrorIs(t, Err(res), docvault_errors.ErrSizeMismatch)
}

func TestVerify_HashMismatch(t *testing.T) {
	v := NewVerifier(&stubFetcher{meta: storage.ObjectMetadata{Size: 10, Digest: "deadbeef"}}, nil, nil)

	res, err := v.Verify(context.Background(), uuid.New(), "k", 10, digest)
	require.NoError(t, err)
	assert.Equal(t, upload.ReasonHashMismatch, res.FailureReason)
	assert.Equal(t, "deadbeef", res.ActualHash)
	assert.ErrorIs(t, Err(res), docvault_errors.ErrHashMismatch)
}

func TestVerify_ObjectNotFound(t *testing.T) {
	fetcher := &stubFetcher{err: fmt.Errorf("k: %w", storage.ErrObjectNotFound)}
	v := NewVerifier(fetcher, nil, nil)

	res, err := v.Verify(context.Background(), uuid.New(), "k", 10, digest)
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, upload.ReasonObjectNotFound, res.FailureReason)
	assert.ErrorIs(t, Err(res), docvault_errors.ErrObjectNotFound)
}

func TestVerify_FetchError(t *testing.T) {
	v := NewVerifier(&stubFetcher{err: errors.New("connection reset")}, nil, nil)

	res, err := v.Verify(context.Background(), uuid.New(), "k", 10, digest)
	assert.ErrorContains(t, err, "connection reset")
	assert.False(t, res.Verified)
}

func TestVerify_PersistFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := &stubStore{err: errors.New("db down")}
	v := NewVerifier(&stubFetcher{meta: storage.ObjectMetadata{Size: 10, Digest: digest}}, store, logger.FromZap(zap.New(core)))

	res, err := v.Verify(context.Background(), uuid.New(), "k", 10, digest)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, 1, logs.FilterMessage("failed to persist verification metadata").Len())
}

func TestErr_Verified(t *testing.T) {
	assert.NoError(t, Err(upload.VerificationResult{Verified: true}))
	assert.Error(t, Err(upload.VerificationResult{}))
}
