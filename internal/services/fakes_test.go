package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"docvault/internal/domain/upload"
	"docvault/internal/flags"
	"docvault/internal/hashing"
	"docvault/internal/redis"
	"docvault/internal/storage"
	"docvault/internal/transfer"
	"docvault/internal/verify"
	docvault_errors "docvault/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memQuota struct{}

func (memQuota) Resolve(ctx context.Context, clientID string) (flags.SessionConfig, error) {
	return flags.SessionConfig{
		Quota: upload.QuotaConfig{
			MaxFileSizeBytes: 1 << 30,
			ClientQuotaBytes: 1 << 32,
			Plan:             upload.PlanPro,
		},
	}, nil
}

type memDocs struct {
	mu   sync.Mutex
	docs map[uuid.UUID]upload.Document
}

func newMemDocs() *memDocs {
	return &memDocs{docs: map[uuid.UUID]upload.Document{}}
}

func (d *memDocs) Create(ctx context.Context, doc *upload.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc.ID = uuid.New()
	d.docs[doc.ID] = *doc
	return nil
}

func (d *memDocs) Delete(ctx context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.docs, id)
	return nil
}

func (d *memDocs) update(id uuid.UUID, fn func(*upload.Document)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok {
		return docvault_errors.ErrNotFound
	}
	fn(&doc)
	d.docs[id] = doc
	return nil
}

func (d *memDocs) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return d.update(id, func(doc *upload.Document) { doc.UploadProgress = progress })
}

func (d *memDocs) UpdateStatus(ctx context.Context, id uuid.UUID, status upload.DocumentStatus) error {
	return d.update(id, func(doc *upload.Document) { doc.UploadStatus = status })
}

func (d *memDocs) MarkUploadCompleted(ctx context.Context, id uuid.UUID) error {
	return d.update(id, func(doc *upload.Document) { doc.UploadStatus = upload.DocumentStatusVerifying })
}

func (d *memDocs) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return d.update(id, func(doc *upload.Document) { doc.UploadStatus = upload.DocumentStatusFailed })
}

func (d *memDocs) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.docs)
}

// memBlob keeps objects in memory. When gate is set every upload blocks on it.
type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	gate    chan struct{}
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}}
}

func (b *memBlob) Upload(ctx context.Context, in storage.UploadInput, onProgress func(int)) (storage.UploadOutput, error) {
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return storage.UploadOutput{}, ctx.Err()
		}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return storage.UploadOutput{}, err
	}
	onProgress(50)
	onProgress(100)

	b.mu.Lock()
	b.objects[in.Key] = data
	b.mu.Unlock()
	return storage.UploadOutput{ObjectID: in.Key, ReportedSize: int64(len(data))}, nil
}

func (b *memBlob) GetObjectMetadata(ctx context.Context, key string) (storage.ObjectMetadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return storage.ObjectMetadata{}, storage.ErrObjectNotFound
	}
	sum := sha256.Sum256(data)
	return storage.ObjectMetadata{Size: int64(len(data)), Digest: hex.EncodeToString(sum[:])}, nil
}

type fakeLimiter struct {
	mu      sync.Mutex
	allowed bool
	err     error
	calls   []string
}

func (l *fakeLimiter) AllowUpload(ctx context.Context, clientID string) (*redis.RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, clientID)
	if l.err != nil {
		return nil, l.err
	}
	return &redis.RateLimitResult{Allowed: l.allowed, Limit: 10, ResetIn: time.Minute}, nil
}

func (l *fakeLimiter) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

type collectingNotifier struct {
	mu      sync.Mutex
	updates []ProgressUpdate
}

func (n *collectingNotifier) Notify(u ProgressUpdate) {
	n.mu.Lock()
	n.updates = append(n.updates, u)
	n.mu.Unlock()
}

func (n *collectingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.updates))
	for _, u := range n.updates {
		out = append(out, u.Type)
	}
	return out
}

func (n *collectingNotifier) last() ProgressUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.updates[len(n.updates)-1]
}

type fixture struct {
	root     string
	blob     *memBlob
	docs     *memDocs
	limiter  *fakeLimiter
	notifier *collectingNotifier
	service  *UploadService
}

func newFixture(t *testing.T, cfg UploadServiceConfig) *fixture {
	t.Helper()
	f := &fixture{
		root:     t.TempDir(),
		blob:     newMemBlob(),
		docs:     newMemDocs(),
		limiter:  &fakeLimiter{allowed: true},
		notifier: &collectingNotifier{},
	}
	cfg.Root = f.root

	factory := func(key string) *transfer.Manager {
		return transfer.NewManager(transfer.Deps{
			Blob:      f.blob,
			Quota:     memQuota{},
			Documents: f.docs,
			Hasher:    hashing.NewComputer(0, 0),
			Verifier:  verify.NewVerifier(f.blob, nil, nil),
		}, transfer.Options{Key: key, UploadTimeout: 5 * time.Second, VerifyTimeout: 5 * time.Second})
	}
	f.service = NewUploadService(factory, cfg, f.limiter, f.notifier, nil)
	t.Cleanup(func() { f.service.Shutdown(context.Background()) })
	return f
}

func (f *fixture) writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return name
}

func (f *fixture) waitState(t *testing.T, key string, want upload.State) upload.Session {
	t.Helper()
	var last upload.Session
	require.Eventually(t, func() bool {
		s, err := f.service.Get(key)
		if err != nil {
			return false
		}
		last = s
		return s.State == want
	}, 5*time.Second, 5*time.Millisecond, "session %s never reached %s", key, want)
	return last
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
