package transfer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docvault/internal/domain/upload"
	"docvault/internal/flags"
	"docvault/internal/hashing"
	"docvault/internal/storage"
	"docvault/internal/verify"

	"github.com/google/uuid"
)

type fakeQuota struct {
	cfg    upload.QuotaConfig
	err    error
	policy flags.TransferPolicy
}

func (q *fakeQuota) Resolve(ctx context.Context, clientID string) (flags.SessionConfig, error) {
	return flags.SessionConfig{Quota: q.cfg, Policy: q.policy}, q.err
}

type fakeDocs struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]upload.Document
	created   int
	deleted   []uuid.UUID
	progress  []int
	statuses  []upload.DocumentStatus
	createErr error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[uuid.UUID]upload.Document{}}
}

func (f *fakeDocs) Create(ctx context.Context, doc *upload.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	doc.ID = uuid.New()
	f.docs[doc.ID] = *doc
	f.created++
	return nil
}

func (f *fakeDocs) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeDocs) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progress)
	doc := f.docs[id]
	doc.UploadProgress = progress
	f.docs[id] = doc
	return nil
}

func (f *fakeDocs) UpdateStatus(ctx context.Context, id uuid.UUID, status upload.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setStatus(id, status)
	return nil
}

func (f *fakeDocs) MarkUploadCompleted(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setStatus(id, upload.DocumentStatusVerifying)
	return nil
}

func (f *fakeDocs) MarkFailed(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setStatus(id, upload.DocumentStatusFailed)
	return nil
}

func (f *fakeDocs) setStatus(id uuid.UUID, status upload.DocumentStatus) {
	f.statuses = append(f.statuses, status)
	doc := f.docs[id]
	doc.UploadStatus = status
	f.docs[id] = doc
}

func (f *fakeDocs) get(id uuid.UUID) (upload.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	return doc, ok
}

func (f *fakeDocs) snapshot() (created int, deleted []uuid.UUID, progress []int, statuses []upload.DocumentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, append([]uuid.UUID(nil), f.deleted...), append([]int(nil), f.progress...),
		append([]upload.DocumentStatus(nil), f.statuses...)
}

type uploadHandler func(call int, ctx context.Context, in storage.UploadInput, onProgress func(int)) (storage.UploadOutput, error)

// fakeBlob stores uploads in memory and serves their metadata back to the
// real verifier.
type fakeBlob struct {
	mu        sync.Mutex
	calls     []storage.UploadInput
	stored    map[string][]byte
	active    int
	sizeDelta int64
	noDigest  bool
	digest    string
	handler   uploadHandler
	onCall    func(in storage.UploadInput)
	onHead    func(ctx context.Context) error
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{stored: map[string][]byte{}}
}

func (b *fakeBlob) Upload(ctx context.Context, in storage.UploadInput, onProgress func(int)) (storage.UploadOutput, error) {
	b.mu.Lock()
	b.calls = append(b.calls, in)
	n := len(b.calls)
	b.active++
	handler, onCall := b.handler, b.onCall
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.active--
		b.mu.Unlock()
	}()

	if onCall != nil {
		onCall(in)
	}
	if handler != nil {
		return handler(n, ctx, in, onProgress)
	}
	return b.store(ctx, in, onProgress)
}

func (b *fakeBlob) store(ctx context.Context, in storage.UploadInput, onProgress func(int)) (storage.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return storage.UploadOutput{}, err
	}
	for p := 5; p <= 100; p += 5 {
		if err := ctx.Err(); err != nil {
			return storage.UploadOutput{}, err
		}
		onProgress(p)
	}

	b.mu.Lock()
	b.stored[in.Key] = data
	b.mu.Unlock()
	return storage.UploadOutput{ObjectID: in.Key, ReportedSize: int64(len(data))}, nil
}

func (b *fakeBlob) GetObjectMetadata(ctx context.Context, key string) (storage.ObjectMetadata, error) {
	b.mu.Lock()
	data, ok := b.stored[key]
	delta, noDigest, digest, onHead := b.sizeDelta, b.noDigest, b.digest, b.onHead
	b.mu.Unlock()

	if onHead != nil {
		if err := onHead(ctx); err != nil {
			return storage.ObjectMetadata{}, err
		}
	}
	if !ok {
		return storage.ObjectMetadata{}, storage.ErrObjectNotFound
	}
	meta := storage.ObjectMetadata{Size: int64(len(data)) + delta}
	switch {
	case digest != "":
		meta.Digest = digest
	case !noDigest:
		meta.Digest = digestOf(data)
	}
	return meta, nil
}

func (b *fakeBlob) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBlob) activeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *fakeBlob) call(i int) storage.UploadInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[i]
}

func (b *fakeBlob) object(key string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stored[key]
}

type recordingMetrics struct {
	mu   sync.Mutex
	rows []upload.TransferMetrics
}

func (r *recordingMetrics) Record(ctx context.Context, s upload.Session, success bool, errMsg string) upload.TransferMetrics {
	m := upload.TransferMetrics{
		ClientID:     s.ClientID,
		FileSize:     s.FileSize,
		Method:       s.Method,
		RetryCount:   s.RetryCount,
		ChunksCount:  s.ChunksCount,
		Success:      success,
		ErrorMessage: errMsg,
	}
	r.mu.Lock()
	r.rows = append(r.rows, m)
	r.mu.Unlock()
	return m
}

func (r *recordingMetrics) all() []upload.TransferMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]upload.TransferMetrics(nil), r.rows...)
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingEvents) Log(ctx context.Context, eventType string, documentID *uuid.UUID, metadata map[string]any) {
	r.mu.Lock()
	r.types = append(r.types, eventType)
	r.mu.Unlock()
}

func (r *recordingEvents) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

// recorder collects every callback of one session.
type recorder struct {
	mu        sync.Mutex
	states    []upload.State
	progress  []int
	hash      []int
	completed []uuid.UUID
	errs      []error
	hashSeen  chan struct{}
	hashOnce  sync.Once
}

func newRecorder() *recorder {
	return &recorder{hashSeen: make(chan struct{})}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(p int) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
		OnHashProgress: func(p int, eta time.Duration, hasETA bool) {
			r.mu.Lock()
			r.hash = append(r.hash, p)
			r.mu.Unlock()
			r.hashOnce.Do(func() { close(r.hashSeen) })
		},
		OnStateChange: func(s upload.State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
		OnComplete: func(id uuid.UUID) {
			r.mu.Lock()
			r.completed = append(r.completed, id)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states) + len(r.progress) + len(r.hash) + len(r.completed) + len(r.errs)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) stateList() []upload.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]upload.State(nil), r.states...)
}

// sizedSource reports a size without holding the bytes.
type sizedSource struct {
	name    string
	mime    string
	size    int64
	openErr error
	opens   atomic.Int32
}

func (s *sizedSource) Name() string     { return s.name }
func (s *sizedSource) Size() int64      { return s.size }
func (s *sizedSource) MimeType() string { return s.mime }

func (s *sizedSource) Open() (upload.Content, error) {
	s.opens.Add(1)
	return nil, s.openErr
}

// slowSource hands out 8 bytes per read so hashing takes a while.
type slowSource struct {
	*upload.BytesSource
	data []byte
}

type slowContent struct {
	*bytes.Reader
}

func (c slowContent) Read(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	if len(p) > 8 {
		p = p[:8]
	}
	return c.Reader.Read(p)
}

func (c slowContent) Close() error { return nil }

func (s slowSource) Open() (upload.Content, error) {
	return slowContent{bytes.NewReader(s.data)}, nil
}

type harness struct {
	blob    *fakeBlob
	docs    *fakeDocs
	quota   *fakeQuota
	metrics *recordingMetrics
	events  *recordingEvents
	hasher  Hasher
}

func newHarness() *harness {
	return &harness{
		blob: newFakeBlob(),
		docs: newFakeDocs(),
		quota: &fakeQuota{
			cfg: upload.QuotaConfig{
				MaxFileSizeBytes: 5 * gib,
				ClientQuotaBytes: 10 * gib,
				Plan:             upload.PlanPro,
			},
			policy: flags.TransferPolicy{MultipartEnabled: true, MultipartThresholdBytes: 100 * 1024 * 1024},
		},
		metrics: &recordingMetrics{},
		events:  &recordingEvents{},
		hasher:  hashing.NewComputer(0, 0),
	}
}

func (h *harness) manager(opts Options) *Manager {
	return NewManager(Deps{
		Blob:      h.blob,
		Quota:     h.quota,
		Documents: h.docs,
		Hasher:    h.hasher,
		Verifier:  verify.NewVerifier(h.blob, nil, nil),
		Metrics:   h.metrics,
		Events:    h.events,
	}, opts)
}

const gib = 1024 * 1024 * 1024

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func waitDone(t *testing.T, m *Manager) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not finish, state %s", m.Key(), m.Snapshot().State)
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}
