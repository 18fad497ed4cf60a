package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docvault/internal/domain/upload"
	"docvault/internal/eventlog"
	"docvault/internal/hashing"
	"docvault/internal/quota"
	"docvault/internal/storage"
	"docvault/internal/verify"
	docvault_errors "docvault/pkg/errors"
	"docvault/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager drives one upload session through validation, hashing, transfer
// and verification. The in-memory session is the source of truth; the
// document record is only written to.
type Manager struct {
	deps Deps
	opts Options
	log  *logger.Logger

	mu            sync.Mutex
	session       upload.Session
	src           upload.Source
	cb            Callbacks
	hashTask      *hashing.Task
	stopAttempt   context.CancelFunc
	attemptDone   chan struct{}
	lastPersisted int
	attempts      int

	emitMu      sync.Mutex
	cancelled   bool
	lastEmitted upload.State

	resume   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

func NewManager(deps Deps, opts Options) *Manager {
	if opts.Key == "" {
		opts.Key = uuid.NewString()
	}
	if opts.ProgressStep <= 0 {
		opts.ProgressStep = defaultProgressStep
	}
	if opts.PartSize <= 0 {
		opts.PartSize = defaultPartSize
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Events == nil {
		deps.Events = noopEvents{}
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}

	return &Manager{
		deps:    deps,
		opts:    opts,
		log:     deps.Log,
		session: upload.Session{Key: opts.Key, State: upload.StateIdle},
		resume:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (m *Manager) Key() string {
	return m.opts.Key
}

// Snapshot returns a copy of the session.
func (m *Manager) Snapshot() upload.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Done is closed once the session goroutine has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// ObjectKey builds the storage key <client>/<uuid>/<sanitized name>.
func ObjectKey(clientID, fileName string) string {
	return fmt.Sprintf("%s/%s/%s", clientID, uuid.NewString(), quota.SanitizeFileName(fileName))
}

// StartUpload validates src against the client's quota and, when valid,
// starts hashing in the background. Validation failures are reported
// through OnError before StartUpload returns them.
func (m *Manager) StartUpload(ctx context.Context, src upload.Source, clientID, uploadedBy string, cb Callbacks) error {
	if src == nil || clientID == "" {
		return fmt.Errorf("%w: source and client id are required", docvault_errors.ErrInvalidInput)
	}

	m.mu.Lock()
	if m.session.State != upload.StateIdle {
		state := m.session.State
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot start a session in state %s", docvault_errors.ErrInvalidTransition, state)
	}
	now := time.Now()
	m.src = src
	m.cb = cb
	m.session.ClientID = clientID
	m.session.UploadedBy = uploadedBy
	m.session.FileName = src.Name()
	m.session.FileSize = src.Size()
	m.session.MimeType = src.MimeType()
	m.session.StartedAt = now
	m.session.UpdatedAt = now
	m.session.State = upload.StateValidatingQuota
	m.mu.Unlock()

	base := context.WithValue(context.WithoutCancel(ctx), logger.SessionKeyKey, m.opts.Key)
	base = eventlog.WithActor(base, uploadedBy)

	m.emitState(upload.StateValidatingQuota)

	resolved, err := m.deps.Quota.Resolve(ctx, clientID)
	if err != nil {
		serr := upload.NewStageError(upload.StageValidation, "quota_unavailable", err)
		m.logValidationFailed(base, src, serr)
		m.failValidation(base, serr)
		return serr
	}

	res := quota.ValidateFile(src.MimeType(), src.Size(), resolved.Quota)
	if !res.Valid {
		serr := upload.NewStageError(upload.StageValidation, string(res.Action), res.Err)
		m.logValidationFailed(base, src, serr)
		m.failValidation(base, serr)
		return serr
	}

	method := resolved.Policy.MethodFor(src.Size())

	m.mu.Lock()
	if m.session.State != upload.StateValidatingQuota {
		m.mu.Unlock()
		m.closeDone()
		return fmt.Errorf("%w: session was cancelled", docvault_errors.ErrInvalidTransition)
	}
	m.session.Method = method
	m.session.ChunksCount = chunksFor(method, src.Size(), m.opts.PartSize)
	m.session.State = upload.StateHashing
	m.session.UpdatedAt = time.Now()
	m.session.Timings.HashStartedAt = time.Now()
	task := m.deps.Hasher.Start(base, src)
	m.hashTask = task
	m.mu.Unlock()

	go m.run(base, task)
	return nil
}

// PauseUpload aborts the in-flight transfer and marks the document paused.
// It returns once the network request has been released.
func (m *Manager) PauseUpload(ctx context.Context) error {
	m.mu.Lock()
	if !m.session.State.CanTransition(upload.StatePaused) {
		state := m.session.State
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot pause in state %s", docvault_errors.ErrInvalidTransition, state)
	}
	m.session.State = upload.StatePaused
	m.session.UpdatedAt = time.Now()
	stop, attemptDone := m.stopAttempt, m.attemptDone
	snap := m.session
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	if attemptDone != nil {
		<-attemptDone
	}

	ctx = m.actorContext(ctx, snap)
	if err := m.deps.Documents.UpdateStatus(ctx, snap.DocumentID, upload.DocumentStatusPaused); err != nil {
		m.log.Ctx(ctx).Warn("failed to mark document paused", zap.Error(err))
	}
	m.deps.Events.Log(ctx, upload.EventUploadPaused, &snap.DocumentID, map[string]any{
		"progress": snap.UploadProgress,
	})
	return nil
}

// ResumeUpload restarts a paused transfer. The whole file is sent again;
// the digest and document record are reused.
func (m *Manager) ResumeUpload(ctx context.Context) error {
	m.mu.Lock()
	if m.session.State != upload.StatePaused {
		state := m.session.State
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot resume in state %s", docvault_errors.ErrInvalidTransition, state)
	}
	m.session.State = upload.StateUploading
	m.session.UpdatedAt = time.Now()
	snap := m.session
	m.mu.Unlock()

	ctx = m.actorContext(ctx, snap)
	if err := m.deps.Documents.UpdateStatus(ctx, snap.DocumentID, upload.DocumentStatusUploading); err != nil {
		m.log.Ctx(ctx).Warn("failed to mark document uploading", zap.Error(err))
	}
	m.deps.Events.Log(ctx, upload.EventUploadResumed, &snap.DocumentID, map[string]any{
		"progress":    snap.UploadProgress,
		"resume_from": 0,
	})

	select {
	case m.resume <- struct{}{}:
	default:
	}
	return nil
}

// CancelUpload stops hashing or transfer, waits for the session goroutine
// to exit and deletes the document record if one was created. No callback
// fires once CancelUpload has started.
func (m *Manager) CancelUpload(ctx context.Context) error {
	m.mu.Lock()
	prev := m.session.State
	if prev.IsTerminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel in state %s", docvault_errors.ErrInvalidTransition, prev)
	}
	m.session.State = upload.StateCancelled
	m.session.UpdatedAt = time.Now()
	task := m.hashTask
	stop := m.stopAttempt
	m.mu.Unlock()

	m.emitMu.Lock()
	m.cancelled = true
	m.emitMu.Unlock()

	m.stopOnce.Do(func() { close(m.stop) })
	if stop != nil {
		stop()
	}
	if task != nil {
		task.Terminate()
	}
	if prev == upload.StateIdle {
		m.closeDone()
	}

	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	snap := m.Snapshot()
	ctx = m.actorContext(ctx, snap)

	var docID *uuid.UUID
	if snap.HasDocument() {
		docID = &snap.DocumentID
		if err := m.deps.Documents.Delete(ctx, snap.DocumentID); err != nil && !errors.Is(err, docvault_errors.ErrNotFound) {
			return fmt.Errorf("delete document %s: %w", snap.DocumentID, err)
		}
	}

	m.deps.Events.Log(ctx, upload.EventUploadCancelled, docID, map[string]any{
		"state":           string(prev),
		"upload_progress": snap.UploadProgress,
		"hash_progress":   snap.HashProgress,
	})
	m.log.Ctx(ctx).Info("upload cancelled", zap.String("state", string(prev)))
	return nil
}

func (m *Manager) run(ctx context.Context, task *hashing.Task) {
	defer m.closeDone()

	snap := m.Snapshot()
	m.emitState(upload.StateHashing)
	m.deps.Events.Log(ctx, upload.EventHashStarted, nil, map[string]any{
		"file_name": snap.FileName,
		"file_size": snap.FileSize,
	})

	digest, err := m.hash(task)
	if m.isCancelled() {
		return
	}
	if err != nil {
		serr := upload.NewStageError(upload.StageHash, "", err)
		m.deps.Events.Log(ctx, upload.EventHashFailed, nil, map[string]any{"error": err.Error()})
		m.fail(ctx, serr, true)
		return
	}

	snap = m.Snapshot()
	m.deps.Events.Log(ctx, upload.EventHashCompleted, nil, map[string]any{
		"file_hash":        digest,
		"hash_duration_ms": snap.Timings.HashDuration().Milliseconds(),
	})

	ctx, ok := m.createDocument(ctx)
	if !ok {
		return
	}

	if !m.transfer(ctx) {
		return
	}
	m.verify(ctx)
}

func (m *Manager) hash(task *hashing.Task) (string, error) {
	for p := range task.Progress() {
		m.mu.Lock()
		if p.Percent > m.session.HashProgress {
			m.session.HashProgress = p.Percent
		}
		m.mu.Unlock()

		m.emit(func(cb Callbacks) {
			if cb.OnHashProgress != nil {
				cb.OnHashProgress(p.Percent, p.ETA, p.HasETA)
			}
		})
	}

	digest, err := task.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashTask = nil
	m.session.Timings.HashEndedAt = time.Now()
	if err == nil {
		m.session.ContentHash = digest
		m.session.HashProgress = 100
	}
	return digest, err
}

// createDocument persists the document record with its digest and moves
// the session to Uploading. The returned context carries the document id.
func (m *Manager) createDocument(ctx context.Context) (context.Context, bool) {
	m.mu.Lock()
	if m.session.State != upload.StateHashing {
		m.mu.Unlock()
		return ctx, false
	}
	m.session.ObjectKey = ObjectKey(m.session.ClientID, m.session.FileName)
	doc := &upload.Document{
		ClientID:       m.session.ClientID,
		DocumentName:   m.session.FileName,
		DocumentType:   m.session.MimeType,
		FileSize:       m.session.FileSize,
		FilePath:       m.session.ObjectKey,
		FileHash:       m.session.ContentHash,
		UploadStatus:   upload.DocumentStatusUploading,
		UploadedBy:     m.session.UploadedBy,
		UploadProgress: 0,
	}
	m.mu.Unlock()

	if err := m.deps.Documents.Create(ctx, doc); err != nil {
		m.fail(ctx, upload.NewStageError(upload.StageTransfer, "document_create", err), true)
		return ctx, false
	}

	m.mu.Lock()
	m.session.DocumentID = doc.ID
	if !m.session.State.CanTransition(upload.StateUploading) || m.session.State != upload.StateHashing {
		// cancelled while the record was written; CancelUpload removes it
		m.mu.Unlock()
		return ctx, false
	}
	m.session.State = upload.StateUploading
	m.session.UpdatedAt = time.Now()
	m.mu.Unlock()

	ctx = context.WithValue(ctx, logger.DocumentIdKey, doc.ID.String())
	m.emitState(upload.StateUploading)
	return ctx, true
}

// transfer sends the file until it is stored, the session is cancelled or
// an attempt fails. A pause parks the loop until resume or cancel.
func (m *Manager) transfer(ctx context.Context) bool {
	for {
		m.mu.Lock()
		switch m.session.State {
		case upload.StateCancelled:
			m.mu.Unlock()
			return false
		case upload.StatePaused:
			m.mu.Unlock()
			m.emitState(upload.StatePaused)
			select {
			case <-m.resume:
			case <-m.stop:
				return false
			}
			continue
		}

		select {
		case <-m.resume:
		default:
		}
		attemptCtx, cancel := m.boundedContext(ctx, m.opts.UploadTimeout)
		attemptDone := make(chan struct{})
		m.stopAttempt, m.attemptDone = cancel, attemptDone
		if m.session.Timings.UploadStartedAt.IsZero() {
			m.session.Timings.UploadStartedAt = time.Now()
		}
		m.attempts++
		first := m.attempts == 1
		snap := m.session
		m.mu.Unlock()

		m.emitState(upload.StateUploading)
		if first {
			m.deps.Events.Log(ctx, upload.EventUploadStarted, &snap.DocumentID, map[string]any{
				"file_size":  snap.FileSize,
				"method":     string(snap.Method),
				"object_key": snap.ObjectKey,
			})
		}

		out, err := m.attempt(ctx, attemptCtx, snap)
		cancel()

		m.mu.Lock()
		m.stopAttempt, m.attemptDone = nil, nil
		state := m.session.State
		if err == nil && state == upload.StateUploading {
			m.session.Timings.UploadEndedAt = time.Now()
			m.session.UploadProgress = 100
			m.session.State = upload.StateVerifying
			m.session.UpdatedAt = time.Now()
		}
		snap = m.session
		m.mu.Unlock()
		close(attemptDone)

		switch {
		case state == upload.StateCancelled:
			return false
		case state == upload.StatePaused:
			continue
		case err != nil:
			m.deps.Events.Log(ctx, upload.EventUploadFailed, &snap.DocumentID, map[string]any{
				"error":    err.Error(),
				"progress": snap.UploadProgress,
			})
			m.fail(ctx, upload.NewStageError(upload.StageTransfer, "", err), true)
			return false
		}

		if err := m.deps.Documents.MarkUploadCompleted(ctx, snap.DocumentID); err != nil {
			m.log.Ctx(ctx).Warn("failed to mark upload completed", zap.Error(err))
		}
		m.deps.Events.Log(ctx, upload.EventUploadCompleted, &snap.DocumentID, map[string]any{
			"object_key":         out.ObjectID,
			"reported_size":      out.ReportedSize,
			"upload_duration_ms": snap.Timings.UploadDuration().Milliseconds(),
			"method":             string(snap.Method),
		})
		return true
	}
}

func (m *Manager) attempt(ctx, attemptCtx context.Context, snap upload.Session) (storage.UploadOutput, error) {
	body, err := m.src.Open()
	if err != nil {
		return storage.UploadOutput{}, fmt.Errorf("%w: open %s: %w", docvault_errors.ErrTransferFailed, snap.FileName, err)
	}
	defer body.Close()

	out, err := m.deps.Blob.Upload(attemptCtx, storage.UploadInput{
		Key:         snap.ObjectKey,
		Body:        body,
		Size:        snap.FileSize,
		ContentType: snap.MimeType,
		Digest:      snap.ContentHash,
		Multipart:   snap.Method == upload.MethodMultipart,
	}, func(percent int) {
		m.onUploadProgress(ctx, percent)
	})
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return out, fmt.Errorf("%w after %s: %w", docvault_errors.ErrTransferTimeout, m.opts.UploadTimeout, err)
		}
		return out, fmt.Errorf("%w: %w", docvault_errors.ErrTransferFailed, err)
	}
	return out, nil
}

func (m *Manager) onUploadProgress(ctx context.Context, percent int) {
	m.mu.Lock()
	if m.session.State != upload.StateUploading || percent <= m.session.UploadProgress {
		m.mu.Unlock()
		return
	}
	m.session.UploadProgress = percent
	m.session.UpdatedAt = time.Now()
	id := m.session.DocumentID
	persist := percent >= m.lastPersisted+m.opts.ProgressStep
	if persist {
		m.lastPersisted = percent - percent%m.opts.ProgressStep
	}
	m.mu.Unlock()

	m.emit(func(cb Callbacks) {
		if cb.OnProgress != nil {
			cb.OnProgress(percent)
		}
	})

	if !persist {
		return
	}
	if err := m.deps.Documents.UpdateProgress(ctx, id, percent); err != nil {
		m.log.Ctx(ctx).Warn("failed to persist upload progress", zap.Int("progress", percent), zap.Error(err))
	}
	m.deps.Events.Log(ctx, upload.EventUploadProgress, &id, map[string]any{"progress": percent})
}

func (m *Manager) verify(ctx context.Context) {
	m.emitState(upload.StateVerifying)

	verifyCtx, cancel := m.boundedContext(ctx, m.opts.VerifyTimeout)
	defer cancel()

	m.mu.Lock()
	if m.session.State != upload.StateVerifying {
		m.mu.Unlock()
		return
	}
	verifyDone := make(chan struct{})
	m.stopAttempt, m.attemptDone = cancel, verifyDone
	snap := m.session
	m.mu.Unlock()

	m.deps.Events.Log(ctx, upload.EventVerificationStarted, &snap.DocumentID, map[string]any{
		"object_key": snap.ObjectKey,
	})

	res, err := m.deps.Verifier.Verify(verifyCtx, snap.DocumentID, snap.ObjectKey, snap.FileSize, snap.ContentHash)

	m.mu.Lock()
	m.stopAttempt, m.attemptDone = nil, nil
	m.mu.Unlock()
	close(verifyDone)

	if m.isCancelled() {
		return
	}

	if err == nil && !res.Verified {
		err = verify.Err(res)
	}
	if err != nil {
		m.deps.Events.Log(ctx, upload.EventVerificationFailed, &snap.DocumentID, map[string]any{
			"reason":        string(res.FailureReason),
			"expected_size": res.ExpectedSize,
			"actual_size":   res.ActualSize,
			"error":         err.Error(),
		})
		m.fail(ctx, upload.NewStageError(upload.StageVerification, string(res.FailureReason), err), true)
		return
	}

	m.mu.Lock()
	if !m.session.State.CanTransition(upload.StateVerified) {
		m.mu.Unlock()
		return
	}
	m.session.State = upload.StateVerified
	m.session.UpdatedAt = time.Now()
	snap = m.session
	m.mu.Unlock()

	m.deps.Metrics.Record(ctx, snap, true, "")
	m.deps.Events.Log(ctx, upload.EventVerificationCompleted, &snap.DocumentID, map[string]any{
		"actual_size": res.ActualSize,
		"file_hash":   snap.ContentHash,
		"remote_hash": res.ActualHash,
	})
	m.log.Ctx(ctx).Info("upload verified",
		zap.String("object_key", snap.ObjectKey), zap.Int64("file_size", snap.FileSize))

	m.emitState(upload.StateVerified)
	m.emit(func(cb Callbacks) {
		if cb.OnComplete != nil {
			cb.OnComplete(snap.DocumentID)
		}
	})
}

func (m *Manager) logValidationFailed(ctx context.Context, src upload.Source, serr *upload.StageError) {
	m.deps.Events.Log(ctx, upload.EventValidationFailed, nil, map[string]any{
		"file_name": src.Name(),
		"file_size": src.Size(),
		"mime_type": src.MimeType(),
		"action":    serr.Kind,
		"error":     serr.Err.Error(),
	})
}

// failValidation ends a session that never left ValidatingQuota.
func (m *Manager) failValidation(ctx context.Context, serr *upload.StageError) {
	m.fail(ctx, serr, false)
	m.closeDone()
}

func (m *Manager) fail(ctx context.Context, serr *upload.StageError, record bool) {
	m.mu.Lock()
	if !m.session.State.CanTransition(upload.StateFailed) {
		m.mu.Unlock()
		return
	}
	m.session.State = upload.StateFailed
	m.session.Err = serr
	m.session.UpdatedAt = time.Now()
	snap := m.session
	m.mu.Unlock()

	if snap.HasDocument() {
		if err := m.deps.Documents.MarkFailed(ctx, snap.DocumentID); err != nil {
			m.log.Ctx(ctx).Warn("failed to mark document failed", zap.Error(err))
		}
	}
	if record {
		m.deps.Metrics.Record(ctx, snap, false, serr.Error())
	}
	m.log.Ctx(ctx).Warn("upload failed", zap.String("stage", string(serr.Stage)), zap.Error(serr))

	m.emitState(upload.StateFailed)
	m.emit(func(cb Callbacks) {
		if cb.OnError != nil {
			cb.OnError(serr)
		}
	})
}

func (m *Manager) emit(fn func(cb Callbacks)) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	if m.cancelled {
		return
	}
	fn(m.cb)
}

func (m *Manager) emitState(state upload.State) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	if m.cancelled || state == m.lastEmitted {
		return
	}
	m.lastEmitted = state
	if m.cb.OnStateChange != nil {
		m.cb.OnStateChange(state)
	}
}

func (m *Manager) isCancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.State == upload.StateCancelled
}

func (m *Manager) closeDone() {
	m.doneOnce.Do(func() { close(m.done) })
}

func (m *Manager) boundedContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (m *Manager) actorContext(ctx context.Context, snap upload.Session) context.Context {
	ctx = context.WithValue(ctx, logger.SessionKeyKey, m.opts.Key)
	return eventlog.WithActor(ctx, snap.UploadedBy)
}

func chunksFor(method upload.Method, size, partSize int64) int {
	if method != upload.MethodMultipart || size <= partSize {
		return 1
	}
	return int((size + partSize - 1) / partSize)
}
