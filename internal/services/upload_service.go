package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"docvault/internal/domain/upload"
	"docvault/internal/redis"
	"docvault/internal/transfer"
	docvault_errors "docvault/pkg/errors"
	"docvault/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ManagerFactory builds the transfer manager of one session.
type ManagerFactory func(key string) *transfer.Manager

type StartLimiter interface {
	AllowUpload(ctx context.Context, clientID string) (*redis.RateLimitResult, error)
}

// Notifier receives every session update, typically the websocket hub.
type Notifier interface {
	Notify(update ProgressUpdate)
}

// Update types
const (
	UpdateSnapshot     = "snapshot"
	UpdateState        = "state"
	UpdateProgress     = "upload_progress"
	UpdateHashProgress = "hash_progress"
	UpdateCompleted    = "completed"
	UpdateError        = "error"
)

type ProgressUpdate struct {
	SessionKey   string       `json:"session_key"`
	Type         string       `json:"type"`
	State        upload.State `json:"state"`
	Progress     int          `json:"upload_progress"`
	HashProgress int          `json:"hash_progress"`
	ETASeconds   *float64     `json:"eta_seconds,omitempty"`
	DocumentID   string       `json:"document_id,omitempty"`
	Error        string       `json:"error,omitempty"`
}

type StartUploadInput struct {
	Path       string
	ClientID   string
	UploadedBy string
}

type UploadServiceConfig struct {
	Root         string
	MaxActive    int
	KeepFinished time.Duration
}

// UploadService owns the transfer managers of this agent, keyed by session key.
type UploadService struct {
	newManager ManagerFactory
	cfg        UploadServiceConfig
	limiter    StartLimiter
	notifier   Notifier
	log        *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*transfer.Manager
	// reserved counts starts that passed the session cap but are not in
	// sessions yet.
	reserved int
}

// NewUploadService builds the service. limiter and notifier may be nil.
func NewUploadService(factory ManagerFactory, cfg UploadServiceConfig, limiter StartLimiter, notifier Notifier, log *logger.Logger) *UploadService {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.KeepFinished <= 0 {
		cfg.KeepFinished = 10 * time.Minute
	}
	return &UploadService{
		newManager: factory,
		cfg:        cfg,
		limiter:    limiter,
		notifier:   notifier,
		log:        log,
		sessions:   make(map[string]*transfer.Manager),
	}
}

// Start opens the file under the upload root and starts a session for it.
// Validation failures are returned together with the failed session.
func (s *UploadService) Start(ctx context.Context, in StartUploadInput) (upload.Session, error) {
	if in.Path == "" || in.ClientID == "" {
		return upload.Session{}, fmt.Errorf("%w: path and client_id are required", docvault_errors.ErrInvalidInput)
	}

	path, err := ResolvePath(s.cfg.Root, in.Path)
	if err != nil {
		return upload.Session{}, err
	}

	if err := s.reserve(); err != nil {
		return upload.Session{}, err
	}
	registered := false
	defer func() {
		if !registered {
			s.release()
		}
	}()

	if s.limiter != nil {
		result, err := s.limiter.AllowUpload(ctx, in.ClientID)
		if err != nil {
			return upload.Session{}, fmt.Errorf("%w: %v", docvault_errors.ErrServiceUnavailable, err)
		}
		if !result.Allowed {
			return upload.Session{}, fmt.Errorf("%w: retry in %s", docvault_errors.ErrRateLimited, result.ResetIn)
		}
	}

	src, err := upload.OpenLocalFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return upload.Session{}, fmt.Errorf("%w: %s", docvault_errors.ErrNotFound, in.Path)
		}
		return upload.Session{}, fmt.Errorf("%w: %v", docvault_errors.ErrInvalidInput, err)
	}

	key := uuid.NewString()
	m := s.newManager(key)

	s.mu.Lock()
	s.sessions[key] = m
	s.reserved--
	s.mu.Unlock()
	registered = true

	if err := m.StartUpload(ctx, src, in.ClientID, in.UploadedBy, s.callbacks(m)); err != nil {
		go s.forgetWhenDone(m)
		return m.Snapshot(), err
	}

	s.log.Ctx(ctx).Info("upload session started",
		zap.String("session_key", key), zap.String("client_id", in.ClientID), zap.String("file", src.Name()))

	go s.forgetWhenDone(m)
	return m.Snapshot(), nil
}

func (s *UploadService) Get(key string) (upload.Session, error) {
	m, err := s.manager(key)
	if err != nil {
		return upload.Session{}, err
	}
	return m.Snapshot(), nil
}

// List returns every known session, oldest first.
func (s *UploadService) List() []upload.Session {
	s.mu.RLock()
	out := make([]upload.Session, 0, len(s.sessions))
	for _, m := range s.sessions {
		out = append(out, m.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (s *UploadService) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked()
}

func (s *UploadService) activeLocked() int {
	n := 0
	for _, m := range s.sessions {
		if !m.Snapshot().State.IsTerminal() {
			n++
		}
	}
	return n
}

// reserve claims a slot under the session cap; release gives it back.
func (s *UploadService) reserve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxActive > 0 && s.activeLocked()+s.reserved >= s.cfg.MaxActive {
		return fmt.Errorf("%w: %d sessions already running", docvault_errors.ErrServiceUnavailable, s.cfg.MaxActive)
	}
	s.reserved++
	return nil
}

func (s *UploadService) release() {
	s.mu.Lock()
	s.reserved--
	s.mu.Unlock()
}

func (s *UploadService) Pause(ctx context.Context, key string) (upload.Session, error) {
	m, err := s.manager(key)
	if err != nil {
		return upload.Session{}, err
	}
	if err := m.PauseUpload(ctx); err != nil {
		return m.Snapshot(), err
	}
	s.notify(m, UpdateState, nil)
	return m.Snapshot(), nil
}

func (s *UploadService) Resume(ctx context.Context, key string) (upload.Session, error) {
	m, err := s.manager(key)
	if err != nil {
		return upload.Session{}, err
	}
	if err := m.ResumeUpload(ctx); err != nil {
		return m.Snapshot(), err
	}
	s.notify(m, UpdateState, nil)
	return m.Snapshot(), nil
}

func (s *UploadService) Cancel(ctx context.Context, key string) (upload.Session, error) {
	m, err := s.manager(key)
	if err != nil {
		return upload.Session{}, err
	}
	if err := m.CancelUpload(ctx); err != nil {
		return m.Snapshot(), err
	}
	s.notify(m, UpdateState, nil)
	return m.Snapshot(), nil
}

// Shutdown cancels every running session.
func (s *UploadService) Shutdown(ctx context.Context) {
	s.mu.RLock()
	running := make([]*transfer.Manager, 0, len(s.sessions))
	for _, m := range s.sessions {
		if !m.Snapshot().State.IsTerminal() {
			running = append(running, m)
		}
	}
	s.mu.RUnlock()

	for _, m := range running {
		if err := m.CancelUpload(ctx); err != nil {
			s.log.Ctx(ctx).Warn("failed to cancel session on shutdown", zap.String("session_key", m.Key()), zap.Error(err))
		}
	}
}

func (s *UploadService) manager(key string) (*transfer.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.sessions[key]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", key, docvault_errors.ErrNotFound)
	}
	return m, nil
}

// forgetWhenDone drops a finished session after the retention period.
func (s *UploadService) forgetWhenDone(m *transfer.Manager) {
	<-m.Done()
	time.AfterFunc(s.cfg.KeepFinished, func() {
		s.mu.Lock()
		delete(s.sessions, m.Key())
		s.mu.Unlock()
	})
}

func (s *UploadService) callbacks(m *transfer.Manager) transfer.Callbacks {
	return transfer.Callbacks{
		OnProgress: func(int) {
			s.notify(m, UpdateProgress, nil)
		},
		OnHashProgress: func(_ int, eta time.Duration, hasETA bool) {
			s.notify(m, UpdateHashProgress, func(u *ProgressUpdate) {
				if hasETA {
					secs := eta.Seconds()
					u.ETASeconds = &secs
				}
			})
		},
		OnStateChange: func(upload.State) {
			s.notify(m, UpdateState, nil)
		},
		OnComplete: func(id uuid.UUID) {
			s.notify(m, UpdateCompleted, func(u *ProgressUpdate) { u.DocumentID = id.String() })
		},
		OnError: func(err error) {
			s.notify(m, UpdateError, func(u *ProgressUpdate) { u.Error = err.Error() })
		},
	}
}

func (s *UploadService) notify(m *transfer.Manager, kind string, decorate func(*ProgressUpdate)) {
	if s.notifier == nil {
		return
	}
	u := SessionUpdate(kind, m.Snapshot())
	if decorate != nil {
		decorate(&u)
	}
	s.notifier.Notify(u)
}

// SessionUpdate describes the current state of s as an update of the given type.
func SessionUpdate(kind string, s upload.Session) ProgressUpdate {
	u := ProgressUpdate{
		SessionKey:   s.Key,
		Type:         kind,
		State:        s.State,
		Progress:     s.UploadProgress,
		HashProgress: s.HashProgress,
	}
	if s.HasDocument() {
		u.DocumentID = s.DocumentID.String()
	}
	if s.Err != nil {
		u.Error = s.Err.Error()
	}
	return u
}

// ResolvePath resolves p against root and rejects anything that escapes it,
// symlinks included.
func ResolvePath(root, p string) (string, error) {
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve upload root: %w", err)
	}
	if realRoot, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = realRoot
	}

	candidate := p
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(absRoot, candidate)
	}
	candidate = filepath.Clean(candidate)
	if real, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = real
	}

	rel, err := filepath.Rel(absRoot, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", docvault_errors.ErrPathOutsideRoot, p)
	}
	return candidate, nil
}
