package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"docvault/internal/domain/upload"
	docvault_errors "docvault/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "inbox"), 0o755))
	realRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{name: "relative", path: "inbox/a.pdf", want: filepath.Join(realRoot, "inbox", "a.pdf")},
		{name: "dot segments inside", path: "inbox/../b.pdf", want: filepath.Join(realRoot, "b.pdf")},
		{name: "absolute inside", path: filepath.Join(realRoot, "c.pdf"), want: filepath.Join(realRoot, "c.pdf")},
		{name: "parent escape", path: "../etc/passwd", wantErr: docvault_errors.ErrPathOutsideRoot},
		{name: "absolute outside", path: "/etc/passwd", wantErr: docvault_errors.ErrPathOutsideRoot},
		{name: "root itself", path: ".", want: realRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePath(root, tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePath_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link.txt")))

	_, err := ResolvePath(root, "link.txt")
	assert.ErrorIs(t, err, docvault_errors.ErrPathOutsideRoot)
}

func TestStart_RequiresInput(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})

	_, err := f.service.Start(context.Background(), StartUploadInput{Path: "a.pdf"})
	assert.ErrorIs(t, err, docvault_errors.ErrInvalidInput)

	_, err = f.service.Start(context.Background(), StartUploadInput{ClientID: "client-1"})
	assert.ErrorIs(t, err, docvault_errors.ErrInvalidInput)
}

func TestStart_PathOutsideRoot(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})

	_, err := f.service.Start(context.Background(), StartUploadInput{Path: "../../etc/passwd", ClientID: "client-1"})
	assert.ErrorIs(t, err, docvault_errors.ErrPathOutsideRoot)
	assert.Empty(t, f.limiter.calls, "rejected paths must not consume rate limit")
}

func TestStart_MissingFile(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})

	_, err := f.service.Start(context.Background(), StartUploadInput{Path: "nope.pdf", ClientID: "client-1"})
	assert.ErrorIs(t, err, docvault_errors.ErrNotFound)
	assert.Empty(t, f.service.List())
}

func TestStart_RateLimited(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})
	name := f.writeFile(t, "a.pdf", []byte("%PDF-1.4 test"))
	f.limiter.allowed = false

	_, err := f.service.Start(context.Background(), StartUploadInput{Path: name, ClientID: "client-1"})
	assert.ErrorIs(t, err, docvault_errors.ErrRateLimited)
	assert.Equal(t, []string{"client-1"}, f.limiter.calls)
	assert.Empty(t, f.service.List())
}

func TestStart_LimiterUnavailable(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})
	name := f.writeFile(t, "a.pdf", []byte("%PDF-1.4 test"))
	f.limiter.err = errors.New("redis down")

	_, err := f.service.Start(context.Background(), StartUploadInput{Path: name, ClientID: "client-1"})
	assert.ErrorIs(t, err, docvault_errors.ErrServiceUnavailable)
}

func TestStart_RunsToVerified(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})
	data := []byte("%PDF-1.4 quarterly figures")
	name := f.writeFile(t, "reports/q3.pdf", data)

	s, err := f.service.Start(context.Background(), StartUploadInput{Path: name, ClientID: "client-1", UploadedBy: "user-1"})
	require.NoError(t, err)
	require.NotEmpty(t, s.Key)
	assert.Equal(t, "q3.pdf", s.FileName)
	assert.Equal(t, int64(len(data)), s.FileSize)

	final := f.waitState(t, s.Key, upload.StateVerified)
	assert.True(t, final.HasDocument())
	assert.Equal(t, 100, final.UploadProgress)
	assert.Equal(t, 0, f.service.ActiveCount())

	assert.Eventually(t, func() bool {
		return f.notifier.last().Type == UpdateCompleted
	}, time.Second, 5*time.Millisecond)
	last := f.notifier.last()
	assert.Equal(t, s.Key, last.SessionKey)
	assert.Equal(t, final.DocumentID.String(), last.DocumentID)
	assert.Contains(t, f.notifier.types(), UpdateHashProgress)
	assert.Contains(t, f.notifier.types(), UpdateProgress)
	assert.Contains(t, mustJSON(t, last), `"session_key":"`+s.Key+`"`)
}

func TestStart_MaxActiveSessions(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{MaxActive: 1})
	f.blob.gate = make(chan struct{})
	name := f.writeFile(t, "a.pdf", []byte("%PDF-1.4 a"))

	first, err := f.service.Start(context.Background(), StartUploadInput{Path: name, ClientID: "client-1"})
	require.NoError(t, err)
	f.waitState(t, first.Key, upload.StateUploading)

	_, err = f.service.Start(context.Background(), StartUploadInput{Path: name, ClientID: "client-1"})
	assert.ErrorIs(t, err, docvault_errors.ErrServiceUnavailable)

	close(f.blob.gate)
	f.waitState(t, first.Key, upload.StateVerified)

	second, err := f.service.Start(context.Background(), StartUploadInput{Path: name, ClientID: "client-1"})
	require.NoError(t, err)
	f.waitState(t, second.Key, upload.StateVerified)
}

func TestStart_CapacityRejectionKeepsRateLimit(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{MaxActive: 1})
	f.blob.gate = make(chan struct{})
	defer close(f.blob.gate)
	name := f.writeFile(t, "a.pdf", []byte("%PDF-1.4 a"))

	first, err := f.service.Start(context.Background(), StartUploadInput{Path: name, ClientID: "client-1"})
	require.NoError(t, err)
	f.waitState(t, first.Key, upload.StateUploading)
	require.Equal(t, 1, f.limiter.callCount())

	_, err = f.service.Start(context.Background(), StartUploadInput{Path: name, ClientID: "client-1"})
	assert.ErrorIs(t, err, docvault_errors.ErrServiceUnavailable)
	assert.Equal(t, 1, f.limiter.callCount())
}

func TestStart_ConcurrentStartsRespectMaxActive(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{MaxActive: 2})
	f.blob.gate = make(chan struct{})
	defer close(f.blob.gate)
	name := f.writeFile(t, "a.pdf", []byte("%PDF-1.4 a"))

	const callers = 64
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		started  int
		rejected int
	)
	ready := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			_, err := f.service.Start(context.Background(), StartUploadInput{Path: name, ClientID: "client-1"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				started++
				return
			}
			if errors.Is(err, docvault_errors.ErrServiceUnavailable) {
				rejected++
			}
		}()
	}
	close(ready)
	wg.Wait()

	assert.Equal(t, 2, started)
	assert.Equal(t, callers-2, rejected)
	assert.Equal(t, 2, f.service.ActiveCount())
	assert.Len(t, f.service.List(), 2)
}

func TestStart_FailedStartReleasesSlot(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{MaxActive: 1})
	name := f.writeFile(t, "a.pdf", []byte("%PDF-1.4 a"))

	_, err := f.service.Start(context.Background(), StartUploadInput{Path: "missing.pdf", ClientID: "client-1"})
	assert.ErrorIs(t, err, docvault_errors.ErrNotFound)

	f.limiter.mu.Lock()
	f.limiter.allowed = false
	f.limiter.mu.Unlock()
	_, err = f.service.Start(context.Background(), StartUploadInput{Path: name, ClientID: "client-1"})
	assert.ErrorIs(t, err, docvault_errors.ErrRateLimited)

	f.limiter.mu.Lock()
	f.limiter.allowed = true
	f.limiter.mu.Unlock()
	s, err := f.service.Start(context.Background(), StartUploadInput{Path: name, ClientID: "client-1"})
	require.NoError(t, err)
	f.waitState(t, s.Key, upload.StateVerified)
}

func TestPauseResumeCancel_UnknownSession(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})
	ctx := context.Background()

	_, err := f.service.Pause(ctx, "missing")
	assert.ErrorIs(t, err, docvault_errors.ErrNotFound)
	_, err = f.service.Resume(ctx, "missing")
	assert.ErrorIs(t, err, docvault_errors.ErrNotFound)
	_, err = f.service.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, docvault_errors.ErrNotFound)
	_, err = f.service.Get("missing")
	assert.ErrorIs(t, err, docvault_errors.ErrNotFound)
}

func TestPauseThenResume(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})
	f.blob.gate = make(chan struct{})
	name := f.writeFile(t, "a.pdf", []byte("%PDF-1.4 a"))
	ctx := context.Background()

	s, err := f.service.Start(ctx, StartUploadInput{Path: name, ClientID: "client-1"})
	require.NoError(t, err)
	f.waitState(t, s.Key, upload.StateUploading)

	paused, err := f.service.Pause(ctx, s.Key)
	require.NoError(t, err)
	assert.Equal(t, upload.StatePaused, paused.State)

	_, err = f.service.Pause(ctx, s.Key)
	assert.ErrorIs(t, err, docvault_errors.ErrInvalidTransition)

	resumed, err := f.service.Resume(ctx, s.Key)
	require.NoError(t, err)
	assert.Equal(t, upload.StateUploading, resumed.State)

	close(f.blob.gate)
	f.waitState(t, s.Key, upload.StateVerified)
}

func TestCancel_RemovesDocument(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})
	f.blob.gate = make(chan struct{})
	name := f.writeFile(t, "a.pdf", []byte("%PDF-1.4 a"))
	ctx := context.Background()

	s, err := f.service.Start(ctx, StartUploadInput{Path: name, ClientID: "client-1"})
	require.NoError(t, err)
	f.waitState(t, s.Key, upload.StateUploading)
	require.Equal(t, 1, f.docs.count())

	cancelled, err := f.service.Cancel(ctx, s.Key)
	require.NoError(t, err)
	assert.Equal(t, upload.StateCancelled, cancelled.State)
	assert.Equal(t, 0, f.docs.count())
	assert.Equal(t, 0, f.service.ActiveCount())
	assert.Equal(t, UpdateState, f.notifier.last().Type)
}

func TestFinishedSessionsAreForgotten(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{KeepFinished: 20 * time.Millisecond})
	name := f.writeFile(t, "a.pdf", []byte("%PDF-1.4 a"))

	s, err := f.service.Start(context.Background(), StartUploadInput{Path: name, ClientID: "client-1"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := f.service.Get(s.Key)
		return errors.Is(err, docvault_errors.ErrNotFound)
	}, 5*time.Second, 5*time.Millisecond)
}

func TestList_OldestFirst(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})
	name := f.writeFile(t, "a.pdf", []byte("%PDF-1.4 a"))
	ctx := context.Background()

	first, err := f.service.Start(ctx, StartUploadInput{Path: name, ClientID: "client-1"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := f.service.Start(ctx, StartUploadInput{Path: name, ClientID: "client-2"})
	require.NoError(t, err)

	list := f.service.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.Key, list[0].Key)
	assert.Equal(t, second.Key, list[1].Key)
}
