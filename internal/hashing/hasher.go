package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"docvault/internal/domain/upload"
	docvault_errors "docvault/pkg/errors"
)

const (
	mib = 1024 * 1024
	gib = 1024 * mib

	DefaultETAWindow = 5
)

type Progress struct {
	Percent        int
	ETA            time.Duration
	HasETA         bool
	BytesProcessed int64
	TotalBytes     int64
}

// HashComputationError is returned by Task.Wait for any failure, including
// termination. It matches docvault_errors.ErrHashComputation and its cause.
type HashComputationError struct {
	Err error
}

func (e *HashComputationError) Error() string {
	return fmt.Sprintf("hash computation failed: %v", e.Err)
}

func (e *HashComputationError) Unwrap() []error {
	return []error{docvault_errors.ErrHashComputation, e.Err}
}

// ChunkSizeFor picks the read size for a file of the given length.
func ChunkSizeFor(size int64) int {
	switch {
	case size < 100*mib:
		return 8 * mib
	case size < gib:
		return 32 * mib
	default:
		return 64 * mib
	}
}

type Computer struct {
	chunkSize int
	etaWindow int
}

// NewComputer returns a SHA-256 computer. A chunkSize of 0 selects the
// size adaptively per file.
func NewComputer(chunkSize, etaWindow int) *Computer {
	if etaWindow <= 0 {
		etaWindow = DefaultETAWindow
	}
	return &Computer{chunkSize: chunkSize, etaWindow: etaWindow}
}

// Task is one running digest computation. Progress must be drained by the
// caller; the channel is closed when the computation ends.
type Task struct {
	progress chan Progress
	done     chan struct{}
	cancel   context.CancelFunc
	digest   string
	err      error
}

func (c *Computer) Start(ctx context.Context, src upload.Source) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		progress: make(chan Progress, 1),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	go func() {
		defer close(t.done)
		defer close(t.progress)
		defer cancel()

		digest, err := c.run(ctx, src, t.progress)
		if err != nil {
			t.err = &HashComputationError{Err: err}
			return
		}
		t.digest = digest
	}()

	return t
}

func (t *Task) Progress() <-chan Progress {
	return t.progress
}

// Wait blocks until the task ends and returns the hex digest.
func (t *Task) Wait() (string, error) {
	<-t.done
	return t.digest, t.err
}

// Terminate stops the task at the next chunk boundary and returns once the
// worker has exited. Calling it again is a no-op.
func (t *Task) Terminate() {
	t.cancel()
	<-t.done
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Compute runs a task to completion, forwarding progress to onProgress.
func (c *Computer) Compute(ctx context.Context, src upload.Source, onProgress func(Progress)) (string, error) {
	task := c.Start(ctx, src)
	for p := range task.Progress() {
		if onProgress != nil {
			onProgress(p)
		}
	}
	return task.Wait()
}

func (c *Computer) run(ctx context.Context, src upload.Source, out chan<- Progress) (string, error) {
	f, err := src.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src.Name(), err)
	}
	defer f.Close()

	total := src.Size()
	chunkSize := c.chunkSize
	if chunkSize <= 0 {
		chunkSize = ChunkSizeFor(total)
	}

	h := sha256.New()
	buf := make([]byte, chunkSize)
	eta := newThroughputWindow(c.etaWindow)
	var processed int64

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		started := time.Now()
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			h.Write(buf[:n])
			processed += int64(n)
			eta.add(n, time.Since(started))

			p := Progress{
				Percent:        percentOf(processed, total),
				BytesProcessed: processed,
				TotalBytes:     total,
			}
			p.ETA, p.HasETA = eta.remaining(total - processed)

			select {
			case out <- p:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("read %s: %w", src.Name(), readErr)
		}
	}

	if processed == 0 {
		// empty file still reports completion
		select {
		case out <- Progress{Percent: 100, HasETA: true}:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func percentOf(processed, total int64) int {
	if total <= 0 || processed >= total {
		return 100
	}
	return int(processed * 100 / total)
}
