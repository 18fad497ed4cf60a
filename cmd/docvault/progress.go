package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"docvault/internal/domain/upload"
	"docvault/internal/services"

	"github.com/dustin/go-humanize"
)

// progressPrinter renders session updates on a terminal and reports the
// final update on done.
type progressPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	size int64
	done chan services.ProgressUpdate
}

func newProgressPrinter(out io.Writer, size int64) *progressPrinter {
	return &progressPrinter{out: out, size: size, done: make(chan services.ProgressUpdate, 1)}
}

func (p *progressPrinter) Notify(u services.ProgressUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch u.Type {
	case services.UpdateHashProgress:
		fmt.Fprintf(p.out, "\rhashing   %3d%%%s", u.HashProgress, formatETA(u.ETASeconds))
	case services.UpdateProgress:
		sent := p.size * int64(u.Progress) / 100
		fmt.Fprintf(p.out, "\ruploading %3d%% (%s / %s)", u.Progress, humanize.IBytes(uint64(sent)), humanize.IBytes(uint64(p.size)))
	case services.UpdateState:
		fmt.Fprintf(p.out, "\n%s\n", u.State)
		if u.State == upload.StateCancelled {
			p.finish(u)
		}
	case services.UpdateCompleted, services.UpdateError:
		p.finish(u)
	}
}

func (p *progressPrinter) finish(u services.ProgressUpdate) {
	select {
	case p.done <- u:
	default:
	}
}

func formatETA(secs *float64) string {
	if secs == nil {
		return ""
	}
	return fmt.Sprintf(" (eta %s)", time.Duration(*secs*float64(time.Second)).Round(time.Second))
}
