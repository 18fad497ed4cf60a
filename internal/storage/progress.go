package storage

import (
	"io"
	"sync"
)

// progressTracker turns bytes read from one or more body readers into a
// single non-decreasing percent. Each reader reports its high-water offset,
// so a retried or re-read part is not counted twice.
type progressTracker struct {
	mu         sync.Mutex
	total      int64
	offsets    map[int64]int64
	lastReport int
	onProgress func(int)
}

func newProgressTracker(total int64, onProgress func(int)) *progressTracker {
	return &progressTracker{
		total:      total,
		offsets:    make(map[int64]int64),
		lastReport: -1,
		onProgress: onProgress,
	}
}

func (t *progressTracker) reader(r io.ReadSeeker, base int64) io.ReadSeeker {
	return &progressReader{r: r, base: base, tracker: t}
}

func (t *progressTracker) advance(base, read int64) {
	t.mu.Lock()
	if read <= t.offsets[base] {
		t.mu.Unlock()
		return
	}
	t.offsets[base] = read

	var sent int64
	for _, n := range t.offsets {
		sent += n
	}
	percent := 100
	if t.total > 0 && sent < t.total {
		percent = int(sent * 100 / t.total)
	}
	report := percent > t.lastReport
	if report {
		t.lastReport = percent
	}
	t.mu.Unlock()

	if report && t.onProgress != nil {
		t.onProgress(percent)
	}
}

func (t *progressTracker) finish() {
	t.mu.Lock()
	report := t.lastReport < 100
	t.lastReport = 100
	t.mu.Unlock()

	if report && t.onProgress != nil {
		t.onProgress(100)
	}
}

type progressReader struct {
	r       io.ReadSeeker
	base    int64
	pos     int64
	tracker *progressTracker
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.pos += int64(n)
		p.tracker.advance(p.base, p.pos)
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err == nil {
		p.pos = pos
	}
	return pos, err
}
