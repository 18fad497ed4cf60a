package hashing

import "time"

// throughputWindow keeps the bytes/second of the most recent chunks.
type throughputWindow struct {
	samples []float64
	next    int
	filled  bool
}

func newThroughputWindow(size int) *throughputWindow {
	return &throughputWindow{samples: make([]float64, size)}
}

func (w *throughputWindow) add(n int, elapsed time.Duration) {
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	w.samples[w.next] = float64(n) / elapsed.Seconds()
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.filled = true
	}
}

func (w *throughputWindow) average() float64 {
	count := w.next
	if w.filled {
		count = len(w.samples)
	}
	if count == 0 {
		return 0
	}

	var sum float64
	for _, s := range w.samples[:count] {
		sum += s
	}
	return sum / float64(count)
}

// remaining estimates the time left for the given number of bytes.
func (w *throughputWindow) remaining(bytesLeft int64) (time.Duration, bool) {
	if bytesLeft <= 0 {
		return 0, true
	}
	avg := w.average()
	if avg <= 0 {
		return 0, false
	}
	return time.Duration(float64(bytesLeft) / avg * float64(time.Second)), true
}
