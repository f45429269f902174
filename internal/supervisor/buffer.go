package supervisor

import (
	"sync"
)

// outputBuffer is a thread-safe, bounded byte buffer that keeps the tail of
// the output and drops older bytes once max is exceeded. onWrite is called
// for every non-empty write and feeds the liveness timer.
type outputBuffer struct {
	mu      sync.Mutex
	data    []byte
	max     int
	written int64 // total bytes ever written (including dropped)
	onWrite func()
}

func newOutputBuffer(maxBytes int, onWrite func()) *outputBuffer {
	return &outputBuffer{
		data:    make([]byte, 0, min(maxBytes, 4096)),
		max:     maxBytes,
		onWrite: onWrite,
	}
}

// Write implements io.Writer.
func (b *outputBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	b.data = append(b.data, p...)
	b.written += int64(len(p))
	if len(b.data) > b.max {
		b.data = append(b.data[:0], b.data[len(b.data)-b.max:]...)
	}
	b.mu.Unlock()

	if b.onWrite != nil {
		b.onWrite()
	}
	return len(p), nil
}

// String returns the buffered tail.
func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// Truncated reports whether bytes were dropped.
func (b *outputBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written > int64(len(b.data))
}

// TotalWritten returns the total number of bytes ever written.
func (b *outputBuffer) TotalWritten() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}
