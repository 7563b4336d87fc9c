// Package framebuf implements the bounded latest-wins frame buffer that
// decouples capture cadence from broadcast cadence.
//
// Drop frames, never queue: when the buffer is full the oldest pending
// frame is evicted to admit the newest, so a producer is never blocked and
// a slow consumer only ever sees bounded latency.
package framebuf

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("framebuf: buffer closed")

// Buffer is a capacity-bounded FIFO with evict-oldest overflow. Safe for
// concurrent use without caller-side locking.
type Buffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	frames   [][]byte
	capacity int
	dropped  uint64
	closed   bool
}

// New creates a Buffer holding at most capacity pending frames. A capacity
// below 1 is treated as 1.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	b := &Buffer{capacity: capacity}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Put inserts a frame without ever blocking. If the buffer is full the
// oldest pending frame is dropped.
func (b *Buffer) Put(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if len(b.frames) >= b.capacity {
		b.frames = b.frames[1:]
		b.dropped++
	}
	b.frames = append(b.frames, frame)
	b.cond.Signal()
}

// Next blocks until a frame is available and returns it, or returns
// ErrClosed once the buffer has been closed and drained.
func (b *Buffer) Next() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.frames) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.frames) == 0 {
		return nil, ErrClosed
	}
	frame := b.frames[0]
	b.frames = b.frames[1:]
	return frame, nil
}

// TryNext returns the next pending frame without blocking.
func (b *Buffer) TryNext() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return nil, false
	}
	frame := b.frames[0]
	b.frames = b.frames[1:]
	return frame, true
}

// Len returns the number of pending frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Dropped returns how many frames were evicted on overflow.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close wakes all blocked readers. Pending frames remain retrievable;
// subsequent Put calls are discarded.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.cond.Broadcast()
}
