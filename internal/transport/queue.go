// ABOUTME: Bounded FIFO queue for frames written while the socket is down
// ABOUTME: Oldest frames are dropped on overflow; flushed on (re)connect

package transport

import "sync"

const defaultQueueSize = 100

// FrameQueue buffers encoded frames that could not be written: control frames
// issued while disconnected and frames whose write failed mid-session. It is
// flushed in order when the link comes back. Chat messages do not normally
// pass through here — the outbound queue checks connection state first and
// falls back to REST.
type FrameQueue struct {
	mu     sync.Mutex
	frames [][]byte
	max    int
}

// NewFrameQueue creates a queue holding at most max frames; max <= 0 uses the
// default of 100.
func NewFrameQueue(max int) *FrameQueue {
	if max <= 0 {
		max = defaultQueueSize
	}
	return &FrameQueue{max: max}
}

// Enqueue appends a frame, evicting the oldest when full.
func (q *FrameQueue) Enqueue(frame []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) >= q.max {
		q.frames = q.frames[1:]
	}
	q.frames = append(q.frames, frame)
}

// Drain removes and returns all queued frames in insertion order.
func (q *FrameQueue) Drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.frames
	q.frames = nil
	return out
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Clear discards all queued frames.
func (q *FrameQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = nil
}
