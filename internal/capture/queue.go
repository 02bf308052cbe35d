package capture

import (
	"sync/atomic"
	"time"

	"arpguard/internal/model"
)

// FrameQueue is the bounded buffer between the capture collaborator and the
// detection engine. The producer side never blocks: when the queue is full
// the incoming frame is dropped (drop-newest) so the existing backlog drains
// in arrival order.
type FrameQueue struct {
	frames  chan model.Frame
	dropped atomic.Uint64
}

// DefaultCapacity bounds the queue when the config does not say otherwise.
const DefaultCapacity = 10000

// NewFrameQueue creates a queue with the given capacity.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FrameQueue{
		frames: make(chan model.Frame, capacity),
	}
}

// Enqueue offers a frame without blocking. It returns false when the frame
// was dropped because the queue is full.
func (q *FrameQueue) Enqueue(f model.Frame) bool {
	select {
	case q.frames <- f:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dequeue waits up to timeout for the next frame. The short poll lets the
// single consumer observe a stop signal promptly.
func (q *FrameQueue) Dequeue(timeout time.Duration) (model.Frame, bool) {
	select {
	case f := <-q.frames:
		return f, true
	case <-time.After(timeout):
		return model.Frame{}, false
	}
}

// Len returns the number of buffered frames.
func (q *FrameQueue) Len() int {
	return len(q.frames)
}

// Dropped returns the number of frames discarded on a full queue.
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}
