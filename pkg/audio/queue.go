package audio

import (
	"sync/atomic"
	"time"
)

// DefaultQueueCapacity is the frame capacity used when NewFrameQueue is
// given a non-positive capacity. At ~64 ms per frame this is roughly six
// seconds of audio headroom.
const DefaultQueueCapacity = 100

// FrameQueue is a bounded FIFO bridging a time-critical capture context and
// a cooperative consumer loop.
//
// The producer side ([FrameQueue.Enqueue]) is non-blocking and drop-on-full:
// when the queue is at capacity the incoming frame is discarded and the drop
// counter is incremented — the capture callback must never block. The
// consumer side ([FrameQueue.Dequeue]) waits with a timeout so housekeeping
// (silence timers, shutdown checks) keeps running even when no audio
// arrives.
//
// All methods are safe for concurrent use; the handoff between the capture
// context and the consumer goroutine goes through a buffered channel.
type FrameQueue struct {
	frames  chan Frame
	dropped atomic.Int64
	onDrop  func(Frame)
}

// QueueOption configures a [FrameQueue].
type QueueOption func(*FrameQueue)

// WithDropHandler registers cb to be invoked (on the producer's context)
// whenever a frame is dropped because the queue is full. The callback must
// be as cheap as the enqueue itself — typically a metric increment.
func WithDropHandler(cb func(Frame)) QueueOption {
	return func(q *FrameQueue) { q.onDrop = cb }
}

// NewFrameQueue creates a queue holding at most capacity frames.
// Non-positive capacities fall back to [DefaultQueueCapacity].
func NewFrameQueue(capacity int, opts ...QueueOption) *FrameQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	q := &FrameQueue{frames: make(chan Frame, capacity)}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue offers a frame to the queue without blocking. Returns false when
// the queue is full and the frame was dropped.
func (q *FrameQueue) Enqueue(f Frame) bool {
	select {
	case q.frames <- f:
		return true
	default:
		q.dropped.Add(1)
		if q.onDrop != nil {
			q.onDrop(f)
		}
		return false
	}
}

// Dequeue removes the oldest frame, waiting up to timeout for one to
// arrive. Returns ok=false on timeout. Dequeue is the sole consumer entry
// point; only one goroutine at a time may consume.
func (q *FrameQueue) Dequeue(timeout time.Duration) (Frame, bool) {
	select {
	case f := <-q.frames:
		return f, true
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case f := <-q.frames:
		return f, true
	case <-t.C:
		return Frame{}, false
	}
}

// Drain discards all buffered frames and returns how many were removed.
// Used when a session ends so stale audio never leaks into the next one.
func (q *FrameQueue) Drain() int {
	n := 0
	for {
		select {
		case <-q.frames:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of frames currently buffered.
func (q *FrameQueue) Len() int { return len(q.frames) }

// Cap returns the queue capacity.
func (q *FrameQueue) Cap() int { return cap(q.frames) }

// Dropped returns the total number of frames discarded because the queue
// was full.
func (q *FrameQueue) Dropped() int64 { return q.dropped.Load() }
