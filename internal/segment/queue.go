package segment

import (
	"sync"
	"sync/atomic"

	"github.com/lectrify/lectrify/pkg/audio"
)

// defaultQueueDepth bounds the number of frames that may sit between the
// capture callback and the consumer loop. At the default 2 s block duration
// this covers just over a minute of pipeline stall before frames are shed.
const defaultQueueDepth = 32

// Queue is the bounded FIFO hand-off between a capture [audio.Source] and the
// [Segmenter]. It has exactly one producer — the device callback — and one
// consumer.
//
// Push never blocks: when the queue is full the frame is dropped and counted,
// so a slow pipeline degrades transcription coverage instead of starving the
// audio device. Frames that are accepted are delivered in arrival order with
// no reordering.
type Queue struct {
	ch      chan audio.Frame
	dropped atomic.Uint64

	closeOnce sync.Once
}

// Compile-time assertion that Queue satisfies audio.FrameSink.
var _ audio.FrameSink = (*Queue)(nil)

// NewQueue creates a queue holding at most depth frames. A depth ≤ 0 selects
// the default.
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &Queue{ch: make(chan audio.Frame, depth)}
}

// Push enqueues f without blocking. Returns false when the queue is full and
// the frame was dropped. Safe to call from the device callback.
func (q *Queue) Push(f audio.Frame) bool {
	select {
	case q.ch <- f:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Frames returns the consumer side of the queue. The channel blocks when
// empty and is closed after [Queue.Close].
func (q *Queue) Frames() <-chan audio.Frame {
	return q.ch
}

// Close marks the producer side finished. Frames already enqueued remain
// readable; the consumer channel closes once drained. Safe to call more than
// once, but Push must not be called after Close.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

// Depth returns the number of frames currently waiting.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Dropped returns the total number of frames shed because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
