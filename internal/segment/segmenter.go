// Package segment turns an unbounded stream of fixed-size audio frames into
// discrete, bounded-length speech segments.
//
// The two types are [Queue], the single-producer/single-consumer hand-off
// from the capture callback, and [Segmenter], the consumer loop that
// classifies each frame as speech or silence by peak amplitude and flushes
// the accumulated speech run once a silence pause elapses.
//
// All segmentation state is confined to the goroutine running
// [Segmenter.Run]; no locking is required as long as a single consumer owns
// the loop.
package segment

import (
	"context"
	"log/slog"
	"time"

	"github.com/lectrify/lectrify/pkg/audio"
)

// Policy defaults. Amplitudes are normalised to [-1, 1].
const (
	defaultVolumeThreshold    = 0.2
	defaultSpeechPause        = 500 * time.Millisecond
	defaultMaxSegmentDuration = 2 * time.Minute
)

// SpeechSegment is an ordered run of speech frames accumulated since the last
// flush. It is non-empty when flushed; ownership transfers to the flush
// callback for the duration of that one call.
type SpeechSegment struct {
	// Frames are the speech-classified frames, in arrival order. Silent
	// frames are never included, even when a short pause occurred between
	// speech runs.
	Frames []audio.Frame

	// SampleRate of every frame in the segment, in Hz.
	SampleRate int
}

// Samples concatenates the segment's frames into a single sample slice.
func (s SpeechSegment) Samples() []float32 {
	n := 0
	for _, f := range s.Frames {
		n += len(f.Samples)
	}
	out := make([]float32, 0, n)
	for _, f := range s.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Duration returns the total speech time contained in the segment.
func (s SpeechSegment) Duration() time.Duration {
	var d time.Duration
	for _, f := range s.Frames {
		d += f.Duration()
	}
	return d
}

// FlushFunc receives each completed segment. It is invoked synchronously on
// the consumer goroutine, so segments are handed off strictly in the order
// their closing silence was detected and never overlap.
type FlushFunc func(ctx context.Context, seg SpeechSegment)

// Config holds the voice-activity policy for a [Segmenter]. Zero values are
// replaced with defaults.
type Config struct {
	// VolumeThreshold is the peak absolute amplitude at or above which a
	// frame counts as speech. Default: 0.2.
	VolumeThreshold float32

	// SpeechPause is the silence duration after speech that closes a
	// segment. Default: 500 ms.
	SpeechPause time.Duration

	// MaxSegmentDuration force-flushes a segment that grows past this much
	// accumulated speech, bounding memory during continuous talking.
	// Default: 2 m.
	MaxSegmentDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = defaultVolumeThreshold
	}
	if c.SpeechPause <= 0 {
		c.SpeechPause = defaultSpeechPause
	}
	if c.MaxSegmentDuration <= 0 {
		c.MaxSegmentDuration = defaultMaxSegmentDuration
	}
	return c
}

// Segmenter consumes frames from a [Queue] and emits speech segments.
//
// Classification uses the frames' capture timestamps rather than the wall
// clock, which makes the pause decision independent of how far behind real
// time the consumer is running.
type Segmenter struct {
	cfg   Config
	queue *Queue
	flush FlushFunc

	// Consumer-goroutine state. Touched only inside Run.
	buf          []audio.Frame
	bufDur       time.Duration
	speechActive bool
	lastSpeech   time.Duration // stream position where speech was last heard
}

// New creates a Segmenter reading from queue and delivering completed
// segments to flush. flush must be non-nil.
func New(queue *Queue, flush FlushFunc, cfg Config) *Segmenter {
	return &Segmenter{
		cfg:   cfg.withDefaults(),
		queue: queue,
		flush: flush,
	}
}

// Run executes the consumer loop until ctx is cancelled or the queue is
// closed and drained. A partially accumulated segment at shutdown is
// discarded: it never met the pause condition, so it has no defined end.
//
// Run must be called at most once; all segmentation state lives on the
// calling goroutine.
func (s *Segmenter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-s.queue.Frames():
			if !ok {
				return nil
			}
			s.process(ctx, frame)
		}
	}
}

// process classifies one frame and updates segment state.
func (s *Segmenter) process(ctx context.Context, frame audio.Frame) {
	end := frame.Timestamp + frame.Duration()

	if frame.Peak() >= s.cfg.VolumeThreshold {
		s.speechActive = true
		s.lastSpeech = end
		s.buf = append(s.buf, frame)
		s.bufDur += frame.Duration()

		if s.bufDur >= s.cfg.MaxSegmentDuration {
			slog.Warn("segment reached maximum duration, forcing flush",
				"duration", s.bufDur)
			s.doFlush(ctx)
		}
		return
	}

	// Silent frame. Before any speech it is a no-op; during a short pause it
	// is simply not appended, so a resumed speech run continues the same
	// segment.
	if s.speechActive && end-s.lastSpeech >= s.cfg.SpeechPause {
		s.doFlush(ctx)
	}
}

// doFlush hands the buffered segment to the flush callback and resets all
// segment state. Resetting speechActive first guarantees a single flush per
// silence run.
func (s *Segmenter) doFlush(ctx context.Context) {
	if len(s.buf) == 0 {
		s.speechActive = false
		return
	}

	seg := SpeechSegment{
		Frames:     s.buf,
		SampleRate: s.buf[0].SampleRate,
	}
	s.buf = nil
	s.bufDur = 0
	s.speechActive = false

	slog.Debug("segment flushed",
		"frames", len(seg.Frames),
		"duration", seg.Duration(),
		"queue_depth", s.queue.Depth(),
	)
	s.flush(ctx, seg)
}
