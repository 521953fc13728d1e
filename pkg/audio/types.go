package audio

import "time"

// Frame represents one fixed-duration block of captured audio flowing through
// the pipeline. Frames are the atomic unit of transport — produced by a
// [Source] at a fixed cadence, queued, and consumed exactly once by the
// segmenter.
//
// A Frame is immutable after creation: neither the producer nor any consumer
// may modify Samples once the frame has been pushed.
type Frame struct {
	// Samples holds normalised mono amplitude values in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz (e.g., 16000 for speech transcription input).
	SampleRate int

	// Seq is the monotonically increasing arrival order, starting at 0 for
	// the first frame of a capture run.
	Seq uint64

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the time span covered by the frame's samples.
// Returns 0 when the sample rate is unset.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Peak returns the maximum absolute amplitude of the frame. An empty frame
// has a peak of 0.
func (f Frame) Peak() float32 {
	var peak float32
	for _, s := range f.Samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
