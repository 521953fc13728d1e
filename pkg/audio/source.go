// Package audio defines the frame model and capture-source interfaces for
// live audio ingest.
//
// The two primary abstractions are:
//
//   - [Source] — wraps an audio input device and produces one [Frame] per
//     block duration for the lifetime of the capture run.
//   - [FrameSink] — the hand-off point a Source pushes frames into. Pushes
//     happen on the device's real-time callback and therefore must never
//     block.
//
// Implementations of [Source] are provided by backend packages (e.g.,
// audio/miniaudio for live microphone capture, audio/mock for tests). The
// interfaces are intentionally narrow so the segmentation engine stays
// decoupled from device details.
package audio

import "context"

// FrameSink receives frames from a [Source].
//
// Push is invoked from the device's real-time callback path: implementations
// MUST return in bounded, short time and must not perform I/O, locking with
// unbounded hold times, or any classification work. Push reports whether the
// frame was accepted; false means the frame was dropped (e.g., a full queue).
type FrameSink interface {
	Push(Frame) bool
}

// Source captures a single mono input stream at a fixed sample rate and
// delivers fixed-duration frames to a sink.
//
// A Source runs until the context given to Start is cancelled or Close is
// called. Device faults such as overruns or underruns are surfaced as logged
// warnings and do not interrupt the stream.
type Source interface {
	// Start opens the device and begins pushing frames into sink. It returns
	// once capture is running; frames are delivered asynchronously from the
	// device callback. Returns an error if the device cannot be opened or
	// ctx is already cancelled.
	Start(ctx context.Context, sink FrameSink) error

	// Close stops capture and releases the device. Calling Close more than
	// once is safe and returns nil.
	Close() error
}
