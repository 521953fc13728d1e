// Package transcribe defines the Transcriber interface for batch
// speech-to-text backends.
//
// Unlike a streaming recogniser, a Transcriber receives one complete
// utterance at a time: the caller performs its own voice-activity
// segmentation and hands over a finished run of speech samples. This matches
// whisper.cpp, which is a batch engine, and keeps the interface to a single
// blocking call.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation.
package transcribe

import "context"

// Transcriber converts one utterance of audio into text.
type Transcriber interface {
	// Transcribe runs speech recognition over samples, mono float32 PCM
	// normalised to [-1, 1] at sampleRate Hz, and returns the recognised
	// text. An empty string with a nil error means the backend heard no
	// intelligible speech; that is a normal outcome, not a failure.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}
