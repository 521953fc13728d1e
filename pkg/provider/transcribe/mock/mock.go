// Package mock provides a test double for the transcribe.Transcriber
// interface.
//
// Use Transcriber in unit tests to feed controlled recognition results
// without a live speech backend. All fields are safe to set before calling
// any method; mutating them during a concurrent call is the caller's
// responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/lectrify/lectrify/pkg/provider/transcribe"
)

// Call records a single invocation of Transcribe.
type Call struct {
	// Samples is the audio passed to Transcribe.
	Samples []float32
	// SampleRate is the sample rate passed to Transcribe.
	SampleRate int
}

// Transcriber is a mock implementation of transcribe.Transcriber.
// Zero values cause Transcribe to return "" and a nil error.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by Transcribe. When Texts is non-empty it takes
	// precedence: calls consume its entries in order, and the last entry
	// repeats once exhausted.
	Text  string
	Texts []string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []Call
}

// Transcribe records the call and returns the configured text.
func (t *Transcriber) Transcribe(_ context.Context, samples []float32, sampleRate int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := make([]float32, len(samples))
	copy(s, samples)
	t.Calls = append(t.Calls, Call{Samples: s, SampleRate: sampleRate})

	if t.Err != nil {
		return "", t.Err
	}
	if n := len(t.Texts); n > 0 {
		i := len(t.Calls) - 1
		if i >= n {
			i = n - 1
		}
		return t.Texts[i], nil
	}
	return t.Text, nil
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
}

// Ensure Transcriber implements transcribe.Transcriber at compile time.
var _ transcribe.Transcriber = (*Transcriber)(nil)
