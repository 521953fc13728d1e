// Package session holds the transcript state that spans speech segments.
//
// A question is frequently spoken across more than one pause, so single
// segments cannot be analysed in isolation. Transcript accumulates the text
// of every segment until the extraction collaborator recognises a complete
// standalone question, then resets, so each question is dispatched exactly
// once.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/lectrify/lectrify/pkg/provider/analysis"
)

// Transcript is the accumulated not-yet-resolved speech text. It is safe for
// concurrent use, though the pipeline drives it from a single goroutine.
type Transcript struct {
	mu  sync.Mutex
	buf string
}

// New returns an empty Transcript.
func New() *Transcript {
	return &Transcript{}
}

// Append concatenates text onto the buffer, order-preserving and lossless:
// appending "a" then "b" is indistinguishable from appending "ab". Empty
// text is a no-op.
func (t *Transcript) Append(text string) {
	if text == "" {
		return
	}
	t.mu.Lock()
	t.buf += text
	t.mu.Unlock()
}

// Snapshot returns the current buffer contents.
func (t *Transcript) Snapshot() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf
}

// Len returns the current buffer length in bytes.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf)
}

// Clear empties the buffer unconditionally.
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.buf = ""
	t.mu.Unlock()
}

// TryExtractQuestion runs the extraction collaborator over the current
// buffer contents. On a recognised standalone question the consumed text is
// removed from the buffer and the question is returned; on no-question-found
// or on a collaborator error the buffer is left unchanged, so text keeps
// accumulating across segments.
//
// The collaborator call runs without holding the lock. Text appended while
// the call is in flight survives a successful extraction: only the snapshot
// that was analysed is removed.
func (t *Transcript) TryExtractQuestion(ctx context.Context, p analysis.Provider) (analysis.Extraction, error) {
	t.mu.Lock()
	snapshot := t.buf
	t.mu.Unlock()

	if snapshot == "" {
		return analysis.Extraction{}, nil
	}

	ext, err := p.ExtractQuestion(ctx, snapshot)
	if err != nil {
		return analysis.Extraction{}, err
	}
	if !ext.Found {
		return analysis.Extraction{}, nil
	}

	t.mu.Lock()
	t.buf = strings.TrimPrefix(t.buf, snapshot)
	t.mu.Unlock()
	return ext, nil
}
