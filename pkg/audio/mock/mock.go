// Package mock provides an in-memory [audio.Source] implementation for unit
// tests.
//
// The mock plays back a scripted list of frames synchronously when started,
// so tests can drive the segmentation pipeline deterministically without a
// live capture device.
//
// Typical usage:
//
//	src := &mock.Source{Frames: []audio.Frame{f1, f2, f3}}
//	_ = src.Start(ctx, queue)
package mock

import (
	"context"
	"sync"

	"github.com/lectrify/lectrify/pkg/audio"
)

// Source is a mock implementation of [audio.Source]. Set the exported fields
// before use; inspect the recorded fields after.
type Source struct {
	mu sync.Mutex

	// Frames is the scripted frame sequence pushed into the sink, in order,
	// when Start is called.
	Frames []audio.Frame

	// StartError, if non-nil, is returned by Start before any frame is pushed.
	StartError error

	// Async, when true, plays frames back on a separate goroutine instead of
	// synchronously inside Start.
	Async bool

	// Accepted records the sink's response for each pushed frame.
	Accepted []bool

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Compile-time assertion that Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// Start pushes the scripted frames into sink. When Async is false the
// playback completes before Start returns.
func (s *Source) Start(ctx context.Context, sink audio.FrameSink) error {
	s.mu.Lock()
	s.CallCountStart++
	err := s.StartError
	async := s.Async
	frames := make([]audio.Frame, len(s.Frames))
	copy(frames, s.Frames)
	s.mu.Unlock()

	if err != nil {
		return err
	}

	play := func() {
		for _, f := range frames {
			if ctx.Err() != nil {
				return
			}
			ok := sink.Push(f)
			s.mu.Lock()
			s.Accepted = append(s.Accepted, ok)
			s.mu.Unlock()
		}
	}

	if async {
		go play()
		return nil
	}
	play()
	return nil
}

// Close records the call and returns nil.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return nil
}
