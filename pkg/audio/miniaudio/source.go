// Package miniaudio provides a live microphone [audio.Source] backed by the
// miniaudio bindings (github.com/gen2brain/malgo).
//
// The device is opened as a single mono capture stream in 32-bit float
// format. The data callback does only two things: copy the incoming samples
// into the current block buffer and, once a full block duration has
// accumulated, push the completed frame into the sink. No I/O or
// classification happens on the callback path, so the device is never
// starved by slow downstream processing.
package miniaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/lectrify/lectrify/pkg/audio"
)

// Config holds the capture parameters for a [Source].
type Config struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int

	// BlockDuration is the duration of each emitted frame. Default: 2s.
	BlockDuration time.Duration

	// DeviceName is reserved for future device selection; the default
	// capture device is always used when empty.
	DeviceName string
}

// Source implements [audio.Source] using the system's default capture device.
// A Source may be started at most once; create a new Source for each capture
// run.
type Source struct {
	cfg Config

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	started bool
	closed  bool
}

// Compile-time assertion that Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// New creates a Source with the given configuration. Zero-value fields are
// replaced with defaults (16 kHz sample rate, 2 s blocks). The device is not
// opened until Start is called.
func New(cfg Config) *Source {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = 2 * time.Second
	}
	return &Source{cfg: cfg}
}

// Start opens the default capture device and begins pushing frames into sink.
// Frames are delivered asynchronously from the miniaudio data callback until
// ctx is cancelled or Close is called.
func (s *Source) Start(ctx context.Context, sink audio.FrameSink) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("miniaudio: context already cancelled: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("miniaudio: source is closed")
	}
	if s.started {
		return errors.New("miniaudio: source already started")
	}

	// Device-layer log messages (including overrun/underrun reports) are
	// surfaced as warnings; they never interrupt the stream.
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Warn("audio device message", "message", message)
	})
	if err != nil {
		return fmt.Errorf("miniaudio: init context: %w", err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatF32
	devCfg.Capture.Channels = 1
	devCfg.SampleRate = uint32(s.cfg.SampleRate)

	blockSamples := int(time.Duration(s.cfg.SampleRate) * s.cfg.BlockDuration / time.Second)

	acc := &blockAccumulator{
		sink:         sink,
		sampleRate:   s.cfg.SampleRate,
		blockSamples: blockSamples,
		block:        make([]float32, 0, blockSamples),
	}

	device, err := malgo.InitDevice(mctx.Context, devCfg, malgo.DeviceCallbacks{
		Data: acc.onData,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("miniaudio: init capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("miniaudio: start capture: %w", err)
	}

	s.mctx = mctx
	s.device = device
	s.started = true

	// Release the device when the context ends so callers can tie the
	// capture lifetime to their run loop.
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	slog.Info("microphone capture started",
		"sample_rate", s.cfg.SampleRate,
		"block_duration", s.cfg.BlockDuration,
	)
	return nil
}

// Close stops capture and releases the device and backend context.
// Safe to call multiple times.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.mctx != nil {
		_ = s.mctx.Uninit()
		s.mctx.Free()
		s.mctx = nil
	}
	return nil
}

// blockAccumulator assembles callback-sized sample bursts into fixed-duration
// frames. All fields are touched only on the device callback goroutine.
type blockAccumulator struct {
	sink         audio.FrameSink
	sampleRate   int
	blockSamples int

	block   []float32
	seq     uint64
	elapsed time.Duration
	dropped uint64
}

// onData is the miniaudio data callback. inputSamples is raw little-endian
// 32-bit float PCM; frameCount is the number of samples per channel.
func (a *blockAccumulator) onData(_, inputSamples []byte, frameCount uint32) {
	n := int(frameCount)
	if n*4 > len(inputSamples) {
		n = len(inputSamples) / 4
	}

	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(inputSamples[i*4 : i*4+4])
		a.block = append(a.block, math.Float32frombits(bits))

		if len(a.block) < a.blockSamples {
			continue
		}

		frame := audio.Frame{
			Samples:    a.block,
			SampleRate: a.sampleRate,
			Seq:        a.seq,
			Timestamp:  a.elapsed,
		}
		a.block = make([]float32, 0, a.blockSamples)
		a.seq++
		a.elapsed += frame.Duration()

		if !a.sink.Push(frame) {
			// Counting only; logging from the callback path is kept minimal
			// and rate-limited to once per drop streak.
			if a.dropped == 0 {
				slog.Warn("frame dropped: sink full", "seq", frame.Seq)
			}
			a.dropped++
		} else {
			a.dropped = 0
		}
	}
}
