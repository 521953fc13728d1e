// Package app wires all Lectrify subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture and segmentation loops until the
// context is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithDeliverer, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lectrify/lectrify/internal/config"
	"github.com/lectrify/lectrify/internal/health"
	"github.com/lectrify/lectrify/internal/observe"
	"github.com/lectrify/lectrify/internal/pipeline"
	"github.com/lectrify/lectrify/internal/resilience"
	"github.com/lectrify/lectrify/internal/segment"
	"github.com/lectrify/lectrify/internal/sink"
	"github.com/lectrify/lectrify/internal/vocab"
	"github.com/lectrify/lectrify/pkg/audio"
	"github.com/lectrify/lectrify/pkg/audio/miniaudio"
	"github.com/lectrify/lectrify/pkg/provider/analysis"
	"github.com/lectrify/lectrify/pkg/provider/transcribe"
)

// Providers holds the collaborator implementations selected by config.
// Populated by main.go via the config registry.
type Providers struct {
	Transcriber transcribe.Transcriber
	Analyzer    analysis.Provider
}

// App owns all subsystem lifetimes and orchestrates the capture pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	source    audio.Source
	queue     *segment.Queue
	segmenter *segment.Segmenter
	pipeline  *pipeline.Pipeline
	deliverer sink.Deliverer
	metrics   *observe.Metrics
	server    *http.Server
	logLevel  *slog.LevelVar

	capturing atomic.Bool

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
	stopErr  error
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects an audio source instead of opening the default
// microphone device.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithDeliverer injects a sink deliverer instead of creating an HTTP client
// from config.
func WithDeliverer(d sink.Deliverer) Option {
	return func(a *App) { a.deliverer = d }
}

// WithMetrics injects a metrics set instead of using the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the App the process log level so config reloads can
// adjust verbosity at runtime.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Transcriber == nil || providers.Analyzer == nil {
		return nil, errors.New("app: transcriber and analysis providers are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Sink ──────────────────────────────────────────────────────────
	if a.deliverer == nil {
		client, err := sink.New(sink.Config{
			URL:     cfg.Sink.URL,
			Secret:  cfg.Sink.Secret,
			Code:    cfg.Sink.Code,
			Format:  cfg.Sink.WireFormat,
			Timeout: cfg.Sink.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init sink: %w", err)
		}
		a.deliverer = client
	}

	// ── 2. Pipeline ──────────────────────────────────────────────────────
	var corrector *vocab.Corrector
	if len(cfg.Vocabulary) > 0 {
		corrector = vocab.New(cfg.Vocabulary)
	}
	a.pipeline = pipeline.New(pipeline.Deps{
		Transcriber: providers.Transcriber,
		Analyzer:    providers.Analyzer,
		Deliverer:   a.deliverer,
		Corrector:   corrector,
		Metrics:     a.metrics,
		Rand:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}, pipeline.Config{
		Themes:      cfg.Themes,
		CallTimeout: cfg.Pipeline.CallTimeout,
		Retry: resilience.RetryPolicy{
			MaxAttempts: cfg.Pipeline.Retry.MaxAttempts,
			BaseDelay:   cfg.Pipeline.Retry.BaseDelay,
			MaxDelay:    cfg.Pipeline.Retry.MaxDelay,
		},
	})

	// ── 3. Frame queue + segmenter ───────────────────────────────────────
	a.queue = segment.NewQueue(cfg.Audio.QueueDepth)
	a.segmenter = segment.New(a.queue, a.flushSegment, segment.Config{
		VolumeThreshold:    float32(cfg.Segmenter.VolumeThreshold),
		SpeechPause:        cfg.Segmenter.SpeechPause,
		MaxSegmentDuration: cfg.Segmenter.MaxSegmentDuration,
	})

	// ── 4. Capture source ────────────────────────────────────────────────
	if a.source == nil {
		a.source = miniaudio.New(miniaudio.Config{
			SampleRate:    cfg.Audio.SampleRate,
			BlockDuration: cfg.Audio.BlockDuration,
			DeviceName:    cfg.Audio.Device,
		})
	}
	a.closers = append(a.closers, a.source.Close)

	// ── 5. Admin server ──────────────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		a.server = a.buildAdminServer(cfg.Server.ListenAddr)
	}

	return a, nil
}

// flushSegment records segment telemetry and hands the segment to the
// pipeline.
func (a *App) flushSegment(ctx context.Context, seg segment.SpeechSegment) {
	a.metrics.SegmentsFlushed.Add(ctx, 1)
	a.metrics.SegmentDuration.Record(ctx, seg.Duration().Seconds())
	a.metrics.QueueDepth.Record(ctx, int64(a.queue.Depth()))
	a.pipeline.Flush(ctx, seg)
}

// buildAdminServer assembles the /healthz, /readyz, and /metrics routes
// behind the observability middleware.
func (a *App) buildAdminServer(addr string) *http.Server {
	mux := http.NewServeMux()
	health.New(
		health.CaptureChecker(a.capturing.Load),
		health.SinkChecker(a.cfg.Sink.URL, nil),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Pipeline exposes the question pipeline, mainly for tests.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// ApplyDiff applies a hot-reloadable config change. Typically wired as the
// config watcher's onChange callback via [config.Diff].
func (a *App) ApplyDiff(d config.ConfigDiff) {
	if d.ThemesChanged {
		a.pipeline.SetThemes(d.NewThemes)
		slog.Info("themes reloaded", "themes", d.NewThemes)
	}
	if d.VocabularyChanged {
		var c *vocab.Corrector
		if len(d.NewVocabulary) > 0 {
			c = vocab.New(d.NewVocabulary)
		}
		a.pipeline.SetCorrector(c)
		slog.Info("vocabulary reloaded", "terms", len(d.NewVocabulary))
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", string(d.NewLogLevel))
	}
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts capture, the segmentation loop, and the admin server, then
// blocks until ctx is cancelled or a subsystem fails. It always tears the
// subsystems down before returning; the returned error is nil on a clean
// context-cancelled shutdown.
func (a *App) Run(ctx context.Context) error {
	if err := a.source.Start(ctx, &countingSink{queue: a.queue, metrics: a.metrics}); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}
	a.capturing.Store(true)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.segmenter.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if a.server != nil {
		g.Go(func() error {
			slog.Info("admin server listening", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	slog.Info("capture running",
		"sample_rate", a.cfg.Audio.SampleRate,
		"themes", len(a.cfg.Themes))

	err := g.Wait()
	if shutdownErr := a.Shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// countingSink counts frame hand-offs on their way into the queue. Both
// counter adds are atomic and safe on the device callback path.
type countingSink struct {
	queue   *segment.Queue
	metrics *observe.Metrics
}

func (s *countingSink) Push(f audio.Frame) bool {
	ok := s.queue.Push(f)
	ctx := context.Background()
	s.metrics.FramesCaptured.Add(ctx, 1)
	if !ok {
		s.metrics.FramesDropped.Add(ctx, 1)
	}
	return ok
}

// Shutdown stops capture and releases all resources. Safe to call more than
// once; later calls return the first result.
func (a *App) Shutdown() error {
	a.stopOnce.Do(func() {
		a.capturing.Store(false)

		var errs []error
		for _, c := range a.closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		a.queue.Close()
		a.stopErr = errors.Join(errs...)
		slog.Info("app stopped")
	})
	return a.stopErr
}
