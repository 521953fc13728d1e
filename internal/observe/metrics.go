// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing helpers, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/lectrify/lectrify"

// Pipeline outcome values for [Metrics.RecordOutcome].
const (
	OutcomeDispatched      = "dispatched"
	OutcomeNoSpeech        = "no_speech"
	OutcomeNoQuestion      = "no_question"
	OutcomeIrrelevant      = "irrelevant"
	OutcomeCollaboratorErr = "collaborator_error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture ---

	// FramesCaptured counts audio frames delivered by the capture device.
	FramesCaptured metric.Int64Counter

	// FramesDropped counts frames shed because the hand-off queue was full.
	FramesDropped metric.Int64Counter

	// QueueDepth records the hand-off queue depth sampled at each flush.
	QueueDepth metric.Int64Gauge

	// --- Segmentation ---

	// SegmentsFlushed counts completed speech segments.
	SegmentsFlushed metric.Int64Counter

	// SegmentDuration tracks the speech duration of flushed segments.
	SegmentDuration metric.Float64Histogram

	// --- Pipeline ---

	// StageDuration tracks per-stage latency. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// PipelineOutcomes counts finished pipeline runs. Use with attribute:
	//   attribute.String("outcome", ...)
	PipelineOutcomes metric.Int64Counter

	// CollaboratorErrors counts external-call failures. Use with attribute:
	//   attribute.String("collaborator", ...)
	CollaboratorErrors metric.Int64Counter

	// QuestionsDispatched counts questions delivered to the quiz sink.
	QuestionsDispatched metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// stageLatencyBuckets defines histogram bucket boundaries (in seconds) for
// external-call latencies.
var stageLatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// segmentDurationBuckets covers speech segment lengths from a clipped word
// to the forced-flush cap.
var segmentDurationBuckets = []float64{
	0.5, 1, 2, 4, 8, 16, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Capture.
	if met.FramesCaptured, err = m.Int64Counter("lectrify.audio.frames_captured",
		metric.WithDescription("Total audio frames delivered by the capture device."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("lectrify.audio.frames_dropped",
		metric.WithDescription("Total frames shed because the hand-off queue was full."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64Gauge("lectrify.audio.queue_depth",
		metric.WithDescription("Hand-off queue depth sampled at each segment flush."),
	); err != nil {
		return nil, err
	}

	// Segmentation.
	if met.SegmentsFlushed, err = m.Int64Counter("lectrify.segment.flushed",
		metric.WithDescription("Total completed speech segments."),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("lectrify.segment.duration",
		metric.WithDescription("Speech duration of flushed segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(segmentDurationBuckets...),
	); err != nil {
		return nil, err
	}

	// Pipeline.
	if met.StageDuration, err = m.Float64Histogram("lectrify.pipeline.stage.duration",
		metric.WithDescription("Latency of pipeline stages by stage name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageLatencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineOutcomes, err = m.Int64Counter("lectrify.pipeline.outcomes",
		metric.WithDescription("Finished pipeline runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.CollaboratorErrors, err = m.Int64Counter("lectrify.collaborator.errors",
		metric.WithDescription("External collaborator failures by collaborator name."),
	); err != nil {
		return nil, err
	}
	if met.QuestionsDispatched, err = m.Int64Counter("lectrify.questions.dispatched",
		metric.WithDescription("Questions delivered to the quiz sink."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lectrify.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records one pipeline stage execution with its latency.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordOutcome records a finished pipeline run.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	m.PipelineOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordCollaboratorError records an external-call failure.
func (m *Metrics) RecordCollaboratorError(ctx context.Context, collaborator string) {
	m.CollaboratorErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("collaborator", collaborator)),
	)
}
