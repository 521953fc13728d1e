package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collect gathers all metrics recorded through the given reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func TestNewMetricsCreatesAllInstruments(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	if m.FramesCaptured == nil || m.FramesDropped == nil || m.QueueDepth == nil ||
		m.SegmentsFlushed == nil || m.SegmentDuration == nil ||
		m.StageDuration == nil || m.PipelineOutcomes == nil ||
		m.CollaboratorErrors == nil || m.QuestionsDispatched == nil ||
		m.HTTPRequestDuration == nil {
		t.Fatal("NewMetrics left an instrument nil")
	}
}

func TestCountersAreRecorded(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FramesCaptured.Add(ctx, 5)
	m.FramesDropped.Add(ctx, 1)
	m.SegmentsFlushed.Add(ctx, 2)
	m.QuestionsDispatched.Add(ctx, 1)
	m.RecordOutcome(ctx, OutcomeDispatched)
	m.RecordCollaboratorError(ctx, "transcriber")

	got := collect(t, reader)

	sum, ok := got["lectrify.audio.frames_captured"].Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 5 {
		t.Fatalf("frames_captured = %+v", got["lectrify.audio.frames_captured"])
	}
	if _, ok := got["lectrify.pipeline.outcomes"]; !ok {
		t.Fatal("pipeline.outcomes not recorded")
	}
	if _, ok := got["lectrify.collaborator.errors"]; !ok {
		t.Fatal("collaborator.errors not recorded")
	}
}

func TestRecordStageHistogram(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	m.RecordStage(context.Background(), "transcribe", 0.42)

	got := collect(t, reader)
	hist, ok := got["lectrify.pipeline.stage.duration"].Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("stage.duration = %+v", got["lectrify.pipeline.stage.duration"])
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 || dp.Sum != 0.42 {
		t.Fatalf("stage.duration data point = count %d sum %v", dp.Count, dp.Sum)
	}
}

func TestQueueDepthGauge(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.QueueDepth.Record(ctx, 7)
	m.QueueDepth.Record(ctx, 3)

	got := collect(t, reader)
	gauge, ok := got["lectrify.audio.queue_depth"].Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 1 {
		t.Fatalf("queue_depth = %+v", got["lectrify.audio.queue_depth"])
	}
	if gauge.DataPoints[0].Value != 3 {
		t.Fatalf("queue_depth = %d, want last-value 3", gauge.DataPoints[0].Value)
	}
}
