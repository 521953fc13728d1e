package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"github.com/lectrify/lectrify/internal/resilience"
	"github.com/lectrify/lectrify/internal/segment"
	"github.com/lectrify/lectrify/internal/sink"
	"github.com/lectrify/lectrify/pkg/audio"
	"github.com/lectrify/lectrify/pkg/provider/analysis"
	analysismock "github.com/lectrify/lectrify/pkg/provider/analysis/mock"
	transcribemock "github.com/lectrify/lectrify/pkg/provider/transcribe/mock"
)

// ---- test doubles -----------------------------------------------------------

// recordingSink captures delivered questions.
type recordingSink struct {
	Questions []sink.Question
	Err       error
}

func (s *recordingSink) Deliver(_ context.Context, q sink.Question) (string, error) {
	s.Questions = append(s.Questions, q)
	if s.Err != nil {
		return "", s.Err
	}
	return "ok", nil
}

func speechSegment(peak float32) segment.SpeechSegment {
	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = peak
	}
	return segment.SpeechSegment{
		Frames:     []audio.Frame{{Samples: samples, SampleRate: 100}},
		SampleRate: 100,
	}
}

var goodOptions = analysis.OptionSet{
	Correct:   "Helsinki",
	Incorrect: []string{"Oslo", "Stockholm", "Tallinn"},
}

func newTestPipeline(tr *transcribemock.Transcriber, an *analysismock.Provider, dl *recordingSink) *Pipeline {
	return New(Deps{
		Transcriber: tr,
		Analyzer:    an,
		Deliverer:   dl,
		Rand:        rand.New(rand.NewPCG(1, 2)),
	}, Config{
		Themes:      []string{"geography"},
		CallTimeout: time.Second,
		Retry:       resilience.RetryPolicy{MaxAttempts: 1},
	})
}

// ---- full-chain behaviour ---------------------------------------------------

func TestHandleSegmentDispatchesRelevantQuestion(t *testing.T) {
	t.Parallel()

	tr := &transcribemock.Transcriber{Text: "what is the capital of finland"}
	an := &analysismock.Provider{
		Extraction: analysis.Extraction{Found: true, Question: "What is the capital of Finland?"},
		Relevant:   true,
		Options:    goodOptions,
	}
	dl := &recordingSink{}
	p := newTestPipeline(tr, an, dl)

	outcome, err := p.HandleSegment(context.Background(), speechSegment(0.5))
	if err != nil {
		t.Fatalf("HandleSegment: %v", err)
	}
	if outcome != OutcomeDispatched {
		t.Fatalf("outcome = %q, want dispatched", outcome)
	}

	if len(tr.Calls) != 1 || len(an.ExtractCalls) != 1 ||
		len(an.RelevanceCalls) != 1 || len(an.OptionsCalls) != 1 {
		t.Fatalf("collaborator call counts = %d/%d/%d/%d, want 1 each",
			len(tr.Calls), len(an.ExtractCalls), len(an.RelevanceCalls), len(an.OptionsCalls))
	}
	if got := an.RelevanceCalls[0].Themes; len(got) != 1 || got[0] != "geography" {
		t.Fatalf("relevance themes = %v", got)
	}

	if len(dl.Questions) != 1 {
		t.Fatalf("delivered %d questions, want 1", len(dl.Questions))
	}
	q := dl.Questions[0]
	if q.Text != "What is the capital of Finland?" {
		t.Fatalf("question text = %q", q.Text)
	}
	if len(q.Options) != 4 || q.Options[q.CorrectIndex] != "Helsinki" {
		t.Fatalf("options = %v, correctIndex = %d", q.Options, q.CorrectIndex)
	}
	if got := p.Transcript().Snapshot(); got != "" {
		t.Fatalf("transcript not cleared after dispatch: %q", got)
	}
}

func TestHandleSegmentIrrelevantQuestionNotDispatched(t *testing.T) {
	t.Parallel()

	tr := &transcribemock.Transcriber{Text: "what did I have for lunch"}
	an := &analysismock.Provider{
		Extraction: analysis.Extraction{Found: true, Question: "What did I have for lunch?"},
		Relevant:   false,
	}
	dl := &recordingSink{}
	p := newTestPipeline(tr, an, dl)

	outcome, err := p.HandleSegment(context.Background(), speechSegment(0.5))
	if err != nil {
		t.Fatalf("HandleSegment: %v", err)
	}
	if outcome != OutcomeIrrelevant {
		t.Fatalf("outcome = %q, want irrelevant", outcome)
	}
	if len(an.OptionsCalls) != 0 {
		t.Fatal("option generation must not run for an irrelevant question")
	}
	if len(dl.Questions) != 0 {
		t.Fatal("dispatch must not run for an irrelevant question")
	}
	// Extraction consumed the text; the discarded question stays discarded.
	if got := p.Transcript().Snapshot(); got != "" {
		t.Fatalf("transcript = %q, want empty", got)
	}
}

func TestHandleSegmentAccumulatesAcrossSegments(t *testing.T) {
	t.Parallel()

	tr := &transcribemock.Transcriber{Texts: []string{"the capital of finland ", "is what exactly"}}
	an := &analysismock.Provider{
		Extractions: []analysis.Extraction{
			{},
			{Found: true, Question: "What is the capital of Finland?"},
		},
		Relevant: true,
		Options:  goodOptions,
	}
	dl := &recordingSink{}
	p := newTestPipeline(tr, an, dl)

	outcome, err := p.HandleSegment(context.Background(), speechSegment(0.4))
	if err != nil || outcome != OutcomeNoQuestion {
		t.Fatalf("segment 1: (%q, %v), want no_question", outcome, err)
	}

	outcome, err = p.HandleSegment(context.Background(), speechSegment(0.6))
	if err != nil || outcome != OutcomeDispatched {
		t.Fatalf("segment 2: (%q, %v), want dispatched", outcome, err)
	}

	want := "the capital of finland is what exactly"
	if got := an.ExtractCalls[1].Transcript; got != want {
		t.Fatalf("second extraction saw %q, want %q", got, want)
	}
	if got := p.Transcript().Snapshot(); got != "" {
		t.Fatalf("transcript not cleared: %q", got)
	}
	if len(dl.Questions) != 1 {
		t.Fatalf("delivered %d questions, want 1", len(dl.Questions))
	}
}

func TestHandleSegmentTranscriberFailureKeepsSession(t *testing.T) {
	t.Parallel()

	tr := &transcribemock.Transcriber{Err: errors.New("whisper down")}
	an := &analysismock.Provider{}
	dl := &recordingSink{}
	p := newTestPipeline(tr, an, dl)
	p.Transcript().Append("earlier text ")

	outcome, err := p.HandleSegment(context.Background(), speechSegment(0.5))
	if err == nil || outcome != OutcomeError {
		t.Fatalf("got (%q, %v), want collaborator error", outcome, err)
	}
	if len(an.ExtractCalls) != 0 {
		t.Fatal("extraction must not run after a transcription failure")
	}
	if got := p.Transcript().Snapshot(); got != "earlier text " {
		t.Fatalf("transcript = %q, state must survive the failure", got)
	}
}

func TestHandleSegmentMalformedOptionsAbandonRun(t *testing.T) {
	t.Parallel()

	tr := &transcribemock.Transcriber{Text: "question text"}
	an := &analysismock.Provider{
		Extraction: analysis.Extraction{Found: true, Question: "Q?"},
		Relevant:   true,
		Options:    analysis.OptionSet{Correct: "a", Incorrect: []string{"b", "c"}},
	}
	dl := &recordingSink{}
	p := newTestPipeline(tr, an, dl)

	outcome, err := p.HandleSegment(context.Background(), speechSegment(0.5))
	if outcome != OutcomeError || !errors.Is(err, analysis.ErrMalformedOptions) {
		t.Fatalf("got (%q, %v), want malformed-options error", outcome, err)
	}
	if len(dl.Questions) != 0 {
		t.Fatal("malformed options must not be dispatched")
	}
}

func TestHandleSegmentDispatchFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	tr := &transcribemock.Transcriber{Text: "question text"}
	an := &analysismock.Provider{
		Extraction: analysis.Extraction{Found: true, Question: "Q?"},
		Relevant:   true,
		Options:    goodOptions,
	}
	dl := &recordingSink{Err: errors.New("server rejected")}
	p := newTestPipeline(tr, an, dl)

	outcome, err := p.HandleSegment(context.Background(), speechSegment(0.5))
	if outcome != OutcomeError || err == nil {
		t.Fatalf("got (%q, %v), want error outcome", outcome, err)
	}
	if len(dl.Questions) != 1 {
		t.Fatalf("Deliver called %d times, want exactly 1 (at-most-once)", len(dl.Questions))
	}
}

func TestHandleSegmentRetriesIdempotentStage(t *testing.T) {
	t.Parallel()

	tr := &transcribemock.Transcriber{Text: "some speech"}
	an := &analysismock.Provider{}
	dl := &recordingSink{}

	p := New(Deps{
		Transcriber: tr,
		Analyzer:    an,
		Deliverer:   dl,
	}, Config{
		CallTimeout: time.Second,
		Retry:       resilience.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})

	// First two transcription attempts fail, third succeeds.
	calls := 0
	failing := &flakyTranscriber{inner: tr, failures: 2, calls: &calls}
	p.deps.Transcriber = failing

	outcome, err := p.HandleSegment(context.Background(), speechSegment(0.5))
	if err != nil {
		t.Fatalf("HandleSegment: %v", err)
	}
	if outcome != OutcomeNoQuestion {
		t.Fatalf("outcome = %q, want no_question", outcome)
	}
	if calls != 3 {
		t.Fatalf("transcriber called %d times, want 3", calls)
	}
}

type flakyTranscriber struct {
	inner    *transcribemock.Transcriber
	failures int
	calls    *int
}

func (f *flakyTranscriber) Transcribe(ctx context.Context, samples []float32, rate int) (string, error) {
	*f.calls++
	if *f.calls <= f.failures {
		return "", errors.New("transient")
	}
	return f.inner.Transcribe(ctx, samples, rate)
}

// ---- shuffle ----------------------------------------------------------------

func TestShuffleOptionsInvariants(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(42, 0))
	for range 100 {
		options, idx := shuffleOptions(rng, goodOptions)

		if len(options) != 4 {
			t.Fatalf("len(options) = %d", len(options))
		}
		if idx < 0 || idx > 3 {
			t.Fatalf("correctIndex = %d out of range", idx)
		}
		if options[idx] != goodOptions.Correct {
			t.Fatalf("options[%d] = %q, want %q", idx, options[idx], goodOptions.Correct)
		}

		sorted := append([]string(nil), options...)
		sort.Strings(sorted)
		want := []string{"Helsinki", "Oslo", "Stockholm", "Tallinn"}
		for i := range want {
			if sorted[i] != want[i] {
				t.Fatalf("multiset changed by shuffle: %v", options)
			}
		}
	}
}

func TestShuffleOptionsDuplicateCorrectResolvesToFirst(t *testing.T) {
	t.Parallel()

	set := analysis.OptionSet{
		Correct:   "same",
		Incorrect: []string{"same", "other", "third"},
	}
	rng := rand.New(rand.NewPCG(7, 7))
	for range 50 {
		options, idx := shuffleOptions(rng, set)
		for i, opt := range options {
			if opt == "same" {
				if i != idx {
					t.Fatalf("correctIndex = %d, first match at %d", idx, i)
				}
				break
			}
		}
	}
}

func TestShuffleOptionsCoversAllPositions(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 9))
	seen := map[int]bool{}
	for range 200 {
		_, idx := shuffleOptions(rng, goodOptions)
		seen[idx] = true
	}
	for i := range 4 {
		if !seen[i] {
			t.Fatalf("correct answer never landed at position %d", i)
		}
	}
}

func TestHandleSegmentBreakerFailsFastAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	tr := &transcribemock.Transcriber{Err: errors.New("whisper down")}
	an := &analysismock.Provider{}
	p := newTestPipeline(tr, an, &recordingSink{})

	// Default breaker limit is five consecutive failures.
	for range 5 {
		if _, err := p.HandleSegment(context.Background(), speechSegment(0.5)); err == nil {
			t.Fatal("HandleSegment = nil error with failing transcriber")
		}
	}
	if len(tr.Calls) != 5 {
		t.Fatalf("transcriber calls = %d, want 5", len(tr.Calls))
	}

	outcome, err := p.HandleSegment(context.Background(), speechSegment(0.5))
	if !errors.Is(err, resilience.ErrBreakerOpen) {
		t.Fatalf("HandleSegment err = %v, want ErrBreakerOpen", err)
	}
	if outcome != OutcomeError {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeError)
	}
	if len(tr.Calls) != 5 {
		t.Errorf("transcriber calls = %d after breaker opened, want 5", len(tr.Calls))
	}
}
