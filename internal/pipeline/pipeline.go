// Package pipeline orchestrates the per-segment processing chain: transcribe
// the speech segment, fold the text into the transcript session, extract a
// standalone question, check its relevance against the configured themes,
// generate multiple-choice options, shuffle them, and dispatch the finished
// question to the quiz sink.
//
// The pipeline runs synchronously on the segmenter's consumer goroutine, so
// segments are processed strictly in flush order and a question can never be
// assembled from out-of-order text. Back-pressure from slow collaborators is
// absorbed by the frame queue ahead of the segmenter, never by the audio
// device.
//
// Stage failures are contained: an external-call error abandons the current
// run, leaves the transcript session as the failing stage found it, and the
// next segment starts fresh. A negative classification (no question found,
// not relevant) is a normal outcome, not an error.
package pipeline

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lectrify/lectrify/internal/observe"
	"github.com/lectrify/lectrify/internal/resilience"
	"github.com/lectrify/lectrify/internal/segment"
	"github.com/lectrify/lectrify/internal/session"
	"github.com/lectrify/lectrify/internal/sink"
	"github.com/lectrify/lectrify/internal/vocab"
	"github.com/lectrify/lectrify/pkg/provider/analysis"
	"github.com/lectrify/lectrify/pkg/provider/transcribe"
)

const defaultCallTimeout = 30 * time.Second

// Outcome classifies how one segment run finished.
type Outcome string

const (
	// OutcomeDispatched means a question was delivered to the sink.
	OutcomeDispatched Outcome = observe.OutcomeDispatched

	// OutcomeNoSpeech means transcription produced no usable text.
	OutcomeNoSpeech Outcome = observe.OutcomeNoSpeech

	// OutcomeNoQuestion means the accumulated transcript holds no complete
	// question yet; text keeps accumulating.
	OutcomeNoQuestion Outcome = observe.OutcomeNoQuestion

	// OutcomeIrrelevant means a question was extracted but rejected by the
	// relevance check and discarded.
	OutcomeIrrelevant Outcome = observe.OutcomeIrrelevant

	// OutcomeError means an external collaborator failed and the run was
	// abandoned.
	OutcomeError Outcome = observe.OutcomeCollaboratorErr
)

// Deps bundles the collaborators a Pipeline drives. Transcriber, Analyzer,
// and Deliverer are required; Corrector is optional.
type Deps struct {
	Transcriber transcribe.Transcriber
	Analyzer    analysis.Provider
	Deliverer   sink.Deliverer

	// Corrector, when non-nil, rewrites domain vocabulary in the transcript
	// before analysis.
	Corrector *vocab.Corrector

	// Transcript is the cross-segment session state. When nil a fresh one
	// is created.
	Transcript *session.Transcript

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Rand is the shuffle source. When nil the global math/rand/v2 source
	// is used; tests inject a seeded source for determinism.
	Rand *rand.Rand
}

// Config holds pipeline policy. Zero values are replaced with defaults.
type Config struct {
	// Themes is the ordered topic list the relevance check runs against.
	Themes []string

	// CallTimeout bounds each external call. Default: 30s.
	CallTimeout time.Duration

	// Retry is applied to the idempotent read-only collaborators
	// (transcriber, extractor, relevance checker, option generator).
	// Dispatch is never retried; delivery is at-most-once.
	Retry resilience.RetryPolicy
}

// Pipeline processes flushed speech segments. HandleSegment is not safe for
// concurrent use; the segmenter's single consumer goroutine is the only
// intended caller. SetThemes and SetCorrector may be called from any
// goroutine to apply config reloads.
type Pipeline struct {
	deps       Deps
	cfg        Config
	transcript *session.Transcript
	metrics    *observe.Metrics

	// reloadMu guards themes and corrector, the two knobs that change on
	// config reload.
	reloadMu  sync.RWMutex
	themes    []string
	corrector *vocab.Corrector

	// breakers holds one circuit breaker per idempotent stage, keyed by
	// stage name. Populated lazily from runStage.
	breakerMu sync.Mutex
	breakers  map[string]*resilience.Breaker
}

// New creates a Pipeline from deps and cfg.
func New(deps Deps, cfg Config) *Pipeline {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	p := &Pipeline{
		deps:       deps,
		cfg:        cfg,
		transcript: deps.Transcript,
		metrics:    deps.Metrics,
	}
	if p.transcript == nil {
		p.transcript = session.New()
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	p.themes = cfg.Themes
	p.corrector = deps.Corrector
	p.breakers = make(map[string]*resilience.Breaker)
	return p
}

// SetThemes replaces the relevance topic list. Safe to call while segments
// are being processed.
func (p *Pipeline) SetThemes(themes []string) {
	p.reloadMu.Lock()
	p.themes = themes
	p.reloadMu.Unlock()
}

// SetCorrector replaces the vocabulary corrector. A nil corrector disables
// correction.
func (p *Pipeline) SetCorrector(c *vocab.Corrector) {
	p.reloadMu.Lock()
	p.corrector = c
	p.reloadMu.Unlock()
}

// Transcript exposes the session state, mainly for tests and health
// reporting.
func (p *Pipeline) Transcript() *session.Transcript {
	return p.transcript
}

// Flush adapts HandleSegment to the segmenter's callback signature. Errors
// are logged and swallowed: one failed segment must not stop the stream.
func (p *Pipeline) Flush(ctx context.Context, seg segment.SpeechSegment) {
	outcome, err := p.HandleSegment(ctx, seg)
	if err != nil {
		observe.Logger(ctx).Error("segment processing failed",
			"outcome", string(outcome),
			"error", err)
	}
}

// HandleSegment runs the full chain for one speech segment and reports how
// the run ended. A non-nil error always pairs with [OutcomeError].
func (p *Pipeline) HandleSegment(ctx context.Context, seg segment.SpeechSegment) (Outcome, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.segment")
	defer span.End()
	log := observe.Logger(ctx)

	// 1. Transcribe.
	text, err := runStage(ctx, p, "transcribe", func(ctx context.Context) (string, error) {
		return p.deps.Transcriber.Transcribe(ctx, seg.Samples(), seg.SampleRate)
	})
	if err != nil {
		p.metrics.RecordCollaboratorError(ctx, "transcriber")
		return p.finish(ctx, OutcomeError, err)
	}
	p.reloadMu.RLock()
	corrector, themes := p.corrector, p.themes
	p.reloadMu.RUnlock()
	if corrector != nil {
		text = corrector.Correct(text)
	}
	log.Debug("segment transcribed",
		"duration", seg.Duration(),
		"text_len", len(text))

	// 2. Accumulate and extract.
	p.transcript.Append(text)
	if p.transcript.Len() == 0 {
		return p.finish(ctx, OutcomeNoSpeech, nil)
	}
	ext, err := runStage(ctx, p, "extract", func(ctx context.Context) (analysis.Extraction, error) {
		return p.transcript.TryExtractQuestion(ctx, p.deps.Analyzer)
	})
	if err != nil {
		p.metrics.RecordCollaboratorError(ctx, "extractor")
		return p.finish(ctx, OutcomeError, err)
	}
	if !ext.Found {
		return p.finish(ctx, OutcomeNoQuestion, nil)
	}
	log.Info("question extracted", "question", ext.Question)

	// 3. Relevance. With no themes configured every question passes.
	relevant := true
	if len(themes) > 0 {
		relevant, err = runStage(ctx, p, "relevance", func(ctx context.Context) (bool, error) {
			return p.deps.Analyzer.CheckRelevance(ctx, ext.Question, themes)
		})
	}
	if err != nil {
		p.metrics.RecordCollaboratorError(ctx, "relevance_checker")
		return p.finish(ctx, OutcomeError, err)
	}
	if !relevant {
		log.Info("question rejected as irrelevant", "question", ext.Question)
		return p.finish(ctx, OutcomeIrrelevant, nil)
	}

	// 4. Options.
	opts, err := runStage(ctx, p, "options", func(ctx context.Context) (analysis.OptionSet, error) {
		set, err := p.deps.Analyzer.GenerateOptions(ctx, ext.Question)
		if err != nil {
			return analysis.OptionSet{}, err
		}
		return set, set.Validate()
	})
	if err != nil {
		p.metrics.RecordCollaboratorError(ctx, "option_generator")
		return p.finish(ctx, OutcomeError, err)
	}

	// 5. Shuffle.
	options, correctIndex := shuffleOptions(p.deps.Rand, opts)
	question := sink.Question{
		Text:         ext.Question,
		Options:      options,
		CorrectIndex: correctIndex,
	}

	// 6. Dispatch, at most once.
	reply, err := p.dispatch(ctx, question)
	if err != nil {
		p.metrics.RecordCollaboratorError(ctx, "sink")
		return p.finish(ctx, OutcomeError, err)
	}
	p.metrics.QuestionsDispatched.Add(ctx, 1)
	log.Info("question dispatched",
		"question", question.Text,
		"correct_index", question.CorrectIndex,
		"sink_reply", reply)
	return p.finish(ctx, OutcomeDispatched, nil)
}

// runStage executes one idempotent external call under the stage's circuit
// breaker, the per-call timeout, and the retry policy, recording its latency.
func runStage[T any](ctx context.Context, p *Pipeline, name string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	var v T
	err := p.breaker(name).Do(ctx, func(ctx context.Context) error {
		var err error
		v, err = resilience.RetryValue(ctx, name, p.cfg.Retry, func(ctx context.Context) (T, error) {
			callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
			defer cancel()
			return fn(callCtx)
		})
		return err
	})
	p.metrics.RecordStage(ctx, name, time.Since(start).Seconds())
	return v, err
}

// breaker returns the named stage breaker, creating it on first use.
func (p *Pipeline) breaker(name string) *resilience.Breaker {
	p.breakerMu.Lock()
	defer p.breakerMu.Unlock()
	b, ok := p.breakers[name]
	if !ok {
		b = resilience.NewBreaker(resilience.BreakerConfig{Name: name})
		p.breakers[name] = b
	}
	return b
}

// dispatch delivers the question with a single attempt.
func (p *Pipeline) dispatch(ctx context.Context, q sink.Question) (string, error) {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	reply, err := p.deps.Deliverer.Deliver(callCtx, q)
	p.metrics.RecordStage(ctx, "dispatch", time.Since(start).Seconds())
	return reply, err
}

// finish records the run outcome.
func (p *Pipeline) finish(ctx context.Context, outcome Outcome, err error) (Outcome, error) {
	p.metrics.RecordOutcome(ctx, string(outcome))
	return outcome, err
}

// shuffleOptions combines the correct and incorrect answers, applies a
// uniform random permutation, and returns the shuffled list with the
// post-shuffle position of the correct answer. When the correct string is
// duplicated among the incorrect options the first matching position wins.
func shuffleOptions(rng *rand.Rand, set analysis.OptionSet) ([]string, int) {
	options := make([]string, 0, 1+len(set.Incorrect))
	options = append(options, set.Correct)
	options = append(options, set.Incorrect...)

	swap := func(i, j int) { options[i], options[j] = options[j], options[i] }
	if rng != nil {
		rng.Shuffle(len(options), swap)
	} else {
		rand.Shuffle(len(options), swap)
	}

	for i, opt := range options {
		if opt == set.Correct {
			return options, i
		}
	}
	// Unreachable: the correct answer is always present.
	return options, 0
}
