// Package analysis defines the Provider interface for the language-model
// steps of the quiz pipeline: extracting a standalone question from raw
// transcript text, judging its relevance against the configured theme set,
// and generating multiple-choice answers for it.
//
// All three operations are read-only from the caller's perspective and may
// safely be retried; implementations wrap a remote model API (e.g. OpenAI)
// or a local inference endpoint and expose a uniform interface so the
// pipeline never couples to a specific SDK.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package analysis

import (
	"context"
	"errors"
	"fmt"
)

// IncorrectOptionCount is the exact number of wrong answers an option set
// must carry. Together with the single correct answer this yields the four
// choices presented downstream.
const IncorrectOptionCount = 3

// ErrMalformedOptions reports an option set that does not satisfy
// [OptionSet.Validate]. Callers treat it like any other collaborator
// failure: the current pipeline run is abandoned.
var ErrMalformedOptions = errors.New("analysis: malformed option set")

// Extraction is the outcome of scanning transcript text for a question.
type Extraction struct {
	// Found reports whether the transcript contained a complete,
	// well-formed standalone question. When false, Question is empty and
	// the caller keeps accumulating transcript text.
	Found bool

	// Question is the extracted question, rewritten into concise quiz form.
	// Only meaningful when Found is true.
	Question string
}

// OptionSet is the generated answer material for one question: one correct
// answer and exactly three plausible but incorrect ones, all unlabelled.
type OptionSet struct {
	Correct   string
	Incorrect []string
}

// Validate reports whether the set is usable: a non-empty correct answer
// and exactly three distinct, non-empty incorrect answers. A violation
// wraps [ErrMalformedOptions].
func (o OptionSet) Validate() error {
	if o.Correct == "" {
		return fmt.Errorf("%w: empty correct answer", ErrMalformedOptions)
	}
	if len(o.Incorrect) != IncorrectOptionCount {
		return fmt.Errorf("%w: got %d incorrect answers, want %d",
			ErrMalformedOptions, len(o.Incorrect), IncorrectOptionCount)
	}
	seen := make(map[string]struct{}, IncorrectOptionCount)
	for _, opt := range o.Incorrect {
		if opt == "" {
			return fmt.Errorf("%w: empty incorrect answer", ErrMalformedOptions)
		}
		if _, dup := seen[opt]; dup {
			return fmt.Errorf("%w: duplicate incorrect answer %q", ErrMalformedOptions, opt)
		}
		seen[opt] = struct{}{}
	}
	return nil
}

// Provider is the abstraction over any question-analysis backend.
type Provider interface {
	// ExtractQuestion scans transcript for the first complete standalone
	// question. Transcribed text is noisy; implementations are expected to
	// tolerate transcription errors and to report Found=false rather than
	// guess when the text does not make sense.
	ExtractQuestion(ctx context.Context, transcript string) (Extraction, error)

	// CheckRelevance reports whether question relates to at least one of
	// the given themes and can stand alone as a multiple-choice quiz
	// question. A false result is a normal negative outcome, not an error.
	CheckRelevance(ctx context.Context, question string, themes []string) (bool, error)

	// GenerateOptions produces one correct and three incorrect answers for
	// question. Implementations should return the set as given by the
	// backend; the caller validates it with [OptionSet.Validate].
	GenerateOptions(ctx context.Context, question string) (OptionSet, error)
}
