// Package mock provides a test double for the analysis.Provider interface.
//
// Use Provider in unit tests to feed controlled extraction, relevance, and
// option-generation results without a live model backend. All fields are safe
// to set before calling any method; mutating them during a concurrent call is
// the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Extraction: analysis.Extraction{Found: true, Question: "What is Go?"},
//	    Relevant:   true,
//	}
package mock

import (
	"context"
	"sync"

	"github.com/lectrify/lectrify/pkg/provider/analysis"
)

// ExtractCall records a single invocation of ExtractQuestion.
type ExtractCall struct {
	// Transcript is the text passed to ExtractQuestion.
	Transcript string
}

// RelevanceCall records a single invocation of CheckRelevance.
type RelevanceCall struct {
	// Question is the question passed to CheckRelevance.
	Question string
	// Themes is the theme list passed to CheckRelevance.
	Themes []string
}

// OptionsCall records a single invocation of GenerateOptions.
type OptionsCall struct {
	// Question is the question passed to GenerateOptions.
	Question string
}

// Provider is a mock implementation of analysis.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject failures.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Extraction is returned by ExtractQuestion. When Extractions is
	// non-empty it takes precedence: calls consume its entries in order, and
	// the last entry repeats once exhausted.
	Extraction  analysis.Extraction
	Extractions []analysis.Extraction

	// ExtractErr, if non-nil, is returned as the error from ExtractQuestion.
	ExtractErr error

	// Relevant is returned by CheckRelevance.
	Relevant bool

	// RelevanceErr, if non-nil, is returned as the error from CheckRelevance.
	RelevanceErr error

	// Options is returned by GenerateOptions.
	Options analysis.OptionSet

	// OptionsErr, if non-nil, is returned as the error from GenerateOptions.
	OptionsErr error

	// --- Call records (read after test) ---

	// ExtractCalls records every invocation of ExtractQuestion in order.
	ExtractCalls []ExtractCall

	// RelevanceCalls records every invocation of CheckRelevance in order.
	RelevanceCalls []RelevanceCall

	// OptionsCalls records every invocation of GenerateOptions in order.
	OptionsCalls []OptionsCall
}

// ExtractQuestion records the call and returns the configured extraction.
func (p *Provider) ExtractQuestion(_ context.Context, transcript string) (analysis.Extraction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ExtractCalls = append(p.ExtractCalls, ExtractCall{Transcript: transcript})

	if p.ExtractErr != nil {
		return analysis.Extraction{}, p.ExtractErr
	}
	if n := len(p.Extractions); n > 0 {
		i := len(p.ExtractCalls) - 1
		if i >= n {
			i = n - 1
		}
		return p.Extractions[i], nil
	}
	return p.Extraction, nil
}

// CheckRelevance records the call and returns Relevant, RelevanceErr.
func (p *Provider) CheckRelevance(_ context.Context, question string, themes []string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := make([]string, len(themes))
	copy(t, themes)
	p.RelevanceCalls = append(p.RelevanceCalls, RelevanceCall{Question: question, Themes: t})
	if p.RelevanceErr != nil {
		return false, p.RelevanceErr
	}
	return p.Relevant, nil
}

// GenerateOptions records the call and returns Options, OptionsErr.
func (p *Provider) GenerateOptions(_ context.Context, question string) (analysis.OptionSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OptionsCalls = append(p.OptionsCalls, OptionsCall{Question: question})
	if p.OptionsErr != nil {
		return analysis.OptionSet{}, p.OptionsErr
	}
	return p.Options, nil
}

// CallCounts returns the number of recorded calls per method. Safe to poll
// from another goroutine while the provider is in use.
func (p *Provider) CallCounts() (extract, relevance, options int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ExtractCalls), len(p.RelevanceCalls), len(p.OptionsCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ExtractCalls = nil
	p.RelevanceCalls = nil
	p.OptionsCalls = nil
}

// Ensure Provider implements analysis.Provider at compile time.
var _ analysis.Provider = (*Provider)(nil)
