// Package anyllm provides an analysis provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more. It is the backend of choice for local inference (Ollama, llama.cpp),
// where OpenAI structured outputs are unavailable; instead the model is
// instructed to answer with a bare JSON object and the reply is parsed
// leniently.
package anyllm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/lectrify/lectrify/pkg/provider/analysis"
)

const extractPrompt = `The user is speaking to an audience.

Determine whether what the user says contains a question for the audience.
Keep in mind this is transcribed text, and could have errors.
If there are multiple questions, use only the first complete one.
Shorten the question into a CONCISE quiz format without adding information.
If there is no question, or the question does not make sense, report no question.

Answer with a single JSON object and nothing else:
{"hasQuestion": <bool>, "extractedQuestion": <string>}`

const relevancePrompt = `The user is speaking to an audience.
Determine whether the question is relevant to AT LEAST ONE of the speech themes of: %s.
A question is standalone if it can be asked as a MULTIPLE CHOICE quiz question.
It qualifies only if it is both relevant to at least one theme and standalone.
Keep in mind this is transcribed text, and could have errors, use judgement to determine if something makes sense.

Answer with a single JSON object and nothing else:
{"isRelevant": <bool>}`

const optionsPrompt = `The user will give you a question.

Generate 4 SHORT multiple choice answers for the question.
Each answer must be concise so they can be read fast.
Only 1 of them may be correct; the other 3 must be plausible but incorrect.
The answers should be DIFFICULT and make people think.
Do not number or label the options.

Answer with a single JSON object and nothing else:
{"correctOption": <string>, "incorrectOptions": [<string>, <string>, <string>]}`

// Provider implements analysis.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

var _ analysis.Provider = (*Provider)(nil)

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp". model is the specific model to
// use (e.g.
// "gpt-4o-mini", "llama3.1"). Without an API key option the relevant
// environment variable is used (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// NewOllama creates a Provider backed by Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp", providerName)
	}
}

// ExtractQuestion implements analysis.Provider.
func (p *Provider) ExtractQuestion(ctx context.Context, transcript string) (analysis.Extraction, error) {
	var parsed struct {
		HasQuestion       bool   `json:"hasQuestion"`
		ExtractedQuestion string `json:"extractedQuestion"`
	}
	if err := p.completeJSON(ctx, extractPrompt, transcript, 0, &parsed); err != nil {
		return analysis.Extraction{}, fmt.Errorf("anyllm: extract question: %w", err)
	}
	if !parsed.HasQuestion || parsed.ExtractedQuestion == "" {
		return analysis.Extraction{}, nil
	}
	return analysis.Extraction{Found: true, Question: parsed.ExtractedQuestion}, nil
}

// CheckRelevance implements analysis.Provider.
func (p *Provider) CheckRelevance(ctx context.Context, question string, themes []string) (bool, error) {
	var parsed struct {
		IsRelevant bool `json:"isRelevant"`
	}
	system := fmt.Sprintf(relevancePrompt, strings.Join(themes, ", "))
	if err := p.completeJSON(ctx, system, question, 0, &parsed); err != nil {
		return false, fmt.Errorf("anyllm: check relevance: %w", err)
	}
	return parsed.IsRelevant, nil
}

// GenerateOptions implements analysis.Provider.
func (p *Provider) GenerateOptions(ctx context.Context, question string) (analysis.OptionSet, error) {
	var parsed struct {
		CorrectOption    string   `json:"correctOption"`
		IncorrectOptions []string `json:"incorrectOptions"`
	}
	if err := p.completeJSON(ctx, optionsPrompt, question, 1, &parsed); err != nil {
		return analysis.OptionSet{}, fmt.Errorf("anyllm: generate options: %w", err)
	}
	return analysis.OptionSet{
		Correct:   parsed.CorrectOption,
		Incorrect: parsed.IncorrectOptions,
	}, nil
}

// completeJSON runs a completion and decodes the reply into out, tolerating
// markdown code fences around the JSON object.
func (p *Provider) completeJSON(ctx context.Context, system, user string, temperature float64, out any) error {
	params := anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: system},
			{Role: anyllmlib.RoleUser, Content: user},
		},
	}
	params.Temperature = &temperature

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("empty choices in response")
	}

	content := stripFences(resp.Choices[0].Message.ContentString())
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("decode reply %q: %w", content, err)
	}
	return nil
}

// stripFences removes a surrounding markdown code fence, which smaller local
// models tend to add despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
