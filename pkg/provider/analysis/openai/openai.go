// Package openai provides an analysis provider backed by the OpenAI API.
//
// Extraction and relevance use a small, cheap model with deterministic
// settings; option generation uses a larger model with temperature 1 so the
// distractors vary between runs. All calls request structured outputs via a
// strict JSON schema, so responses parse without prompt-level coaxing.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/lectrify/lectrify/pkg/provider/analysis"
)

const (
	defaultExtractModel = "gpt-4o-mini"
	defaultOptionsModel = "gpt-4o"

	extractMaxTokens   = 50
	relevanceMaxTokens = 20
	optionsMaxTokens   = 200
)

const extractSystemPrompt = `The user is speaking to an audience.

You must determine whether or not what the user says contains a question for the audience.

Keep in mind this is transcribed text, and could have errors.
If there are multiple questions, say only the first complete one.

Shorten the question such that it is in a CONCISE quiz-format. DO NOT add any additional information.

If the question does not make sense, set hasQuestion to false.
If there is no question, set hasQuestion to false.`

const relevanceSystemPrompt = `The user is speaking to an audience.
You must determine whether or not the question is relevant to AT LEAST ONE of the speech themes of: %s.

A question is standalone if it can be asked as a MULTIPLE CHOICE quiz question.

If the question is relevant to AT LEAST ONE theme and can be a standalone question, set isRelevant to true.
If the question is not relevant or cannot be standalone, set isRelevant to false.
Keep in mind this is transcribed text, and could have errors, use judgement to determine if something makes sense.`

const optionsSystemPrompt = `The user will give you a question.

Generate 4 SHORT multiple choice answers for the question.
Each answer must be concise so they can be read fast.

Only 1 of them may be correct.
3 of them must be plausible, but incorrect.

The answers should be DIFFICULT and they need to make people think.
Do not NUMBER or label the options, these labels are added later.`

// Provider implements analysis.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	extractModel string
	optionsModel string
}

var _ analysis.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	timeout      time.Duration
	extractModel string
	optionsModel string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithExtractModel overrides the model used for extraction and relevance.
func WithExtractModel(model string) Option {
	return func(c *config) {
		c.extractModel = model
	}
}

// WithOptionsModel overrides the model used for option generation.
func WithOptionsModel(model string) Option {
	return func(c *config) {
		c.optionsModel = model
	}
}

// New constructs a new OpenAI analysis Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{
		extractModel: defaultExtractModel,
		optionsModel: defaultOptionsModel,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		extractModel: cfg.extractModel,
		optionsModel: cfg.optionsModel,
	}, nil
}

// questionResponse mirrors the structured-output schema for extraction.
type questionResponse struct {
	HasQuestion       bool   `json:"hasQuestion"`
	ExtractedQuestion string `json:"extractedQuestion"`
}

// relevantResponse mirrors the structured-output schema for relevance.
type relevantResponse struct {
	IsRelevant bool `json:"isRelevant"`
}

// optionsResponse mirrors the structured-output schema for option generation.
type optionsResponse struct {
	CorrectOption    string   `json:"correctOption"`
	IncorrectOptions []string `json:"incorrectOptions"`
}

// ExtractQuestion implements analysis.Provider.
func (p *Provider) ExtractQuestion(ctx context.Context, transcript string) (analysis.Extraction, error) {
	schema := objectSchema(map[string]any{
		"hasQuestion":       map[string]any{"type": "boolean"},
		"extractedQuestion": map[string]any{"type": "string"},
	})

	var parsed questionResponse
	err := p.completeJSON(ctx, completionSpec{
		model:         p.extractModel,
		system:        extractSystemPrompt,
		user:          transcript,
		maxTokens:     extractMaxTokens,
		schemaName:    "question_response",
		schema:        schema,
		deterministic: true,
	}, &parsed)
	if err != nil {
		return analysis.Extraction{}, fmt.Errorf("openai: extract question: %w", err)
	}

	if !parsed.HasQuestion || parsed.ExtractedQuestion == "" {
		return analysis.Extraction{}, nil
	}
	return analysis.Extraction{Found: true, Question: parsed.ExtractedQuestion}, nil
}

// CheckRelevance implements analysis.Provider.
func (p *Provider) CheckRelevance(ctx context.Context, question string, themes []string) (bool, error) {
	schema := objectSchema(map[string]any{
		"isRelevant": map[string]any{"type": "boolean"},
	})

	var parsed relevantResponse
	err := p.completeJSON(ctx, completionSpec{
		model:         p.extractModel,
		system:        fmt.Sprintf(relevanceSystemPrompt, strings.Join(themes, ", ")),
		user:          question,
		maxTokens:     relevanceMaxTokens,
		schemaName:    "is_relevant_response",
		schema:        schema,
		deterministic: true,
	}, &parsed)
	if err != nil {
		return false, fmt.Errorf("openai: check relevance: %w", err)
	}
	return parsed.IsRelevant, nil
}

// GenerateOptions implements analysis.Provider.
func (p *Provider) GenerateOptions(ctx context.Context, question string) (analysis.OptionSet, error) {
	schema := objectSchema(map[string]any{
		"correctOption": map[string]any{"type": "string"},
		"incorrectOptions": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	})

	var parsed optionsResponse
	err := p.completeJSON(ctx, completionSpec{
		model:      p.optionsModel,
		system:     optionsSystemPrompt,
		user:       question,
		maxTokens:  optionsMaxTokens,
		schemaName: "multiple_choice_options",
		schema:     schema,
	}, &parsed)
	if err != nil {
		return analysis.OptionSet{}, fmt.Errorf("openai: generate options: %w", err)
	}

	return analysis.OptionSet{
		Correct:   parsed.CorrectOption,
		Incorrect: parsed.IncorrectOptions,
	}, nil
}

// completionSpec describes one structured-output chat completion.
type completionSpec struct {
	model      string
	system     string
	user       string
	maxTokens  int
	schemaName string
	schema     map[string]any

	// deterministic requests temperature 0. When false the model default
	// (temperature 1) applies, which is what option generation wants.
	deterministic bool
}

// completeJSON runs a chat completion with a strict JSON schema response
// format and unmarshals the result into out.
func (p *Provider) completeJSON(ctx context.Context, spec completionSpec, out any) error {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(spec.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(spec.system),
			oai.UserMessage(spec.user),
		},
		MaxCompletionTokens: param.NewOpt(int64(spec.maxTokens)),
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   spec.schemaName,
					Schema: spec.schema,
					Strict: param.NewOpt(true),
				},
			},
		},
	}
	if spec.deterministic {
		params.Temperature = param.NewOpt(0.0)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("empty choices in response")
	}

	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("decode structured output %q: %w", spec.schemaName, err)
	}
	return nil
}

// objectSchema builds a strict object schema with the given properties, all
// required, no additional fields.
func objectSchema(properties map[string]any) map[string]any {
	required := make([]string, 0, len(properties))
	for name := range properties {
		required = append(required, name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}
