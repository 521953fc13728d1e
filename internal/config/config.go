// Package config provides the configuration schema, loader, and provider
// registry for the Lectrify capture service.
package config

import (
	"time"

	"github.com/lectrify/lectrify/internal/sink"
)

// LogLevel controls log verbosity for the Lectrify service.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Lectrify.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Audio      AudioConfig     `yaml:"audio"`
	Segmenter  SegmenterConfig `yaml:"segmenter"`
	Themes     []string        `yaml:"themes"`
	Vocabulary []string        `yaml:"vocabulary"`
	Sink       SinkConfig      `yaml:"sink"`
	Providers  ProvidersConfig `yaml:"providers"`
	Pipeline   PipelineConfig  `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings for the admin HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the admin server listens on (e.g., ":8080").
	// Leave empty to disable the admin server entirely.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds microphone capture settings.
type AudioConfig struct {
	// SampleRate is the capture rate in Hz. Defaults to 16000, which is what
	// speech models expect.
	SampleRate int `yaml:"sample_rate"`

	// BlockDuration is the length of each captured frame. Defaults to 2s.
	BlockDuration time.Duration `yaml:"block_duration"`

	// Device optionally selects a capture device by name substring.
	// Empty means the system default input.
	Device string `yaml:"device"`

	// QueueDepth bounds the frame queue between the capture callback and the
	// segmenter. Defaults to 32 frames, which at the default block duration
	// covers about a minute of pipeline stall.
	QueueDepth int `yaml:"queue_depth"`
}

// SegmenterConfig holds utterance boundary detection settings.
type SegmenterConfig struct {
	// VolumeThreshold is the peak amplitude (0..1) above which a frame counts
	// as speech. Defaults to 0.2.
	VolumeThreshold float64 `yaml:"volume_threshold"`

	// SpeechPause is how long the signal must stay below the threshold before
	// the accumulated utterance is flushed. Defaults to 500ms.
	SpeechPause time.Duration `yaml:"speech_pause"`

	// MaxSegmentDuration caps an utterance's length; a segment is force-flushed
	// once it accumulates this much audio. Zero disables the cap.
	MaxSegmentDuration time.Duration `yaml:"max_segment_duration"`
}

// SinkConfig holds delivery settings for the quiz endpoint.
type SinkConfig struct {
	// URL is the full endpoint address (e.g., "https://quiz.example.com/admin/addQuiz").
	URL string `yaml:"url"`

	// Secret authenticates requests with the sink.
	Secret string `yaml:"secret"`

	// Code identifies the session or room the questions belong to.
	Code string `yaml:"code"`

	// WireFormat selects the request body shape. Defaults to "quiz".
	WireFormat sink.WireFormat `yaml:"wire_format"`

	// Timeout bounds each delivery request. Defaults to 10s.
	Timeout time.Duration `yaml:"timeout"`
}

// ProvidersConfig declares which implementation to use for each collaborator.
// The Name fields select constructors registered in the [Registry].
type ProvidersConfig struct {
	Transcriber TranscriberEntry `yaml:"transcriber"`
	Analysis    AnalysisEntry    `yaml:"analysis"`
}

// TranscriberEntry configures the speech-to-text collaborator.
type TranscriberEntry struct {
	// Name selects the implementation: "whisper" (HTTP server) or
	// "whisper-native" (in-process via cgo bindings).
	Name string `yaml:"name"`

	// URL is the whisper.cpp server address when Name is "whisper".
	URL string `yaml:"url"`

	// Model selects the server-side model when Name is "whisper".
	Model string `yaml:"model"`

	// Language hints the spoken language (e.g., "en"). Empty means auto-detect
	// for whisper-native and "en" for the HTTP client.
	Language string `yaml:"language"`

	// ModelPath is the GGML model file path when Name is "whisper-native".
	ModelPath string `yaml:"model_path"`
}

// AnalysisEntry configures the language-model collaborator used for question
// extraction, relevance checking, and option generation.
type AnalysisEntry struct {
	// Name selects the implementation. "openai" uses the official API with
	// structured outputs; any other recognised name ("anthropic", "ollama",
	// "gemini", "deepseek", "mistral", "groq") goes through the multi-backend
	// client.
	Name string `yaml:"name"`

	// APIKey authenticates with the provider. Unused for local backends.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// ExtractModel is the model used for extraction and relevance checks.
	// These calls run on every utterance, so a small fast model is appropriate.
	ExtractModel string `yaml:"extract_model"`

	// OptionsModel is the model used for answer option generation.
	OptionsModel string `yaml:"options_model"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	// CallTimeout bounds each collaborator call. Defaults to 30s.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// Retry configures retries for idempotent collaborator calls.
	// Delivery to the sink is never retried.
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig mirrors the retry policy knobs.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}
