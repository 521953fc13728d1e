package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per collaborator kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcriber": {"whisper", "whisper-native"},
	"analysis":    {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.BlockDuration < 0 {
		errs = append(errs, fmt.Errorf("audio.block_duration %s must not be negative", cfg.Audio.BlockDuration))
	}
	if cfg.Audio.QueueDepth < 0 {
		errs = append(errs, fmt.Errorf("audio.queue_depth %d must not be negative", cfg.Audio.QueueDepth))
	}

	// Segmenter
	if cfg.Segmenter.VolumeThreshold < 0 || cfg.Segmenter.VolumeThreshold > 1 {
		errs = append(errs, fmt.Errorf("segmenter.volume_threshold %.2f is out of range [0, 1]", cfg.Segmenter.VolumeThreshold))
	}
	if cfg.Segmenter.SpeechPause < 0 {
		errs = append(errs, fmt.Errorf("segmenter.speech_pause %s must not be negative", cfg.Segmenter.SpeechPause))
	}
	if cfg.Segmenter.MaxSegmentDuration < 0 {
		errs = append(errs, fmt.Errorf("segmenter.max_segment_duration %s must not be negative", cfg.Segmenter.MaxSegmentDuration))
	}

	// Sink
	if cfg.Sink.URL == "" {
		errs = append(errs, errors.New("sink.url is required"))
	}
	if !cfg.Sink.WireFormat.Valid() {
		errs = append(errs, fmt.Errorf("sink.wire_format %q is invalid; valid values: quiz, legacy", cfg.Sink.WireFormat))
	}
	if cfg.Sink.Secret == "" {
		slog.Warn("sink.secret is empty; the quiz endpoint will likely reject deliveries")
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	validateProviderName("analysis", cfg.Providers.Analysis.Name)

	// Transcriber cross-validation
	switch cfg.Providers.Transcriber.Name {
	case "whisper":
		if cfg.Providers.Transcriber.URL == "" {
			errs = append(errs, errors.New(`providers.transcriber.url is required when name is "whisper"`))
		}
	case "whisper-native":
		if cfg.Providers.Transcriber.ModelPath == "" {
			errs = append(errs, errors.New(`providers.transcriber.model_path is required when name is "whisper-native"`))
		}
	}

	// Pipeline
	if cfg.Pipeline.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("pipeline.retry.max_attempts %d must not be negative", cfg.Pipeline.Retry.MaxAttempts))
	}

	// Theme availability
	if len(cfg.Themes) == 0 {
		slog.Warn("themes is empty; every extracted question will be treated as relevant")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
