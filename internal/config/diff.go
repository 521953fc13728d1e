package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything touching
// the capture device or provider wiring requires a restart.
type ConfigDiff struct {
	ThemesChanged     bool
	NewThemes         []string
	VocabularyChanged bool
	NewVocabulary     []string
	LogLevelChanged   bool
	NewLogLevel       LogLevel
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.ThemesChanged || d.VocabularyChanged || d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Themes, new.Themes) {
		d.ThemesChanged = true
		d.NewThemes = slices.Clone(new.Themes)
	}

	if !slices.Equal(old.Vocabulary, new.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = slices.Clone(new.Vocabulary)
	}

	return d
}
