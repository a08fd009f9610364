package config

import (
	"slices"

	"github.com/katibhealth/katib/internal/session"
)

// Diff describes the hot-reloadable differences between two configs. Fields
// outside this set (listen address, providers, storage, render) require a
// restart and are ignored by the watcher.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	EditPolicyChanged bool
	NewEditPolicy     session.EditPolicy

	VocabularyChanged bool
	NewVocabulary     []string
}

// Empty reports whether the diff contains no changes.
func (d Diff) Empty() bool {
	return !d.LogLevelChanged && !d.EditPolicyChanged && !d.VocabularyChanged
}

// ComputeDiff compares the hot-reloadable fields of two configs.
func ComputeDiff(old, new *Config) Diff {
	var d Diff
	if old == nil || new == nil {
		return d
	}
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Pipeline.EditPolicy != new.Pipeline.EditPolicy {
		d.EditPolicyChanged = true
		d.NewEditPolicy = new.Pipeline.EditPolicy
	}
	if !slices.Equal(old.Pipeline.Vocabulary, new.Pipeline.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = slices.Clone(new.Pipeline.Vocabulary)
	}
	return d
}
