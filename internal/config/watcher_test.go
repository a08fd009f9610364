package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, yaml string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "katib.yaml")
	writeConfig(t, path, validYAML)

	changed := make(chan Diff, 1)
	w, err := NewWatcher(path, 10*time.Millisecond, func(old, new *Config) {
		changed <- ComputeDiff(old, new)
	}, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.LogLevel; got != LogInfo {
		t.Fatalf("initial LogLevel = %q, want %q", got, LogInfo)
	}

	// The poller compares modification times before hashing; make sure the
	// rewrite lands on a later mtime even on coarse filesystem clocks.
	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, strings.Replace(validYAML, "log_level: info", "log_level: debug", 1))
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case diff := <-changed:
		if !diff.LogLevelChanged || diff.NewLogLevel != LogDebug {
			t.Errorf("diff = %+v, want log level change to debug", diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	if got := w.Current().Server.LogLevel; got != LogDebug {
		t.Errorf("Current().LogLevel = %q, want %q", got, LogDebug)
	}
}

func TestWatcher_KeepsLastGoodConfigOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "katib.yaml")
	writeConfig(t, path, validYAML)

	w, err := NewWatcher(path, 10*time.Millisecond, nil, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, "server:\n  log_level: bogus\n")
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if w.Current().Server.LogLevel != LogInfo {
			t.Fatalf("watcher replaced config with invalid one: %+v", w.Current())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	if _, err := NewWatcher("/nonexistent/katib.yaml", time.Second, nil, nil); err == nil {
		t.Fatal("NewWatcher() = nil error for missing file")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "katib.yaml")
	writeConfig(t, path, "server:\n  log_level: bogus\n")
	if _, err := NewWatcher(path, time.Second, nil, nil); err == nil {
		t.Fatal("NewWatcher() = nil error for invalid config")
	}
}

func TestComputeDiff(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:   ServerConfig{LogLevel: LogInfo},
			Pipeline: PipelineConfig{EditPolicy: "preserve", Vocabulary: []string{"Paracetamol"}},
		}
	}

	t.Run("no changes", func(t *testing.T) {
		if d := ComputeDiff(base(), base()); !d.Empty() {
			t.Errorf("ComputeDiff() = %+v, want empty", d)
		}
	})

	t.Run("hot-reloadable fields", func(t *testing.T) {
		next := base()
		next.Server.LogLevel = LogWarn
		next.Pipeline.EditPolicy = "overwrite"
		next.Pipeline.Vocabulary = []string{"Paracetamol", "Ventolin"}

		d := ComputeDiff(base(), next)
		if !d.LogLevelChanged || d.NewLogLevel != LogWarn {
			t.Errorf("log level diff = %+v", d)
		}
		if !d.EditPolicyChanged || d.NewEditPolicy != "overwrite" {
			t.Errorf("edit policy diff = %+v", d)
		}
		if !d.VocabularyChanged || len(d.NewVocabulary) != 2 {
			t.Errorf("vocabulary diff = %+v", d)
		}
	})

	t.Run("restart-only fields ignored", func(t *testing.T) {
		next := base()
		next.Server.ListenAddr = ":9090"
		next.Storage.PostgresDSN = "postgres://elsewhere"
		if d := ComputeDiff(base(), next); !d.Empty() {
			t.Errorf("ComputeDiff() = %+v, want empty for restart-only fields", d)
		}
	})
}
