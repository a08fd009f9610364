package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file for changes and reloads it when its content
// changes. A change is detected by modification time first, then confirmed
// with a content hash so touch(1) alone does not trigger a reload.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	log      *slog.Logger

	mu      sync.RWMutex
	current *Config
	modTime time.Time
	hash    [sha256.Size]byte

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWatcher loads the config at path and starts polling it every interval.
// onChange is called with the previous and the newly loaded config whenever a
// valid change is picked up; invalid configs are logged and skipped, keeping
// the last good config active.
func NewWatcher(path string, interval time.Duration, onChange func(old, new *Config), log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	data, info, err := readFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	w := &Watcher{
		path:     path,
		interval: interval,
		onChange: onChange,
		log:      log,
		current:  cfg,
		modTime:  info.ModTime(),
		hash:     sha256.Sum256(data),
		stop:     make(chan struct{}),
	}
	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Stop terminates the polling goroutine. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config watcher: stat failed", "path", w.path, "error", err)
		return
	}
	w.mu.RLock()
	unchanged := !info.ModTime().After(w.modTime)
	w.mu.RUnlock()
	if unchanged {
		return
	}

	data, info, err := readFile(w.path)
	if err != nil {
		w.log.Warn("config watcher: read failed", "path", w.path, "error", err)
		return
	}
	sum := sha256.Sum256(data)

	w.mu.RLock()
	sameContent := sum == w.hash
	w.mu.RUnlock()
	if sameContent {
		w.mu.Lock()
		w.modTime = info.ModTime()
		w.mu.Unlock()
		return
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		w.log.Warn("config watcher: reload rejected, keeping previous config",
			"path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.modTime = info.ModTime()
	w.hash = sum
	w.mu.Unlock()

	w.log.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

func readFile(path string) ([]byte, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("config: stat %q: %w", path, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return data, info, nil
}
