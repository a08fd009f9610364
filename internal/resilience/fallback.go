package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend in a [FallbackGroup] fails or
// has an open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// Observer receives failover telemetry from a [FallbackGroup] and its
// breakers. *observe.PipelineObserver is the production implementation.
type Observer interface {
	// ProviderFailover is called when a backend fails and the group moves on
	// to the next one (or gives up, when it was the last).
	ProviderFailover(provider string)

	// BreakerStateChanged is called after a backend's circuit breaker
	// changes state.
	BreakerStateChanged(name, from, to string)
}

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the per-backend breaker configuration. The Name and
	// OnStateChange fields are set by the group itself.
	CircuitBreaker CircuitBreakerConfig

	// Observer, when set, receives failover and breaker-transition events.
	Observer Observer

	// Logger receives failover logs. Defaults to [slog.Default].
	Logger *slog.Logger
}

// fallbackEntry pairs a backend with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same backend type. When the primary fails (or its circuit breaker is open),
// the next healthy fallback is tried in registration order.
//
// FallbackGroup is safe for concurrent use after registration.
type FallbackGroup[T any] struct {
	entries  []fallbackEntry[T]
	cfg      FallbackConfig
	observer Observer
	log      *slog.Logger
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
// Additional backends are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	fg := &FallbackGroup[T]{
		cfg:      cfg,
		observer: cfg.Observer,
		log:      cfg.Logger,
	}
	fg.entries = append(fg.entries, fg.newEntry(primaryName, primary))
	return fg
}

// AddFallback appends a fallback backend. Fallbacks are tried in the order
// they are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.entries = append(fg.entries, fg.newEntry(name, fallback))
}

func (fg *FallbackGroup[T]) newEntry(name string, value T) fallbackEntry[T] {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	cbCfg.Logger = fg.log
	if fg.observer != nil {
		obs := fg.observer
		cbCfg.OnStateChange = func(name string, from, to State) {
			obs.BreakerStateChanged(name, from.String(), to.String())
		}
	}
	return fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	}
}

// Healthy reports whether at least one backend's circuit breaker would admit
// a call right now.
func (fg *FallbackGroup[T]) Healthy() bool {
	for i := range fg.entries {
		if fg.entries[i].breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Execute tries fn against each backend in order until one succeeds.
// Open-breaker backends are skipped. When every backend fails, the returned
// error wraps both [ErrAllFailed] and the last backend error, so error
// classification (transient rate limits versus permanent rejections)
// survives the group.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	var lastErr error
	for i := range fg.entries {
		entry := &fg.entries[i]
		if entry.breaker.State() == StateOpen {
			fg.log.Debug("skipping backend, circuit open", "provider", entry.name)
			continue
		}
		err := entry.breaker.Execute(func() error {
			return fn(entry.value)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			fg.log.Debug("skipping backend, circuit open", "provider", entry.name)
			continue
		}
		lastErr = err
		fg.log.Warn("backend failed, trying next",
			"provider", entry.name, "error", err)
		if fg.observer != nil {
			fg.observer.ProviderFailover(entry.name)
		}
	}
	if lastErr == nil {
		lastErr = ErrCircuitOpen
	}
	return fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// ExecuteWithResult tries fn against each backend in the group until one
// succeeds, returning both the result value and error. This is a
// package-level function because Go does not support method-level type
// parameters. Error semantics match [FallbackGroup.Execute].
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		if entry.breaker.State() == StateOpen {
			fg.log.Debug("skipping backend, circuit open", "provider", entry.name)
			continue
		}
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			fg.log.Debug("skipping backend, circuit open", "provider", entry.name)
			continue
		}
		lastErr = err
		fg.log.Warn("backend failed, trying next",
			"provider", entry.name, "error", err)
		if fg.observer != nil {
			fg.observer.ProviderFailover(entry.name)
		}
	}
	if lastErr == nil {
		lastErr = ErrCircuitOpen
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
