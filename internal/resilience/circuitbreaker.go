// Package resilience keeps the pipeline's external backends (hosted
// speech-to-text, chat models, the local whisper fallback) from taking a
// clinic session down with them. A [CircuitBreaker] trips after consecutive
// backend failures; [FallbackGroup] chains backends behind per-entry breakers
// so a rate-limited primary degrades to the next configured backend.
//
// Failover and breaker transitions are reported through [Observer] so they
// land in the same instrument set as the pipeline stages.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Allow] and
// [CircuitBreaker.Execute] while the breaker is open and the reset timeout
// has not elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through after the
	// reset timeout. Enough successes close the breaker; one failure
	// re-opens it.
	StateHalfOpen
)

// String returns the state name used in logs and metric attributes.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs, metrics and state-change callbacks.
	// FallbackGroup sets it to the backend name.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before allowing
	// half-open probes. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed in the half-open
	// state. Default: 3.
	HalfOpenMax int

	// OnStateChange, when set, is invoked after every state transition with
	// the breaker name and both states. It is called outside the breaker's
	// lock, so it may call back into the breaker.
	OnStateChange func(name string, from, to State)

	// Logger receives transition logs. Defaults to [slog.Default].
	Logger *slog.Logger
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	onStateChange func(name string, from, to State)
	log           *slog.Logger

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenFails   int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied
// configuration. Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		onStateChange: cfg.OnStateChange,
		log:           cfg.Logger,
		state:         StateClosed,
	}
}

// transition records a state change made while the lock was held so the
// callback can run after it is released.
type transition struct {
	from, to State
}

// setState changes the state and returns the transition for later
// notification. Must be called with cb.mu held.
func (cb *CircuitBreaker) setState(to State) *transition {
	if to == cb.state {
		return nil
	}
	tr := &transition{from: cb.state, to: to}
	cb.state = to
	return tr
}

// notify reports a transition to the logger and the state-change callback.
// Must be called without cb.mu held.
func (cb *CircuitBreaker) notify(tr *transition) {
	if tr == nil {
		return
	}
	cb.log.Info("circuit breaker state changed",
		"name", cb.name, "from", tr.from.String(), "to", tr.to.String())
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, tr.from, tr.to)
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. In the half-open state a limited
// number of probe calls are permitted.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	var tr *transition
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		tr = cb.setState(StateHalfOpen)
		cb.halfOpenCalls = 0
		cb.halfOpenFails = 0

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			// Probe budget exhausted until an earlier probe settles the state.
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	inHalfOpen := cb.state == StateHalfOpen
	if inHalfOpen {
		cb.halfOpenCalls++
	}
	cb.mu.Unlock()
	cb.notify(tr)

	err := fn()

	cb.mu.Lock()
	if err != nil {
		tr = cb.recordFailure(inHalfOpen)
	} else {
		tr = cb.recordSuccess(inHalfOpen)
	}
	cb.mu.Unlock()
	cb.notify(tr)
	return err
}

// recordFailure handles failure accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(inHalfOpen bool) *transition {
	cb.lastFailure = time.Now()

	if inHalfOpen {
		cb.halfOpenFails++
		// One failed probe re-opens the breaker.
		cb.consecutiveFail = cb.maxFailures
		return cb.setState(StateOpen)
	}

	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures {
		return cb.setState(StateOpen)
	}
	return nil
}

// recordSuccess handles success accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(inHalfOpen bool) *transition {
	if inHalfOpen {
		successes := cb.halfOpenCalls - cb.halfOpenFails
		if successes >= cb.halfOpenMax {
			cb.consecutiveFail = 0
			cb.halfOpenCalls = 0
			cb.halfOpenFails = 0
			return cb.setState(StateClosed)
		}
		return nil
	}

	cb.consecutiveFail = 0
	return nil
}

// State returns the current [State] of the breaker. If the breaker is open
// and the reset timeout has elapsed, the returned state is [StateHalfOpen]
// (the actual transition happens on the next [Execute] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}
