package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/katibhealth/katib/pkg/provider/transcribe"
)

var errRateLimited = transcribe.NewTransient("rate_limited", errors.New("429"))

func failN(t *testing.T, cb *CircuitBreaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := cb.Execute(func() error { return errRateLimited }); !errors.Is(err, errRateLimited) {
			t.Fatalf("failure %d: err = %v", i, err)
		}
	}
}

func TestCircuitBreakerDefaultsTripAfterFiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "hosted"})

	failN(t, cb, 5)
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("call after 5 failures: err = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerClosedForwardsCalls(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "hosted", MaxFailures: 2})

	calls := 0
	for i := 0; i < 10; i++ {
		if err := cb.Execute(func() error { calls++; return nil }); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "hosted", MaxFailures: 2})

	failN(t, cb, 1)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("success call: %v", err)
	}
	failN(t, cb, 1)
	// One failure, success, one failure: never two consecutive.
	if got := cb.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestCircuitBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "hosted", MaxFailures: 1, ResetTimeout: time.Millisecond,
	})

	failN(t, cb, 1)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(5 * time.Millisecond)
	if got := cb.State(); got != StateHalfOpen {
		t.Errorf("state after timeout = %v, want half-open", got)
	}
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if !called {
		t.Error("probe call was not forwarded")
	}
}

func TestCircuitBreakerClosesAfterSuccessfulProbes(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "hosted", MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMax: 2,
	})

	failN(t, cb, 1)
	time.Sleep(5 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("state after probes = %v, want closed", got)
	}
}

func TestCircuitBreakerReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "hosted", MaxFailures: 1, ResetTimeout: time.Hour, HalfOpenMax: 2,
	})

	failN(t, cb, 1)
	// Force the half-open window without waiting an hour.
	cb.mu.Lock()
	cb.lastFailure = time.Now().Add(-2 * time.Hour)
	cb.mu.Unlock()

	failN(t, cb, 1)
	if got := cb.State(); got != StateOpen {
		t.Errorf("state after failed probe = %v, want open", got)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("call after failed probe: err = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerReportsStateChanges(t *testing.T) {
	var got []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "hosted", MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMax: 1,
		OnStateChange: func(name string, from, to State) {
			got = append(got, name+":"+from.String()+">"+to.String())
		},
	})

	failN(t, cb, 1)
	time.Sleep(5 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe call: %v", err)
	}

	want := []string{
		"hosted:closed>open",
		"hosted:open>half-open",
		"hosted:half-open>closed",
	}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCircuitBreakerStateChangeCallbackMayReenter(t *testing.T) {
	var cb *CircuitBreaker
	cb = NewCircuitBreaker(CircuitBreakerConfig{
		Name: "hosted", MaxFailures: 1,
		OnStateChange: func(string, State, State) {
			// Callbacks run outside the breaker lock.
			_ = cb.State()
		},
	})
	failN(t, cb, 1)
	if got := cb.State(); got != StateOpen {
		t.Errorf("state = %v, want open", got)
	}
}

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, c := range cases {
		if got := c.state.String(); got != c.want {
			t.Errorf("State(%d).String() = %q, want %q", c.state, got, c.want)
		}
	}
}
