package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/katibhealth/katib/pkg/provider/llm"
	lmock "github.com/katibhealth/katib/pkg/provider/llm/mock"
)

// recordingObserver captures failover telemetry for assertions.
type recordingObserver struct {
	failovers   []string
	transitions []string
}

func (r *recordingObserver) ProviderFailover(provider string) {
	r.failovers = append(r.failovers, provider)
}

func (r *recordingObserver) BreakerStateChanged(name, from, to string) {
	r.transitions = append(r.transitions, name+":"+from+">"+to)
}

func completeOnce(t *testing.T, fg *FallbackGroup[llm.Provider]) (*llm.Response, error) {
	t.Helper()
	return ExecuteWithResult(fg, func(p llm.Provider) (*llm.Response, error) {
		return p.Complete(context.Background(), llm.Request{Prompt: "لخص"})
	})
}

func TestFallbackGroupPrimaryAnswersFirst(t *testing.T) {
	primary := &lmock.Provider{Responses: []*llm.Response{{Content: "ملخص"}}}
	backup := &lmock.Provider{Responses: []*llm.Response{{Content: "احتياطي"}}}

	fg := NewFallbackGroup[llm.Provider](primary, "hosted", FallbackConfig{})
	fg.AddFallback("local", backup)

	resp, err := completeOnce(t, fg)
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if resp.Content != "ملخص" {
		t.Errorf("content = %q, want primary's response", resp.Content)
	}
	if len(backup.Calls) != 0 {
		t.Errorf("backup calls = %d, want 0", len(backup.Calls))
	}
}

func TestFallbackGroupTriesBackendsInOrder(t *testing.T) {
	primary := &lmock.Provider{Errs: []error{errors.New("502")}}
	backup := &lmock.Provider{Responses: []*llm.Response{{Content: "احتياطي"}}}

	fg := NewFallbackGroup[llm.Provider](primary, "hosted", FallbackConfig{})
	fg.AddFallback("local", backup)

	resp, err := completeOnce(t, fg)
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if resp.Content != "احتياطي" {
		t.Errorf("content = %q, want fallback's response", resp.Content)
	}
	if len(primary.Calls) != 1 || len(backup.Calls) != 1 {
		t.Errorf("calls = %d/%d, want 1/1", len(primary.Calls), len(backup.Calls))
	}
}

func TestFallbackGroupAllFailWrapsLastError(t *testing.T) {
	errBackup := errors.New("model not loaded")
	primary := &lmock.Provider{Errs: []error{errors.New("502")}}
	backup := &lmock.Provider{Errs: []error{errBackup}}

	fg := NewFallbackGroup[llm.Provider](primary, "hosted", FallbackConfig{})
	fg.AddFallback("local", backup)

	_, err := completeOnce(t, fg)
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errBackup) {
		t.Errorf("err = %v, want it to wrap the last backend error", err)
	}
}

func TestFallbackGroupExecuteAllFail(t *testing.T) {
	errDown := errors.New("down")
	fg := NewFallbackGroup[llm.Provider](&lmock.Provider{}, "hosted", FallbackConfig{})

	err := fg.Execute(func(llm.Provider) error { return errDown })
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errDown) {
		t.Errorf("err = %v, want ErrAllFailed wrapping the backend error", err)
	}
}

func TestFallbackGroupSkipsOpenBreaker(t *testing.T) {
	primary := &lmock.Provider{Errs: []error{
		errors.New("502"), errors.New("502"), errors.New("502"),
	}}
	backup := &lmock.Provider{Responses: []*llm.Response{{Content: "احتياطي"}}}

	fg := NewFallbackGroup[llm.Provider](primary, "hosted", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("local", backup)

	for i := 0; i < 3; i++ {
		if _, err := completeOnce(t, fg); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}
	// Two failures open the primary's breaker; round 3 must skip it.
	if got := len(primary.Calls); got != 2 {
		t.Errorf("primary calls = %d, want 2", got)
	}
	if got := len(backup.Calls); got != 3 {
		t.Errorf("backup calls = %d, want 3", got)
	}
}

func TestFallbackGroupAllBreakersOpen(t *testing.T) {
	primary := &lmock.Provider{Errs: []error{errors.New("502")}}
	fg := NewFallbackGroup[llm.Provider](primary, "hosted", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})

	if _, err := completeOnce(t, fg); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("tripping round: err = %v", err)
	}
	if fg.Healthy() {
		t.Error("Healthy() = true with the only breaker open")
	}

	_, err := completeOnce(t, fg)
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrAllFailed wrapping ErrCircuitOpen", err)
	}
	if got := len(primary.Calls); got != 1 {
		t.Errorf("primary calls = %d, want 1 (breaker open afterwards)", got)
	}
}

func TestFallbackGroupHealthyWhileAnyBreakerClosed(t *testing.T) {
	primary := &lmock.Provider{Errs: []error{errors.New("502")}}
	backup := &lmock.Provider{Responses: []*llm.Response{{Content: "احتياطي"}}}

	fg := NewFallbackGroup[llm.Provider](primary, "hosted", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fg.AddFallback("local", backup)

	if !fg.Healthy() {
		t.Fatal("Healthy() = false before any call")
	}
	if _, err := completeOnce(t, fg); err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if !fg.Healthy() {
		t.Error("Healthy() = false with the fallback's breaker still closed")
	}
}

func TestFallbackGroupReportsToObserver(t *testing.T) {
	obs := &recordingObserver{}
	primary := &lmock.Provider{Errs: []error{errors.New("502")}}
	backup := &lmock.Provider{Responses: []*llm.Response{{Content: "احتياطي"}}}

	fg := NewFallbackGroup[llm.Provider](primary, "hosted", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		Observer:       obs,
	})
	fg.AddFallback("local", backup)

	if _, err := completeOnce(t, fg); err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}

	if len(obs.failovers) != 1 || obs.failovers[0] != "hosted" {
		t.Errorf("failovers = %v, want [hosted]", obs.failovers)
	}
	if len(obs.transitions) != 1 || obs.transitions[0] != "hosted:closed>open" {
		t.Errorf("transitions = %v, want [hosted:closed>open]", obs.transitions)
	}
}
