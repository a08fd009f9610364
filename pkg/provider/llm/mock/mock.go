// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the pipeline sends correct
// requests and to feed controlled responses without a live LLM backend.
// Set fields before calling any method; mutating them during a concurrent
// call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []*llm.Response{{Content: `{"Diagnosis": "..."}`}},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/katibhealth/katib/pkg/provider/llm"
)

// Call records a single invocation of Complete.
type Call struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the request passed to Complete.
	Req llm.Request
}

// Provider is a mock implementation of llm.Provider.
// Responses are consumed in order; when exhausted the last one repeats.
// Errs is consulted per call index the same way, so a transient failure
// followed by success is a two-element Errs of {err, nil}.
type Provider struct {
	mu sync.Mutex

	// Responses is the sequence returned by successive Complete calls.
	Responses []*llm.Response

	// Errs is the sequence of errors returned by successive Complete calls.
	// A nil entry (or an exhausted slice) means no error for that call.
	Errs []error

	// ModelName is returned by Model. Defaults to "mock" when empty.
	ModelName string

	// Calls records every invocation of Complete in order.
	Calls []Call
}

// Complete records the call and returns the next configured response/error pair.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.Calls)
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})

	if n < len(p.Errs) && p.Errs[n] != nil {
		return nil, p.Errs[n]
	}

	if len(p.Responses) == 0 {
		return &llm.Response{}, nil
	}
	if n >= len(p.Responses) {
		n = len(p.Responses) - 1
	}
	return p.Responses[n], nil
}

// Model returns ModelName, or "mock" when unset.
func (p *Provider) Model() string {
	if p.ModelName == "" {
		return "mock"
	}
	return p.ModelName
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
