package resilience

import (
	"context"

	"github.com/katibhealth/katib/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried. This is how a
// hosted primary model degrades to a local one without the pipeline noticing.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.Response, error) {
		return p.Complete(ctx, req)
	})
}

// Healthy reports whether at least one backend's breaker would admit a call.
func (f *LLMFallback) Healthy() bool {
	return f.group.Healthy()
}

// Model returns the primary's model identifier; the group answers as one
// logical provider in logs and metrics.
func (f *LLMFallback) Model() string {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Model()
	}
	return ""
}
