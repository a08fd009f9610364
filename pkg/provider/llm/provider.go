// Package llm defines the Provider interface for the language-model backends
// that produce structured notes and clinical analysis.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic via any-llm,
// a local Ollama instance) behind a uniform single-turn completion call, so
// the summarizer and analyzer never couple to a specific SDK.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and differ between providers for the same text.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Request is a single-turn completion request. At minimum Prompt must be
// non-empty; a zero-value request is invalid.
type Request struct {
	// System is an optional high-priority instruction. Providers without a
	// dedicated system slot prepend it as a system-role message.
	System string

	// Prompt is the user-role content that drives the response.
	Prompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default; clinical extraction callers pass a low value.
	Temperature float64

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int

	// ForceJSON asks the backend for a JSON-object response where the API
	// supports it. Backends without native JSON mode rely on the prompt
	// alone; callers must still validate the payload either way.
	ForceJSON bool
}

// Response is the model's full reply.
type Response struct {
	// Content is the complete text of the reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and waits for the full response. Returns an error
	// if the request fails or ctx is cancelled before the reply arrives.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Model returns the backend model identifier, for logging and metrics.
	Model() string
}
