package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/katibhealth/katib/pkg/provider/llm"
	"github.com/katibhealth/katib/pkg/provider/transcribe"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	llm         map[string]func(ProviderEntry) (llm.Provider, error)
	transcriber map[string]func(ProviderEntry) (transcribe.Transcriber, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:         make(map[string]func(ProviderEntry) (llm.Provider, error)),
		transcriber: make(map[string]func(ProviderEntry) (transcribe.Transcriber, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTranscriber registers a transcription provider factory under name.
func (r *Registry) RegisterTranscriber(name string, factory func(ProviderEntry) (transcribe.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcriber[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTranscriber instantiates a transcription provider using the factory
// registered under entry.Name.
func (r *Registry) CreateTranscriber(entry ProviderEntry) (transcribe.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.transcriber[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcriber/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
