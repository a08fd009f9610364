package config

import (
	"errors"
	"testing"

	"github.com/katibhealth/katib/pkg/provider/llm"
	llmmock "github.com/katibhealth/katib/pkg/provider/llm/mock"
	"github.com/katibhealth/katib/pkg/provider/transcribe"
	transcribemock "github.com/katibhealth/katib/pkg/provider/transcribe/mock"
)

func TestRegistry_CreateLLM(t *testing.T) {
	reg := NewRegistry()

	var got ProviderEntry
	reg.RegisterLLM("mock", func(entry ProviderEntry) (llm.Provider, error) {
		got = entry
		return &llmmock.Provider{}, nil
	})

	entry := ProviderEntry{Name: "mock", Model: "gpt-4o-mini", APIKey: "sk-test"}
	p, err := reg.CreateLLM(entry)
	if err != nil {
		t.Fatalf("CreateLLM() error = %v", err)
	}
	if p == nil {
		t.Fatal("CreateLLM() returned nil provider")
	}
	if got.Model != "gpt-4o-mini" || got.APIKey != "sk-test" {
		t.Errorf("factory received entry %+v, want model and api key passed through", got)
	}
}

func TestRegistry_CreateTranscriber(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterTranscriber("mock", func(ProviderEntry) (transcribe.Transcriber, error) {
		return &transcribemock.Transcriber{}, nil
	})

	tr, err := reg.CreateTranscriber(ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateTranscriber() error = %v", err)
	}
	if tr == nil {
		t.Fatal("CreateTranscriber() returned nil transcriber")
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.CreateLLM(ProviderEntry{Name: "missing"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateLLM() error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateTranscriber(ProviderEntry{Name: "missing"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateTranscriber() error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("bad credentials")
	reg.RegisterLLM("broken", func(ProviderEntry) (llm.Provider, error) {
		return nil, boom
	})

	if _, err := reg.CreateLLM(ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("CreateLLM() error = %v, want factory error", err)
	}
}
