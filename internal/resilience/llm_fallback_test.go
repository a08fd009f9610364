package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/katibhealth/katib/pkg/provider/llm"
	llmmock "github.com/katibhealth/katib/pkg/provider/llm/mock"
)

func TestLLMFallbackPrefersPrimary(t *testing.T) {
	primary := &llmmock.Provider{Responses: []*llm.Response{{Content: "primary"}}}
	backup := &llmmock.Provider{Responses: []*llm.Response{{Content: "backup"}}}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	resp, err := f.Complete(context.Background(), llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "primary" {
		t.Errorf("Content = %q, want primary", resp.Content)
	}
	if len(backup.Calls) != 0 {
		t.Error("healthy primary still triggered the fallback")
	}
}

func TestLLMFallbackFailsOver(t *testing.T) {
	primary := &llmmock.Provider{Errs: []error{errors.New("quota exceeded")}}
	backup := &llmmock.Provider{Responses: []*llm.Response{{Content: "backup"}}}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	resp, err := f.Complete(context.Background(), llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "backup" {
		t.Errorf("Content = %q, want backup", resp.Content)
	}
	if len(primary.Calls) != 1 || len(backup.Calls) != 1 {
		t.Errorf("calls: primary=%d backup=%d", len(primary.Calls), len(backup.Calls))
	}
}

func TestLLMFallbackAllFailed(t *testing.T) {
	boom := errors.New("down")
	primary := &llmmock.Provider{Errs: []error{boom}}
	backup := &llmmock.Provider{Errs: []error{boom}}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	_, err := f.Complete(context.Background(), llm.Request{Prompt: "hi"})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallbackModelIsPrimary(t *testing.T) {
	f := NewLLMFallback(&llmmock.Provider{ModelName: "gpt-4o"}, "primary", FallbackConfig{})
	f.AddFallback("backup", &llmmock.Provider{ModelName: "local"})
	if got := f.Model(); got != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", got)
	}
}
