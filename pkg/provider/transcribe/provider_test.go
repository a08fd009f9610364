package transcribe

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name          string
		err           error
		wantTransient bool
	}{
		{"transient", NewTransient("rate_limited", base), true},
		{"permanent", NewPermanent("bad_audio", base), false},
		{"wrapped transient", fmt.Errorf("stage: %w", NewTransient("server_error", base)), true},
		{"plain error", base, false},
		{"nil cause", NewTransient("network", nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.wantTransient {
				t.Errorf("IsTransient = %v, want %v", got, tt.wantTransient)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("underlying")
	err := NewPermanent("api_rejected", base)
	if !errors.Is(err, base) {
		t.Error("errors.Is failed to find the wrapped cause")
	}
	if msg := err.Error(); msg != "transcribe: api_rejected: underlying" {
		t.Errorf("Error() = %q", msg)
	}
	if msg := NewTransient("network", nil).Error(); msg != "transcribe: network" {
		t.Errorf("Error() without cause = %q", msg)
	}
}
