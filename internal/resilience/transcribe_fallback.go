package resilience

import (
	"context"

	"github.com/katibhealth/katib/pkg/provider/transcribe"
	"github.com/katibhealth/katib/pkg/types"
)

// TranscribeFallback implements [transcribe.Transcriber] with automatic
// failover across multiple speech-to-text backends, typically the hosted API
// first and a local whisper.cpp model second.
type TranscribeFallback struct {
	group *FallbackGroup[transcribe.Transcriber]
}

// Compile-time interface assertion.
var _ transcribe.Transcriber = (*TranscribeFallback)(nil)

// NewTranscribeFallback creates a [TranscribeFallback] with primary as the
// preferred backend.
func NewTranscribeFallback(primary transcribe.Transcriber, primaryName string, cfg FallbackConfig) *TranscribeFallback {
	return &TranscribeFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber as a fallback.
func (f *TranscribeFallback) AddFallback(name string, t transcribe.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe sends the clip to the first healthy backend and returns its
// segments. If the primary fails, subsequent fallbacks are tried.
func (f *TranscribeFallback) Transcribe(ctx context.Context, req transcribe.Request) ([]types.TranscriptSegment, error) {
	return ExecuteWithResult(f.group, func(t transcribe.Transcriber) ([]types.TranscriptSegment, error) {
		return t.Transcribe(ctx, req)
	})
}

// Healthy reports whether at least one backend's breaker would admit a call.
func (f *TranscribeFallback) Healthy() bool {
	return f.group.Healthy()
}

// Model returns the primary's model identifier.
func (f *TranscribeFallback) Model() string {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Model()
	}
	return ""
}
