// Package mock provides a test double for the transcribe.Transcriber
// interface. Errors are consumed per call index, so a transient failure
// followed by success is a two-element Errs of {err, nil}.
package mock

import (
	"context"
	"sync"

	"github.com/katibhealth/katib/pkg/provider/transcribe"
	"github.com/katibhealth/katib/pkg/types"
)

// Call records a single invocation of Transcribe.
type Call struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe.
	Req transcribe.Request
}

// Transcriber is a mock implementation of transcribe.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Segments is returned by every successful Transcribe call.
	Segments []types.TranscriptSegment

	// Errs is the sequence of errors returned by successive calls. A nil
	// entry (or an exhausted slice) means success for that call.
	Errs []error

	// ModelName is returned by Model. Defaults to "mock" when empty.
	ModelName string

	// Calls records every invocation of Transcribe in order.
	Calls []Call
}

// Transcribe records the call and returns Segments or the next configured error.
func (t *Transcriber) Transcribe(ctx context.Context, req transcribe.Request) ([]types.TranscriptSegment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.Calls)
	t.Calls = append(t.Calls, Call{Ctx: ctx, Req: req})

	if n < len(t.Errs) && t.Errs[n] != nil {
		return nil, t.Errs[n]
	}

	out := make([]types.TranscriptSegment, len(t.Segments))
	copy(out, t.Segments)
	return out, nil
}

// Model returns ModelName, or "mock" when unset.
func (t *Transcriber) Model() string {
	if t.ModelName == "" {
		return "mock"
	}
	return t.ModelName
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
}

// Ensure Transcriber implements transcribe.Transcriber at compile time.
var _ transcribe.Transcriber = (*Transcriber)(nil)
