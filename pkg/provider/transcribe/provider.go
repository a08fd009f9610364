// Package transcribe defines the Transcriber interface for speech-to-text
// backends that turn consultation recordings into transcript segments.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly. Errors carry a transience flag so callers can decide
// whether a retry is worthwhile.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/katibhealth/katib/pkg/audio"
	"github.com/katibhealth/katib/pkg/types"
)

// Request carries a decoded recording and transcription hints.
type Request struct {
	// Clip is the recording to transcribe.
	Clip *audio.Clip

	// Language is a BCP-47 hint for the dominant language, e.g. "ar".
	// Empty lets the backend detect it.
	Language string
}

// Transcriber is the abstraction over any speech-to-text backend.
type Transcriber interface {
	// Transcribe converts the clip into ordered transcript segments.
	// Backends without word-level timing return a single segment
	// spanning the whole clip.
	Transcribe(ctx context.Context, req Request) ([]types.TranscriptSegment, error)

	// Model returns the backend model identifier, for logging and metrics.
	Model() string
}

// Error is a classified transcription failure. Transient errors (rate
// limits, timeouts, 5xx responses) are worth retrying; permanent ones
// (bad audio, auth, unsupported format) are not.
type Error struct {
	// Reason is a short stable label, e.g. "rate_limited", "bad_audio".
	Reason string

	// Err is the underlying cause, may be nil.
	Err error

	transient bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcribe: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transcribe: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether retrying the same request may succeed.
func (e *Error) Transient() bool { return e.transient }

// NewTransient wraps err as a retryable transcription failure.
func NewTransient(reason string, err error) *Error {
	return &Error{Reason: reason, Err: err, transient: true}
}

// NewPermanent wraps err as a non-retryable transcription failure.
func NewPermanent(reason string, err error) *Error {
	return &Error{Reason: reason, Err: err, transient: false}
}

// IsTransient reports whether err (or anything it wraps) is a transient
// transcription failure. Unclassified errors are treated as permanent.
func IsTransient(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Transient()
	}
	return false
}
