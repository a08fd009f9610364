package nlp

import (
	"fmt"
	"strings"
)

// SchemaValidationError reports a model reply that does not match the note
// schema: malformed JSON, fields the schema does not define, or schema fields
// the reply omits. The caller decides whether to retry; the summarizer never
// silently patches the payload.
type SchemaValidationError struct {
	// Missing lists schema fields absent from the reply.
	Missing []string

	// Extra lists reply keys the schema does not define.
	Extra []string

	// Cause is the JSON decode error, when the payload was not even valid JSON.
	Cause error
}

func (e *SchemaValidationError) Error() string {
	var parts []string
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("invalid JSON: %v", e.Cause))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unexpected fields: "+strings.Join(e.Extra, ", "))
	}
	if len(parts) == 0 {
		parts = append(parts, "schema mismatch")
	}
	return "nlp: summary " + strings.Join(parts, "; ")
}

func (e *SchemaValidationError) Unwrap() error { return e.Cause }

// AnalysisError reports an analysis reply that could not be parsed into
// keywords and diagnosis candidates.
type AnalysisError struct {
	Cause error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("nlp: analysis reply unusable: %v", e.Cause)
}

func (e *AnalysisError) Unwrap() error { return e.Cause }
