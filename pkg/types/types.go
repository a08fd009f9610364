// Package types defines the shared domain types used across all Katib packages.
//
// These types form the lingua franca between providers, pipeline stages, the
// persistence layer, and the renderer. They are intentionally minimal — each
// package defines its own domain types, but cross-cutting data structures live
// here to avoid circular imports.
package types

import (
	"sort"
	"strings"
	"time"
)

// TranscriptSegment is one ordered unit of transcript text. Segments are
// totally ordered by (Start, Index); concatenating their texts in that order
// reconstructs the full transcript.
type TranscriptSegment struct {
	// Index is the segment's ordinal position within the transcript,
	// starting at zero. It breaks ties between segments with equal Start.
	Index int

	// Speaker is a coarse speaker label ("doctor", "patient") when the
	// transcription capability tagged the segment. Empty when untagged.
	Speaker string

	// Start is the segment's offset from the beginning of the source audio.
	Start time.Duration

	// Text is the transcribed content of this segment.
	Text string
}

// JoinSegments reconstructs the full transcript text from segments, one
// segment per line. Segments carrying a speaker label are prefixed with it
// in angle brackets so the label survives round-trips through plain text.
func JoinSegments(segments []TranscriptSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		if seg.Speaker != "" {
			b.WriteString("<" + seg.Speaker + "> ")
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

// SortSegments orders segments by start offset, using the ordinal index to
// break ties. Sorting is stable so equal segments keep their original order.
func SortSegments(segments []TranscriptSegment) {
	sort.SliceStable(segments, func(i, j int) bool {
		if segments[i].Start != segments[j].Start {
			return segments[i].Start < segments[j].Start
		}
		return segments[i].Index < segments[j].Index
	})
}

// FieldSchema is the fixed set of structured-note fields a summarization
// capability must fill. Order is the display and prompt order.
type FieldSchema struct {
	// Fields lists the required field names. Every field must be present in
	// a valid note, possibly with an empty value.
	Fields []string
}

// DefaultNoteSchema returns the clinical note schema used throughout Katib.
func DefaultNoteSchema() FieldSchema {
	return FieldSchema{Fields: []string{
		"Patient Complaint",
		"Clinical Notes",
		"Diagnosis",
		"Treatment Plan",
	}}
}

// Contains reports whether name is one of the schema's required fields.
func (s FieldSchema) Contains(name string) bool {
	for _, f := range s.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// StructuredNote is a fixed mapping of field name → free text produced by the
// summarization stage and subsequently editable by the user. All schema
// fields are always present (possibly empty); unknown fields are rejected at
// the service boundary before a StructuredNote is ever constructed.
type StructuredNote struct {
	// Fields maps schema field names to their text content.
	Fields map[string]string

	// Edited records which fields carry manual user edits. Edited fields
	// survive automated re-runs unless an overwrite is explicitly confirmed.
	Edited map[string]bool
}

// NewStructuredNote returns a note with every schema field present and empty.
func NewStructuredNote(schema FieldSchema) StructuredNote {
	fields := make(map[string]string, len(schema.Fields))
	for _, f := range schema.Fields {
		fields[f] = ""
	}
	return StructuredNote{Fields: fields, Edited: make(map[string]bool)}
}

// Clone returns a deep copy of the note.
func (n StructuredNote) Clone() StructuredNote {
	c := StructuredNote{
		Fields: make(map[string]string, len(n.Fields)),
		Edited: make(map[string]bool, len(n.Edited)),
	}
	for k, v := range n.Fields {
		c.Fields[k] = v
	}
	for k, v := range n.Edited {
		c.Edited[k] = v
	}
	return c
}

// ScoredKeyword is a symptom keyword with its relevance score in [0, 1].
type ScoredKeyword struct {
	Keyword string
	Score   float64
}

// DiagnosisCandidate is a suggested differential diagnosis with its
// confidence score in [0, 1]. Candidates are suggestions, never conclusions.
type DiagnosisCandidate struct {
	Label      string
	Confidence float64
}

// AnalysisResult holds the ranked output of the analysis stage. Both lists
// are sorted descending by score with first-seen order breaking ties, and
// keywords are unique case-insensitively.
type AnalysisResult struct {
	Keywords  []ScoredKeyword
	Diagnoses []DiagnosisCandidate
}
