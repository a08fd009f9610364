// Package session owns the clinical encounter: its data, its stage machine,
// and the pipeline that moves it from raw audio to an exportable document.
//
// One session is processed by one goroutine at a time — the [Manager]
// serializes operations per session while different sessions proceed
// concurrently. Every stage operation loads the session, works on a copy, and
// persists only on success, so a failed or cancelled stage leaves the session
// exactly at its last completed stage.
package session

import (
	"fmt"
	"time"

	"github.com/katibhealth/katib/pkg/audio"
	"github.com/katibhealth/katib/pkg/types"
)

// Stage is a state of the session pipeline. Progression is monotonic unless
// an explicit re-run is requested.
type Stage string

const (
	StageCreated     Stage = "created"
	StageRecorded    Stage = "recorded"
	StageTranscribed Stage = "transcribed"
	StageSummarized  Stage = "summarized"
	StageAnalyzed    Stage = "analyzed"
	StageReviewed    Stage = "reviewed"
	StageExported    Stage = "exported"
)

// stageOrder lists stages in pipeline order.
var stageOrder = []Stage{
	StageCreated,
	StageRecorded,
	StageTranscribed,
	StageSummarized,
	StageAnalyzed,
	StageReviewed,
	StageExported,
}

// Ordinal returns the stage's position in the pipeline, or -1 for an unknown
// stage.
func (s Stage) Ordinal() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known pipeline stage.
func (s Stage) Valid() bool { return s.Ordinal() >= 0 }

// AtLeast reports whether s has reached min in pipeline order.
func (s Stage) AtLeast(min Stage) bool { return s.Ordinal() >= min.Ordinal() }

// TransitionError reports an operation invoked before its prerequisite stage
// output exists. The state machine never silently skips a stage.
type TransitionError struct {
	// SessionID identifies the session.
	SessionID string

	// From is the session's current stage.
	From Stage

	// Requires is the stage whose output the operation needs.
	Requires Stage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session %s: stage %q has no %q output to build on", e.SessionID, e.From, e.Requires)
}

// Edit is one recorded manual change to a note field.
type Edit struct {
	Field string
	Old   string
	New   string
	At    time.Time
}

// Session is one clinical encounter. It exclusively owns its segments, note,
// and analysis; rendered documents are derived artifacts regenerated on every
// export and never stored here.
type Session struct {
	ID        string
	DoctorID  string
	PatientID string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Stage is the last successfully completed pipeline stage.
	Stage Stage

	// Audio is the attached recording, nil before StageRecorded.
	Audio *audio.Clip

	// AudioHash is the recording's content hash, for duplicate detection.
	AudioHash string

	// DuplicateOf names an earlier session that attached identical audio.
	// Informational; processing proceeds regardless.
	DuplicateOf string

	// Language is the consultation's dominant-language hint, e.g. "ar".
	Language string

	// Segments is the ordered transcript.
	Segments []types.TranscriptSegment

	// Transcript is the normalized full transcript text, rebuilt from
	// Segments after every transcription run.
	Transcript string

	Note     types.StructuredNote
	Analysis types.AnalysisResult

	// EditHistory records every manual field change, oldest first.
	EditHistory []Edit

	// ExportCount is the number of documents exported so far; each export
	// is a new version.
	ExportCount int
}

// Clone returns a deep copy. Pipeline operations mutate the copy and persist
// it only on success.
func (s *Session) Clone() *Session {
	c := *s
	c.Segments = append([]types.TranscriptSegment(nil), s.Segments...)
	c.Note = s.Note.Clone()
	c.Analysis = types.AnalysisResult{
		Keywords:  append([]types.ScoredKeyword(nil), s.Analysis.Keywords...),
		Diagnoses: append([]types.DiagnosisCandidate(nil), s.Analysis.Diagnoses...),
	}
	c.EditHistory = append([]Edit(nil), s.EditHistory...)
	return &c
}

// advance raises the stage to at least target. Re-runs of earlier stages keep
// the furthest stage already reached.
func (s *Session) advance(target Stage) {
	if !s.Stage.AtLeast(target) {
		s.Stage = target
	}
}

// Summary is the listing projection of a session, cheap enough for recent
// lists without loading audio or transcript.
type Summary struct {
	ID          string
	DoctorID    string
	PatientID   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Stage       Stage
	ExportCount int
}
