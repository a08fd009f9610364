package httpapi

import (
	"sort"
	"time"

	"github.com/katibhealth/katib/internal/session"
)

// sessionJSON is the API representation of a session. Audio bytes are never
// echoed back; has_audio signals their presence.
type sessionJSON struct {
	ID          string            `json:"id"`
	DoctorID    string            `json:"doctor_id"`
	PatientID   string            `json:"patient_id"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Stage       string            `json:"stage"`
	Language    string            `json:"language,omitempty"`
	HasAudio    bool              `json:"has_audio"`
	DuplicateOf string            `json:"duplicate_of,omitempty"`
	Transcript  string            `json:"transcript,omitempty"`
	Segments    []segmentJSON     `json:"segments,omitempty"`
	Note        map[string]string `json:"note,omitempty"`
	EditedNote  []string          `json:"edited_fields,omitempty"`
	Keywords    []keywordJSON     `json:"keywords,omitempty"`
	Diagnoses   []diagnosisJSON   `json:"diagnoses,omitempty"`
	Edits       []editJSON        `json:"edit_history,omitempty"`
	ExportCount int               `json:"export_count"`
}

type segmentJSON struct {
	Index   int     `json:"index"`
	Speaker string  `json:"speaker,omitempty"`
	Start   float64 `json:"start_seconds"`
	Text    string  `json:"text"`
}

type keywordJSON struct {
	Keyword string  `json:"keyword"`
	Score   float64 `json:"score"`
}

type diagnosisJSON struct {
	Diagnosis  string  `json:"diagnosis"`
	Confidence float64 `json:"confidence"`
}

type editJSON struct {
	Field string    `json:"field"`
	Old   string    `json:"old"`
	New   string    `json:"new"`
	At    time.Time `json:"at"`
}

type summaryJSON struct {
	ID          string    `json:"id"`
	DoctorID    string    `json:"doctor_id"`
	PatientID   string    `json:"patient_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Stage       string    `json:"stage"`
	ExportCount int       `json:"export_count"`
}

func sessionView(s *session.Session) sessionJSON {
	v := sessionJSON{
		ID:          s.ID,
		DoctorID:    s.DoctorID,
		PatientID:   s.PatientID,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		Stage:       string(s.Stage),
		Language:    s.Language,
		HasAudio:    s.Audio != nil,
		DuplicateOf: s.DuplicateOf,
		Transcript:  s.Transcript,
		ExportCount: s.ExportCount,
	}

	for _, seg := range s.Segments {
		v.Segments = append(v.Segments, segmentJSON{
			Index:   seg.Index,
			Speaker: seg.Speaker,
			Start:   seg.Start.Seconds(),
			Text:    seg.Text,
		})
	}

	if len(s.Note.Fields) > 0 {
		v.Note = make(map[string]string, len(s.Note.Fields))
		for field, value := range s.Note.Fields {
			v.Note[field] = value
		}
	}
	for field, edited := range s.Note.Edited {
		if edited {
			v.EditedNote = append(v.EditedNote, field)
		}
	}
	sort.Strings(v.EditedNote)

	for _, kw := range s.Analysis.Keywords {
		v.Keywords = append(v.Keywords, keywordJSON{Keyword: kw.Keyword, Score: kw.Score})
	}
	for _, d := range s.Analysis.Diagnoses {
		v.Diagnoses = append(v.Diagnoses, diagnosisJSON{Diagnosis: d.Label, Confidence: d.Confidence})
	}

	for _, e := range s.EditHistory {
		v.Edits = append(v.Edits, editJSON{Field: e.Field, Old: e.Old, New: e.New, At: e.At})
	}

	return v
}

func summaryView(s session.Summary) summaryJSON {
	return summaryJSON{
		ID:          s.ID,
		DoctorID:    s.DoctorID,
		PatientID:   s.PatientID,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		Stage:       string(s.Stage),
		ExportCount: s.ExportCount,
	}
}
