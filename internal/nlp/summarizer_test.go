package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/katibhealth/katib/pkg/provider/llm"
	"github.com/katibhealth/katib/pkg/provider/llm/mock"
	"github.com/katibhealth/katib/pkg/types"
)

const goodNoteJSON = `{
	"Patient Complaint": "صداع منذ ثلاثة أيام",
	"Clinical Notes": "لا حمى، ضغط الدم طبيعي",
	"Diagnosis": "صداع توتري",
	"Treatment Plan": "باراسيتامول عند اللزوم"
}`

func TestSummarizeFillsSchema(t *testing.T) {
	p := &mock.Provider{Responses: []*llm.Response{{Content: goodNoteJSON}}}
	s := NewSummarizer(p)

	note, err := s.Summarize(context.Background(), "المريض يشكو من صداع", types.DefaultNoteSchema())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got := note.Fields["Diagnosis"]; got != "صداع توتري" {
		t.Errorf("Diagnosis = %q", got)
	}
	if len(note.Fields) != 4 {
		t.Errorf("got %d fields, want 4", len(note.Fields))
	}
	for f, edited := range note.Edited {
		if edited {
			t.Errorf("fresh summary marked %q as edited", f)
		}
	}

	if len(p.Calls) != 1 {
		t.Fatalf("got %d LLM calls, want 1", len(p.Calls))
	}
	if !p.Calls[0].Req.ForceJSON {
		t.Error("summarize request did not ask for JSON mode")
	}
}

func TestSummarizeStripsCodeFences(t *testing.T) {
	p := &mock.Provider{Responses: []*llm.Response{{Content: "```json\n" + goodNoteJSON + "\n```"}}}
	s := NewSummarizer(p)

	note, err := s.Summarize(context.Background(), "نص", types.DefaultNoteSchema())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if note.Fields["Patient Complaint"] == "" {
		t.Error("fenced JSON was not parsed")
	}
}

func TestSummarizeSchemaViolations(t *testing.T) {
	tests := []struct {
		name        string
		reply       string
		wantMissing int
		wantExtra   int
	}{
		{"not json", "sorry, I cannot", 0, 0},
		{"missing field", `{"Patient Complaint": "x", "Clinical Notes": "y", "Diagnosis": "z"}`, 1, 0},
		{"extra field", goodNoteJSON[:len(goodNoteJSON)-2] + `, "Mood": "fine"}`, 0, 1},
		{"non-string value", `{"Patient Complaint": 7}`, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mock.Provider{Responses: []*llm.Response{{Content: tt.reply}}}
			s := NewSummarizer(p)

			_, err := s.Summarize(context.Background(), "نص", types.DefaultNoteSchema())
			var verr *SchemaValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *SchemaValidationError", err)
			}
			if len(verr.Missing) != tt.wantMissing {
				t.Errorf("Missing = %v, want %d entries", verr.Missing, tt.wantMissing)
			}
			if len(verr.Extra) != tt.wantExtra {
				t.Errorf("Extra = %v, want %d entries", verr.Extra, tt.wantExtra)
			}
		})
	}
}

func TestSummarizeEmptyInputs(t *testing.T) {
	s := NewSummarizer(&mock.Provider{})
	if _, err := s.Summarize(context.Background(), "   ", types.DefaultNoteSchema()); err == nil {
		t.Error("empty transcript accepted")
	}
	if _, err := s.Summarize(context.Background(), "نص", types.FieldSchema{}); err == nil {
		t.Error("empty schema accepted")
	}
}

func TestSummarizeTruncatesLongTranscripts(t *testing.T) {
	p := &mock.Provider{Responses: []*llm.Response{{Content: goodNoteJSON}}}
	s := NewSummarizer(p)

	long := make([]rune, maxTranscriptRunes*2)
	for i := range long {
		long[i] = 'م'
	}
	if _, err := s.Summarize(context.Background(), string(long), types.DefaultNoteSchema()); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	prompt := p.Calls[0].Req.Prompt
	if got := len([]rune(prompt)); got > maxTranscriptRunes+500 {
		t.Errorf("prompt carries %d runes, transcript was not truncated", got)
	}
}

func TestProviderErrorPropagates(t *testing.T) {
	p := &mock.Provider{Errs: []error{errors.New("backend down")}}
	s := NewSummarizer(p)

	_, err := s.Summarize(context.Background(), "نص", types.DefaultNoteSchema())
	if err == nil || !errors.Is(err, p.Errs[0]) {
		t.Errorf("err = %v, want wrapped backend error", err)
	}
}
