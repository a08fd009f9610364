// Package nlp turns normalized consultation transcripts into structured
// clinical notes and analysis using an LLM backend. All entry points take the
// full transcript text; transcription and Arabic normalization happen
// upstream.
package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/katibhealth/katib/pkg/provider/llm"
	"github.com/katibhealth/katib/pkg/types"
)

// maxTranscriptRunes caps the transcript portion of a prompt. Consultations
// longer than this are truncated from the front, keeping the most recent
// speech, which carries the assessment and plan.
const maxTranscriptRunes = 15000

const summarySystemPrompt = `You are a medical scribe assisting an Arabic-speaking clinician.
You read the transcript of a doctor-patient consultation, which is mostly in
Arabic, and produce a structured clinical note. Answer with a single JSON
object and nothing else. Write the field values in the same language the
consultation was held in. If the transcript contains no information for a
field, use an empty string.`

// Summarizer produces structured notes from transcripts.
type Summarizer struct {
	provider    llm.Provider
	temperature float64
}

// NewSummarizer creates a Summarizer on the given backend. A low temperature
// keeps extraction deterministic.
func NewSummarizer(provider llm.Provider) *Summarizer {
	return &Summarizer{provider: provider, temperature: 0.2}
}

// Summarize extracts one value per schema field from the transcript. The
// reply must be a JSON object carrying exactly the schema's fields; anything
// else fails with [*SchemaValidationError]. The returned note has no edited
// fields.
func (s *Summarizer) Summarize(ctx context.Context, transcript string, schema types.FieldSchema) (types.StructuredNote, error) {
	if strings.TrimSpace(transcript) == "" {
		return types.StructuredNote{}, errors.New("nlp: empty transcript")
	}
	if len(schema.Fields) == 0 {
		return types.StructuredNote{}, errors.New("nlp: empty note schema")
	}

	resp, err := s.provider.Complete(ctx, llm.Request{
		System:      summarySystemPrompt,
		Prompt:      summaryPrompt(truncateRunes(transcript, maxTranscriptRunes), schema),
		Temperature: s.temperature,
		ForceJSON:   true,
	})
	if err != nil {
		return types.StructuredNote{}, fmt.Errorf("nlp: summarize: %w", err)
	}

	fields, verr := parseNoteJSON(resp.Content, schema)
	if verr != nil {
		return types.StructuredNote{}, verr
	}

	note := types.NewStructuredNote(schema)
	for k, v := range fields {
		note.Fields[k] = strings.TrimSpace(v)
	}
	return note, nil
}

func summaryPrompt(transcript string, schema types.FieldSchema) string {
	var b strings.Builder
	b.WriteString("Produce a JSON object with exactly these keys:\n")
	for _, f := range schema.Fields {
		b.WriteString("- \"")
		b.WriteString(f)
		b.WriteString("\"\n")
	}
	b.WriteString("\nConsultation transcript:\n")
	b.WriteString(transcript)
	return b.String()
}

// parseNoteJSON validates the model reply against the schema. Every schema
// field must be present as a string and no other keys are allowed.
func parseNoteJSON(reply string, schema types.FieldSchema) (map[string]string, *SchemaValidationError) {
	var fields map[string]string
	if err := json.Unmarshal([]byte(stripFences(reply)), &fields); err != nil {
		return nil, &SchemaValidationError{Cause: err}
	}

	verr := &SchemaValidationError{}
	for _, f := range schema.Fields {
		if _, ok := fields[f]; !ok {
			verr.Missing = append(verr.Missing, f)
		}
	}
	for k := range fields {
		if !schema.Contains(k) {
			verr.Extra = append(verr.Extra, k)
		}
	}
	sort.Strings(verr.Extra)
	if len(verr.Missing) > 0 || len(verr.Extra) > 0 {
		return nil, verr
	}
	return fields, nil
}

// stripFences removes a markdown code fence around a JSON payload. Models
// wrap JSON in ```json blocks even when told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// truncateRunes keeps the trailing n runes of s.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
