package nlp

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/katibhealth/katib/pkg/provider/llm"
	"github.com/katibhealth/katib/pkg/types"
)

const taggerSystemPrompt = `You read the transcript of a doctor-patient
consultation held mostly in Arabic and split it into speaker turns. Answer
with one turn per line, each line starting with "doctor: " or "patient: ",
and no other text. Keep the wording exactly as spoken; only attribute it.`

// SpeakerTagger attributes transcript text to doctor or patient turns using
// a chat model. Hosted transcription returns untagged text; attribution is
// best effort — any failure leaves the input segments unchanged rather than
// blocking the pipeline.
type SpeakerTagger struct {
	provider llm.Provider
	log      *slog.Logger
}

// NewSpeakerTagger creates a SpeakerTagger on the given backend.
func NewSpeakerTagger(provider llm.Provider, log *slog.Logger) *SpeakerTagger {
	if log == nil {
		log = slog.Default()
	}
	return &SpeakerTagger{provider: provider, log: log}
}

// Tag splits segments into speaker-attributed turns. Segments that already
// carry speaker labels (native transcription with diarization) pass through
// untouched. When the model reply is unusable the original segments are
// returned with a warning logged.
func (t *SpeakerTagger) Tag(ctx context.Context, segments []types.TranscriptSegment) []types.TranscriptSegment {
	if len(segments) == 0 {
		return segments
	}
	for _, s := range segments {
		if s.Speaker != "" {
			return segments
		}
	}

	text := types.JoinSegments(segments)
	resp, err := t.provider.Complete(ctx, llm.Request{
		System:      taggerSystemPrompt,
		Prompt:      truncateRunes(text, maxTranscriptRunes),
		Temperature: 0,
	})
	if err != nil {
		t.log.Warn("speaker tagging failed, keeping untagged transcript", "error", err)
		return segments
	}

	tagged := parseTurns(resp.Content)
	if len(tagged) == 0 {
		t.log.Warn("speaker tagging reply had no usable turns, keeping untagged transcript")
		return segments
	}
	alignTurnStarts(tagged, segments)
	return tagged
}

// alignTurnStarts maps each parsed turn back onto the source segments by
// cumulative rune position and copies that segment's start offset, so local
// transcription timestamps survive re-segmentation into speaker turns.
func alignTurnStarts(turns, src []types.TranscriptSegment) {
	bounds := make([]int, len(src))
	total := 0
	for i, s := range src {
		total += utf8.RuneCountInString(s.Text)
		bounds[i] = total
	}
	if total == 0 {
		return
	}
	pos, j := 0, 0
	for i := range turns {
		for j < len(src)-1 && pos >= bounds[j] {
			j++
		}
		turns[i].Start = src[j].Start
		// +1 for the separator JoinSegments puts between segments.
		pos += utf8.RuneCountInString(turns[i].Text) + 1
	}
}

// parseTurns reads "doctor: ..." / "patient: ..." lines. Lines without a
// recognized speaker prefix are folded into the previous turn; leading
// unattributed text is dropped.
func parseTurns(reply string) []types.TranscriptSegment {
	var out []types.TranscriptSegment
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var speaker, rest string
		switch {
		case hasFoldPrefix(line, "doctor:"):
			speaker, rest = "doctor", line[len("doctor:"):]
		case hasFoldPrefix(line, "patient:"):
			speaker, rest = "patient", line[len("patient:"):]
		default:
			if len(out) > 0 {
				out[len(out)-1].Text += " " + line
			}
			continue
		}

		rest = strings.TrimSpace(rest)
		if rest == "" {
			continue
		}
		out = append(out, types.TranscriptSegment{
			Index:   len(out),
			Speaker: speaker,
			Text:    rest,
		})
	}
	return out
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
