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

const analysisSystemPrompt = `You are a clinical decision-support assistant
reviewing the transcript of a doctor-patient consultation held mostly in
Arabic. Extract symptom keywords and differential diagnosis candidates.
Answer with a single JSON object and nothing else, shaped exactly as:
{"keywords": [{"keyword": "...", "score": 0.0}],
 "diagnoses": [{"diagnosis": "...", "confidence": 0.0}]}
Scores and confidences are between 0 and 1. Keep keywords in the
consultation's language. Diagnoses are suggestions for the clinician to
review, never conclusions.`

// Analyzer extracts scored symptom keywords and diagnosis candidates from
// transcripts.
type Analyzer struct {
	provider    llm.Provider
	temperature float64
}

// NewAnalyzer creates an Analyzer on the given backend.
func NewAnalyzer(provider llm.Provider) *Analyzer {
	return &Analyzer{provider: provider, temperature: 0.2}
}

type analysisReply struct {
	Keywords []struct {
		Keyword string  `json:"keyword"`
		Score   float64 `json:"score"`
	} `json:"keywords"`
	Diagnoses []struct {
		Diagnosis  string  `json:"diagnosis"`
		Confidence float64 `json:"confidence"`
	} `json:"diagnoses"`
}

// Analyze extracts keywords and diagnosis candidates from the transcript.
// Scores are clamped into [0, 1], keywords are deduplicated
// case-insensitively keeping the highest score, and both lists come back
// sorted descending by score with first-seen order breaking ties. An
// unparseable reply fails with [*AnalysisError].
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (types.AnalysisResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return types.AnalysisResult{}, errors.New("nlp: empty transcript")
	}

	resp, err := a.provider.Complete(ctx, llm.Request{
		System:      analysisSystemPrompt,
		Prompt:      "Consultation transcript:\n" + truncateRunes(transcript, maxTranscriptRunes),
		Temperature: a.temperature,
		ForceJSON:   true,
	})
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("nlp: analyze: %w", err)
	}

	var reply analysisReply
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &reply); err != nil {
		return types.AnalysisResult{}, &AnalysisError{Cause: err}
	}

	var result types.AnalysisResult
	for _, k := range reply.Keywords {
		kw := strings.TrimSpace(k.Keyword)
		if kw == "" {
			continue
		}
		result.Keywords = append(result.Keywords, types.ScoredKeyword{
			Keyword: kw,
			Score:   clamp01(k.Score),
		})
	}
	for _, d := range reply.Diagnoses {
		label := strings.TrimSpace(d.Diagnosis)
		if label == "" {
			continue
		}
		result.Diagnoses = append(result.Diagnoses, types.DiagnosisCandidate{
			Label:      label,
			Confidence: clamp01(d.Confidence),
		})
	}

	result.Keywords = dedupeKeywords(result.Keywords)
	sortKeywords(result.Keywords)
	sortDiagnoses(result.Diagnoses)
	return result, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// dedupeKeywords keeps one entry per case-insensitive keyword, retaining the
// highest score and the first-seen position and casing.
func dedupeKeywords(in []types.ScoredKeyword) []types.ScoredKeyword {
	index := make(map[string]int, len(in))
	out := in[:0]
	for _, k := range in {
		key := strings.ToLower(k.Keyword)
		if at, ok := index[key]; ok {
			if k.Score > out[at].Score {
				out[at].Score = k.Score
			}
			continue
		}
		index[key] = len(out)
		out = append(out, k)
	}
	return out
}

func sortKeywords(ks []types.ScoredKeyword) {
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].Score > ks[j].Score })
}

func sortDiagnoses(ds []types.DiagnosisCandidate) {
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].Confidence > ds[j].Confidence })
}
