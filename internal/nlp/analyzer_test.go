package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/katibhealth/katib/pkg/provider/llm"
	"github.com/katibhealth/katib/pkg/provider/llm/mock"
)

func TestAnalyzeClampsAndSorts(t *testing.T) {
	reply := `{
		"keywords": [
			{"keyword": "سعال", "score": 0.4},
			{"keyword": "حمى", "score": 1.7},
			{"keyword": "صداع", "score": -0.2}
		],
		"diagnoses": [
			{"diagnosis": "التهاب الشعب الهوائية", "confidence": 0.6},
			{"diagnosis": "انفلونزا", "confidence": 0.9}
		]
	}`
	a := NewAnalyzer(&mock.Provider{Responses: []*llm.Response{{Content: reply}}})

	res, err := a.Analyze(context.Background(), "المريض يعاني من حمى وسعال")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(res.Keywords) != 3 {
		t.Fatalf("got %d keywords, want 3", len(res.Keywords))
	}
	if res.Keywords[0].Keyword != "حمى" || res.Keywords[0].Score != 1 {
		t.Errorf("top keyword = %+v, want حمى clamped to 1", res.Keywords[0])
	}
	if last := res.Keywords[2]; last.Keyword != "صداع" || last.Score != 0 {
		t.Errorf("last keyword = %+v, want صداع clamped to 0", last)
	}

	if len(res.Diagnoses) != 2 {
		t.Fatalf("got %d diagnoses, want 2", len(res.Diagnoses))
	}
	if res.Diagnoses[0].Label != "انفلونزا" {
		t.Errorf("top diagnosis = %q, want انفلونزا", res.Diagnoses[0].Label)
	}
}

func TestAnalyzeDedupesKeywordsCaseInsensitively(t *testing.T) {
	reply := `{
		"keywords": [
			{"keyword": "Fever", "score": 0.5},
			{"keyword": "cough", "score": 0.7},
			{"keyword": "fever", "score": 0.8}
		],
		"diagnoses": []
	}`
	a := NewAnalyzer(&mock.Provider{Responses: []*llm.Response{{Content: reply}}})

	res, err := a.Analyze(context.Background(), "fever and cough")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Keywords) != 2 {
		t.Fatalf("got %d keywords, want 2: %+v", len(res.Keywords), res.Keywords)
	}
	// First-seen casing wins, highest score wins, and 0.8 outranks cough's 0.7.
	if res.Keywords[0].Keyword != "Fever" || res.Keywords[0].Score != 0.8 {
		t.Errorf("merged keyword = %+v, want Fever at 0.8", res.Keywords[0])
	}
}

func TestAnalyzeEqualScoresKeepFirstSeenOrder(t *testing.T) {
	reply := `{
		"keywords": [
			{"keyword": "a", "score": 0.5},
			{"keyword": "b", "score": 0.5},
			{"keyword": "c", "score": 0.5}
		],
		"diagnoses": []
	}`
	a := NewAnalyzer(&mock.Provider{Responses: []*llm.Response{{Content: reply}}})

	res, err := a.Analyze(context.Background(), "text")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	got := []string{res.Keywords[0].Keyword, res.Keywords[1].Keyword, res.Keywords[2].Keyword}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("equal scores reordered: %v", got)
	}
}

func TestAnalyzeUnparseableReply(t *testing.T) {
	a := NewAnalyzer(&mock.Provider{Responses: []*llm.Response{{Content: "I found three symptoms."}}})

	_, err := a.Analyze(context.Background(), "نص")
	var aerr *AnalysisError
	if !errors.As(err, &aerr) {
		t.Fatalf("err = %v, want *AnalysisError", err)
	}
}

func TestAnalyzeSkipsBlankEntries(t *testing.T) {
	reply := `{"keywords": [{"keyword": "  ", "score": 0.9}], "diagnoses": [{"diagnosis": "", "confidence": 0.9}]}`
	a := NewAnalyzer(&mock.Provider{Responses: []*llm.Response{{Content: reply}}})

	res, err := a.Analyze(context.Background(), "نص")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Keywords) != 0 || len(res.Diagnoses) != 0 {
		t.Errorf("blank entries kept: %+v", res)
	}
}
