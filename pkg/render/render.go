// Package render lays out session content as a paginated right-to-left
// document and emits it as PDF bytes.
//
// The pipeline per text run is: presentation-form reshaping (pkg/arabic) →
// bidirectional reordering for visual display → greedy line layout against
// the page width → pagination with per-page headers and footers. Rendering is
// pure CPU work; a [Renderer] is safe for concurrent use across independent
// export requests, while a single document's layout is computed sequentially.
package render

import (
	"fmt"
	"time"

	"github.com/katibhealth/katib/pkg/types"
)

// RenderError reports a character with no glyph mapping in the configured
// font. A missing glyph fails the export; silent substitution would corrupt a
// clinical document.
type RenderError struct {
	// Rune is the character that has no glyph.
	Rune rune

	// Font is the path of the font that lacks it.
	Font string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: no glyph for %q (%U) in font %s", e.Rune, e.Rune, e.Font)
}

// Document is an immutable rendered artifact. It is derived from session
// state, never a source of truth, and is regenerated on every export request.
type Document struct {
	// Bytes is the complete document content.
	Bytes []byte

	// Pages is the number of pages emitted.
	Pages int

	// Encoding is the MIME content type of Bytes.
	Encoding string
}

// Input carries everything the renderer needs from a session. The renderer
// reads it and never mutates it.
type Input struct {
	Doctor   string
	Patient  string
	Date     time.Time
	Schema   types.FieldSchema
	Note     types.StructuredNote
	Segments []types.TranscriptSegment
	Analysis types.AnalysisResult
}

// PageConfig describes the physical layout of an exported document.
// All lengths are in points.
type PageConfig struct {
	PageWidth  float64
	PageHeight float64
	Margin     float64
	FontSize   float64
	LineHeight float64

	// FontPath is the TrueType font used both for metrics and embedding.
	// It must cover Latin, digits, and the Arabic presentation-forms block.
	FontPath string
}

// DefaultPageConfig returns an A4 page with comfortable margins.
func DefaultPageConfig() PageConfig {
	return PageConfig{
		PageWidth:  595.28,
		PageHeight: 841.89,
		Margin:     48,
		FontSize:   11,
		LineHeight: 16,
	}
}

// Renderer converts session content into paginated documents. Construct one
// per font/page configuration and reuse it across exports.
type Renderer struct {
	metrics FontMetrics
	cfg     PageConfig
}

// New creates a Renderer using the given font metrics and page configuration.
func New(metrics FontMetrics, cfg PageConfig) *Renderer {
	return &Renderer{metrics: metrics, cfg: cfg}
}

// Render produces the PDF document for in. It fails with [*RenderError] when
// any character in the content has no glyph in the configured font; no
// substitution is ever performed.
func (r *Renderer) Render(in Input) (*Document, error) {
	pages, err := r.Paginate(in)
	if err != nil {
		return nil, err
	}

	raw, err := writePDF(pages, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("render: write pdf: %w", err)
	}

	return &Document{
		Bytes:    raw,
		Pages:    len(pages),
		Encoding: "application/pdf",
	}, nil
}

// Paginate performs reshaping, reordering, line layout, and pagination
// without emitting bytes. Exposed separately so layout invariants are
// testable without a PDF backend or a font file on disk.
func (r *Renderer) Paginate(in Input) ([]Page, error) {
	maxWidth := r.cfg.PageWidth - 2*r.cfg.Margin

	header, err := r.headerLines(in, maxWidth)
	if err != nil {
		return nil, err
	}

	var body []Line
	appendParagraph := func(text string) error {
		lines, err := r.layoutParagraph(text, maxWidth)
		if err != nil {
			return err
		}
		body = append(body, lines...)
		return nil
	}
	appendBlank := func() {
		if len(body) > 0 && body[len(body)-1].Text != "" {
			body = append(body, Line{})
		}
	}

	// Structured note, in schema order.
	for _, field := range in.Schema.Fields {
		if err := appendParagraph(field + ":"); err != nil {
			return nil, err
		}
		if v := in.Note.Fields[field]; v != "" {
			if err := appendParagraph(v); err != nil {
				return nil, err
			}
		}
		appendBlank()
	}

	// Analysis, when present.
	if len(in.Analysis.Keywords) > 0 {
		if err := appendParagraph("Symptom Keywords:"); err != nil {
			return nil, err
		}
		for _, kw := range in.Analysis.Keywords {
			if err := appendParagraph(fmt.Sprintf("- %s (%.2f)", kw.Keyword, kw.Score)); err != nil {
				return nil, err
			}
		}
		appendBlank()
	}
	if len(in.Analysis.Diagnoses) > 0 {
		if err := appendParagraph("Possible Diagnoses:"); err != nil {
			return nil, err
		}
		for _, d := range in.Analysis.Diagnoses {
			if err := appendParagraph(fmt.Sprintf("- %s (%.2f)", d.Label, d.Confidence)); err != nil {
				return nil, err
			}
		}
		appendBlank()
	}

	// Full transcript, one segment per paragraph.
	if len(in.Segments) > 0 {
		if err := appendParagraph("Full Transcript:"); err != nil {
			return nil, err
		}
		for _, seg := range in.Segments {
			text := seg.Text
			if seg.Speaker != "" {
				text = "<" + seg.Speaker + "> " + text
			}
			if err := appendParagraph(text); err != nil {
				return nil, err
			}
		}
	}

	return r.paginate(header, body), nil
}

// headerLines builds the per-page header (doctor, patient, date), shaped and
// visually ordered like any other content.
func (r *Renderer) headerLines(in Input, maxWidth float64) ([]Line, error) {
	raw := []string{
		"Doctor: " + in.Doctor,
		"Patient: " + in.Patient,
		"Date: " + in.Date.Format("2006-01-02"),
	}
	var out []Line
	for _, s := range raw {
		lines, err := r.layoutParagraph(s, maxWidth)
		if err != nil {
			return nil, err
		}
		out = append(out, lines...)
	}
	return out, nil
}
