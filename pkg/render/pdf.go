package render

import (
	"bytes"

	"github.com/go-pdf/fpdf"
)

const fontFamily = "katib"

// writePDF draws pre-paginated content into a PDF. All placement is explicit;
// automatic page breaking is disabled because pagination already happened in
// layout. Lines arrive in visual order and are drawn right-aligned, which is
// the reading alignment for right-to-left documents.
func writePDF(pages []Page, cfg PageConfig) ([]byte, error) {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: cfg.PageWidth, Ht: cfg.PageHeight},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddUTF8Font(fontFamily, "", cfg.FontPath)
	pdf.SetFont(fontFamily, "", cfg.FontSize)

	right := cfg.PageWidth - cfg.Margin
	for _, page := range pages {
		pdf.AddPage()
		y := cfg.Margin + cfg.FontSize

		for _, ln := range page.Header {
			if ln.Text != "" {
				pdf.Text(right-ln.Width, y, ln.Text)
			}
			y += cfg.LineHeight
		}
		y += cfg.LineHeight // gap between header block and body

		for _, ln := range page.Body {
			if ln.Text != "" {
				pdf.Text(right-ln.Width, y, ln.Text)
			}
			y += cfg.LineHeight
		}

		fw := pdf.GetStringWidth(page.Footer.Text)
		fy := cfg.PageHeight - cfg.Margin
		pdf.Text((cfg.PageWidth-fw)/2, fy, page.Footer.Text)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
