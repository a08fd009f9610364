package render

import (
	"strconv"
	"strings"

	"github.com/katibhealth/katib/pkg/arabic"
)

// Line is one laid-out line in visual order, ready to be drawn right-aligned.
type Line struct {
	// Text is the line content in visual (display) order, using Arabic
	// presentation forms where applicable. Empty text is a blank line.
	Text string

	// Width is the measured advance width of Text in points.
	Width float64
}

// Page is one paginated unit: the repeated header, a slice of body lines, and
// a page-number footer.
type Page struct {
	Number int
	Header []Line
	Body   []Line
	Footer Line
}

// layoutParagraph shapes a logical-order paragraph, wraps it greedily against
// maxWidth, and reorders each wrapped line for visual display. Breaks happen
// only at spaces, never inside a joined letter cluster: shaping runs before
// wrapping, so contextual forms are fixed by the time the text is split.
func (r *Renderer) layoutParagraph(text string, maxWidth float64) ([]Line, error) {
	shaped := arabic.Shape(text)

	words := strings.Fields(shaped)
	if len(words) == 0 {
		return []Line{{}}, nil
	}

	spaceW, err := r.measure(" ")
	if err != nil {
		return nil, err
	}

	var (
		lines   []Line
		current []string
		width   float64
	)
	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		visual, err := visualOrder(strings.Join(current, " "))
		if err != nil {
			return err
		}
		lines = append(lines, Line{Text: visual, Width: width})
		current, width = nil, 0
		return nil
	}

	for _, w := range words {
		ww, err := r.measure(w)
		if err != nil {
			return nil, err
		}
		need := ww
		if len(current) > 0 {
			need += spaceW
		}
		// An oversized word still gets its own line; there is no break
		// point inside it.
		if len(current) > 0 && width+need > maxWidth {
			if err := flush(); err != nil {
				return nil, err
			}
			need = ww
		}
		current = append(current, w)
		width += need
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return lines, nil
}

// measure sums the advance widths of s at the configured font size. A rune
// the font cannot represent fails the whole layout.
func (r *Renderer) measure(s string) (float64, error) {
	var total float64
	for _, ch := range s {
		adv, ok := r.metrics.Advance(ch, r.cfg.FontSize)
		if !ok {
			return 0, &RenderError{Rune: ch, Font: r.cfg.FontPath}
		}
		total += adv
	}
	return total, nil
}

// paginate splits body lines across pages, repeating the header on each page
// and numbering footers sequentially from 1.
func (r *Renderer) paginate(header, body []Line) []Page {
	usable := r.cfg.PageHeight - 2*r.cfg.Margin
	headerH := float64(len(header)+1) * r.cfg.LineHeight // header block plus separator gap
	footerH := r.cfg.LineHeight
	perPage := int((usable - headerH - footerH) / r.cfg.LineHeight)
	if perPage < 1 {
		perPage = 1
	}

	// Drop trailing blanks so the last page is not padded.
	for len(body) > 0 && body[len(body)-1].Text == "" {
		body = body[:len(body)-1]
	}

	var pages []Page
	for start := 0; start == 0 || start < len(body); start += perPage {
		end := start + perPage
		if end > len(body) {
			end = len(body)
		}
		n := len(pages) + 1
		pages = append(pages, Page{
			Number: n,
			Header: header,
			Body:   body[start:end],
		})
	}
	for i := range pages {
		pages[i].Footer = Line{Text: formatPageNumber(pages[i].Number, len(pages))}
	}
	return pages
}

func formatPageNumber(n, total int) string {
	return "Page " + strconv.Itoa(n) + " of " + strconv.Itoa(total)
}
