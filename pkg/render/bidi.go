package render

import "golang.org/x/text/unicode/bidi"

// visualOrder reorders a single logical-order line for visual left-to-right
// display. The Unicode bidirectional algorithm (via x/text) splits the line
// into directional runs and computes their visual sequence; the characters of
// each right-to-left run are then reversed so the whole line can be drawn
// left to right.
//
// The paragraph direction is right-to-left: in a line mixing Arabic and Latin
// the first logical run ends up rightmost, while Latin words and numerals
// keep their internal left-to-right order.
func visualOrder(line string) (string, error) {
	if line == "" {
		return "", nil
	}

	var p bidi.Paragraph
	if _, err := p.SetString(line, bidi.DefaultDirection(bidi.RightToLeft)); err != nil {
		return "", err
	}
	ordering, err := p.Order()
	if err != nil {
		return "", err
	}

	out := make([]rune, 0, len(line))
	for i := 0; i < ordering.NumRuns(); i++ {
		run := ordering.Run(i)
		text := run.String()
		if run.Direction() == bidi.RightToLeft {
			out = append(out, reverseRunes(text)...)
		} else {
			out = append(out, []rune(text)...)
		}
	}
	return string(out), nil
}

// reverseRunes returns the runes of s in reverse order.
func reverseRunes(s string) []rune {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return runes
}
