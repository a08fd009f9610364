package arabic

// JoiningClass describes how a character participates in cursive joining.
type JoiningClass int

const (
	// JoinNone breaks joins on both sides (hamza, Latin, digits, punctuation).
	JoinNone JoiningClass = iota

	// JoinRight connects only to the preceding letter (alef, dal, reh, waw...).
	JoinRight

	// JoinDual connects on both sides.
	JoinDual

	// JoinTransparent does not participate in joining at all; diacritics are
	// transparent and never break a join between their neighbours.
	JoinTransparent
)

// forms holds the four presentation forms of a letter. Right-joining letters
// repeat the isolated form as initial and the final form as medial, so form
// selection can index uniformly.
type forms struct {
	isolated rune
	final    rune
	initial  rune
	medial   rune
}

// shapeTable maps each Arabic letter to its presentation forms (Arabic
// Presentation Forms-B block) and joining class.
var shapeTable = map[rune]struct {
	class JoiningClass
	forms forms
}{
	'ء': {JoinNone, forms{0xFE80, 0xFE80, 0xFE80, 0xFE80}},  // hamza
	'آ': {JoinRight, forms{0xFE81, 0xFE82, 0xFE81, 0xFE82}}, // alef madda
	'أ': {JoinRight, forms{0xFE83, 0xFE84, 0xFE83, 0xFE84}}, // alef hamza above
	'ؤ': {JoinRight, forms{0xFE85, 0xFE86, 0xFE85, 0xFE86}}, // waw hamza
	'إ': {JoinRight, forms{0xFE87, 0xFE88, 0xFE87, 0xFE88}}, // alef hamza below
	'ئ': {JoinDual, forms{0xFE89, 0xFE8A, 0xFE8B, 0xFE8C}},  // yeh hamza
	'ا': {JoinRight, forms{0xFE8D, 0xFE8E, 0xFE8D, 0xFE8E}}, // alef
	'ب': {JoinDual, forms{0xFE8F, 0xFE90, 0xFE91, 0xFE92}},  // beh
	'ة': {JoinRight, forms{0xFE93, 0xFE94, 0xFE93, 0xFE94}}, // teh marbuta
	'ت': {JoinDual, forms{0xFE95, 0xFE96, 0xFE97, 0xFE98}},  // teh
	'ث': {JoinDual, forms{0xFE99, 0xFE9A, 0xFE9B, 0xFE9C}},  // theh
	'ج': {JoinDual, forms{0xFE9D, 0xFE9E, 0xFE9F, 0xFEA0}},  // jeem
	'ح': {JoinDual, forms{0xFEA1, 0xFEA2, 0xFEA3, 0xFEA4}},  // hah
	'خ': {JoinDual, forms{0xFEA5, 0xFEA6, 0xFEA7, 0xFEA8}},  // khah
	'د': {JoinRight, forms{0xFEA9, 0xFEAA, 0xFEA9, 0xFEAA}}, // dal
	'ذ': {JoinRight, forms{0xFEAB, 0xFEAC, 0xFEAB, 0xFEAC}}, // thal
	'ر': {JoinRight, forms{0xFEAD, 0xFEAE, 0xFEAD, 0xFEAE}}, // reh
	'ز': {JoinRight, forms{0xFEAF, 0xFEB0, 0xFEAF, 0xFEB0}}, // zain
	'س': {JoinDual, forms{0xFEB1, 0xFEB2, 0xFEB3, 0xFEB4}},  // seen
	'ش': {JoinDual, forms{0xFEB5, 0xFEB6, 0xFEB7, 0xFEB8}},  // sheen
	'ص': {JoinDual, forms{0xFEB9, 0xFEBA, 0xFEBB, 0xFEBC}},  // sad
	'ض': {JoinDual, forms{0xFEBD, 0xFEBE, 0xFEBF, 0xFEC0}},  // dad
	'ط': {JoinDual, forms{0xFEC1, 0xFEC2, 0xFEC3, 0xFEC4}},  // tah
	'ظ': {JoinDual, forms{0xFEC5, 0xFEC6, 0xFEC7, 0xFEC8}},  // zah
	'ع': {JoinDual, forms{0xFEC9, 0xFECA, 0xFECB, 0xFECC}},  // ain
	'غ': {JoinDual, forms{0xFECD, 0xFECE, 0xFECF, 0xFED0}},  // ghain
	'ـ': {JoinDual, forms{0x0640, 0x0640, 0x0640, 0x0640}},  // tatweel
	'ف': {JoinDual, forms{0xFED1, 0xFED2, 0xFED3, 0xFED4}},  // feh
	'ق': {JoinDual, forms{0xFED5, 0xFED6, 0xFED7, 0xFED8}},  // qaf
	'ك': {JoinDual, forms{0xFED9, 0xFEDA, 0xFEDB, 0xFEDC}},  // kaf
	'ل': {JoinDual, forms{0xFEDD, 0xFEDE, 0xFEDF, 0xFEE0}},  // lam
	'م': {JoinDual, forms{0xFEE1, 0xFEE2, 0xFEE3, 0xFEE4}},  // meem
	'ن': {JoinDual, forms{0xFEE5, 0xFEE6, 0xFEE7, 0xFEE8}},  // noon
	'ه': {JoinDual, forms{0xFEE9, 0xFEEA, 0xFEEB, 0xFEEC}},  // heh
	'و': {JoinRight, forms{0xFEED, 0xFEEE, 0xFEED, 0xFEEE}}, // waw
	'ى': {JoinRight, forms{0xFEEF, 0xFEF0, 0xFEEF, 0xFEF0}}, // alef maksura
	'ي': {JoinDual, forms{0xFEF1, 0xFEF2, 0xFEF3, 0xFEF4}},  // yeh
}

// lamAlefTable maps alef variants to the isolated/final lam-alef ligature
// pair used when the variant immediately follows lam.
var lamAlefTable = map[rune][2]rune{
	'آ': {0xFEF5, 0xFEF6}, // lam + alef madda
	'أ': {0xFEF7, 0xFEF8}, // lam + alef hamza above
	'إ': {0xFEF9, 0xFEFA}, // lam + alef hamza below
	'ا': {0xFEFB, 0xFEFC}, // lam + alef
}

const lam = 'ل'

// ClassOf returns the joining class of r. Characters outside the Arabic
// letter repertoire are non-joining except diacritics, which are transparent.
func ClassOf(r rune) JoiningClass {
	if e, ok := shapeTable[r]; ok {
		return e.class
	}
	if isDiacritic(r) {
		return JoinTransparent
	}
	return JoinNone
}

// joinsForward reports whether r connects to the letter after it.
func joinsForward(r rune) bool {
	return ClassOf(r) == JoinDual
}

// joinsBackward reports whether r accepts a connection from the letter
// before it.
func joinsBackward(r rune) bool {
	c := ClassOf(r)
	return c == JoinDual || c == JoinRight
}

// Shape replaces every Arabic letter in text with its contextual presentation
// form (isolated, initial, medial, or final) chosen from its neighbours'
// joining behaviour. Diacritics are transparent: they pass through unchanged
// and never break a join. Lam followed by an alef variant collapses into the
// corresponding lam-alef ligature. Non-Arabic text is returned untouched, so
// shaping a pure-Latin string is a no-op.
//
// The input is logical order; the output remains logical order. Visual
// reordering is a separate, later step.
func Shape(text string) string {
	runes := []rune(text)
	out := make([]rune, 0, len(runes))

	// prevJoins tracks whether the last emitted non-transparent glyph
	// connects forward into the current letter.
	prevJoins := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		entry, isArabic := shapeTable[r]
		if !isArabic {
			if ClassOf(r) == JoinTransparent {
				out = append(out, r)
				continue // transparent: prevJoins unchanged
			}
			out = append(out, r)
			prevJoins = false
			continue
		}

		// Lam-alef ligature: lam directly followed (ignoring transparents)
		// by an alef variant fuses into a single glyph.
		if r == lam {
			if j, variant := nextSolid(runes, i); variant != 0 {
				if pair, ok := lamAlefTable[variant]; ok {
					lig := pair[0]
					if prevJoins {
						lig = pair[1]
					}
					out = append(out, lig)
					// Carry any transparent marks between lam and alef.
					out = append(out, runes[i+1:j]...)
					i = j
					prevJoins = false // ligature does not join forward
					continue
				}
			}
		}

		nextJoins := false
		if _, next := nextSolid(runes, i); next != 0 {
			nextJoins = joinsBackward(next) && joinsForward(r)
		}

		f := entry.forms
		var glyph rune
		switch {
		case prevJoins && nextJoins:
			glyph = f.medial
		case prevJoins:
			glyph = f.final
		case nextJoins:
			glyph = f.initial
		default:
			glyph = f.isolated
		}
		out = append(out, glyph)
		prevJoins = joinsForward(r)
	}

	return string(out)
}

// nextSolid returns the index and value of the next non-transparent rune
// after position i, or (0, 0) when none exists before the end of the slice.
func nextSolid(runes []rune, i int) (int, rune) {
	for j := i + 1; j < len(runes); j++ {
		if ClassOf(runes[j]) != JoinTransparent {
			return j, runes[j]
		}
	}
	return 0, 0
}

// GlyphCount returns the number of non-transparent glyphs in a shaped string.
// For a run of N Arabic letters with no diacritics and no lam-alef sequences
// this is exactly N.
func GlyphCount(shaped string) int {
	n := 0
	for _, r := range shaped {
		if ClassOf(r) != JoinTransparent {
			n++
		}
	}
	return n
}
