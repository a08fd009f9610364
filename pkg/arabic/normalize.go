// Package arabic provides canonicalization and presentation-form shaping for
// Arabic text.
//
// The two halves serve different pipeline stages: [Normalizer] prepares
// transcript text for NLP (digit unification, diacritic policy, character
// variant folding) while [Shape] converts logical-order Arabic into contextual
// joining forms for rendering. Both are pure: same input and configuration
// always produce the same output.
package arabic

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DiacriticsPolicy controls how the normalizer treats Arabic diacritical marks.
type DiacriticsPolicy string

const (
	// DiacriticsStrip removes all harakat and Quranic annotation marks.
	DiacriticsStrip DiacriticsPolicy = "strip"

	// DiacriticsPreserve keeps diacritical marks untouched.
	DiacriticsPreserve DiacriticsPolicy = "preserve"
)

// IsValid reports whether p is a recognised diacritics policy.
func (p DiacriticsPolicy) IsValid() bool {
	return p == DiacriticsStrip || p == DiacriticsPreserve
}

// Numerals selects the target numeral system digits are mapped to.
type Numerals string

const (
	// NumeralsWestern maps Arabic-Indic digits to ASCII 0-9.
	NumeralsWestern Numerals = "western"

	// NumeralsEastern maps ASCII digits to Arabic-Indic ٠-٩.
	NumeralsEastern Numerals = "eastern"
)

// IsValid reports whether n is a recognised numeral system.
func (n Numerals) IsValid() bool {
	return n == NumeralsWestern || n == NumeralsEastern
}

// EncodingError reports malformed input text. The offset is the byte position
// of the first invalid sequence.
type EncodingError struct {
	Offset int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("arabic: invalid UTF-8 sequence at byte %d", e.Offset)
}

// Normalizer canonicalizes Arabic text for consistent downstream processing.
// The zero value strips diacritics and targets western digits. Normalizer is
// immutable after construction and safe for concurrent use.
type Normalizer struct {
	// Diacritics selects whether harakat are stripped or preserved.
	Diacritics DiacriticsPolicy

	// Digits selects the target numeral system.
	Digits Numerals
}

const (
	tatweel     = 'ـ' // letter elongation, always removed
	alefMadda   = 'آ'
	alefHamza   = 'أ'
	alefHamzaB  = 'إ'
	alefWasla   = 'ٱ'
	alef        = 'ا'
	alefMaksura = 'ى'
	yeh         = 'ي'
)

// isDiacritic reports whether r is an Arabic combining mark (harakat, Quranic
// annotation signs, or the superscript alef).
func isDiacritic(r rune) bool {
	switch {
	case r >= 0x0610 && r <= 0x061A:
		return true
	case r >= 0x064B && r <= 0x065F:
		return true
	case r == 0x0670:
		return true
	case r >= 0x06D6 && r <= 0x06ED:
		return true
	}
	return false
}

// Normalize returns the canonical form of text:
//
//  1. tatweel is removed unconditionally,
//  2. diacritical marks are removed or kept per the configured policy,
//  3. digits are mapped to the configured numeral system,
//  4. alef variants fold to bare alef and final alef maksura folds to yeh,
//  5. redundant whitespace collapses to single spaces.
//
// Normalize is idempotent and total over valid UTF-8; malformed input fails
// with [*EncodingError].
func (n Normalizer) Normalize(text string) (string, error) {
	if !utf8.ValidString(text) {
		offset := 0
		for i := 0; i < len(text); {
			r, size := utf8.DecodeRuneInString(text[i:])
			if r == utf8.RuneError && size == 1 {
				offset = i
				break
			}
			i += size
		}
		return "", &EncodingError{Offset: offset}
	}

	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		switch {
		case r == tatweel:
			continue
		case isDiacritic(r):
			if n.Diacritics != DiacriticsPreserve {
				continue
			}
			b.WriteRune(r)
		case r == alefMadda || r == alefHamza || r == alefHamzaB || r == alefWasla:
			b.WriteRune(alef)
		case r == alefMaksura:
			b.WriteRune(yeh)
		default:
			b.WriteRune(mapDigit(r, n.Digits))
		}
	}

	// Collapse all runs of whitespace (including newlines) to single spaces.
	return strings.Join(strings.Fields(b.String()), " "), nil
}

// mapDigit converts r to the target numeral system, returning r unchanged
// when it is not a digit.
func mapDigit(r rune, target Numerals) rune {
	const (
		arabicIndicZero   = 0x0660 // ٠
		extendedIndicZero = 0x06F0 // ۰ (Persian/Urdu forms)
	)

	switch target {
	case NumeralsEastern:
		if r >= '0' && r <= '9' {
			return rune(arabicIndicZero + (r - '0'))
		}
		if r >= extendedIndicZero && r <= extendedIndicZero+9 {
			return rune(arabicIndicZero + (r - extendedIndicZero))
		}
	default: // western
		if r >= arabicIndicZero && r <= arabicIndicZero+9 {
			return rune('0' + (r - arabicIndicZero))
		}
		if r >= extendedIndicZero && r <= extendedIndicZero+9 {
			return rune('0' + (r - extendedIndicZero))
		}
	}
	return r
}
