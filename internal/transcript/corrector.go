// Package transcript corrects misheard clinical vocabulary in transcribed
// segments.
//
// Transcription models reliably garble domain terms — drug names,
// procedures, anatomical vocabulary — especially when Latin-script terms are
// embedded in Arabic speech ("باراسيتامول", "ventolin"). The [Corrector]
// aligns transcript tokens against a configured vocabulary in two steps:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the input window and each vocabulary term. A code overlap makes the
//     term a phonetic candidate. Arabic tokens produce no metaphone codes,
//     so they skip straight to step 2.
//
//  2. Jaro-Winkler ranking: among candidates, the term with the highest
//     similarity to the window wins, provided it clears the phonetic
//     threshold (default 0.70). Without a phonetic candidate a stricter
//     fuzzy threshold applies (default 0.85), which is what Arabic terms
//     are held to.
//
// Multi-word terms are supported through n-gram windows; the longest match
// at each position wins. Every substitution is reported as a [Correction]
// so callers can audit what changed.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/katibhealth/katib/pkg/types"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Correction records a single vocabulary substitution.
type Correction struct {
	// Segment is the index into the corrected segment slice.
	Segment int

	// Original is the window of transcript text that was replaced.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the similarity score that justified the substitution,
	// in (0, 1].
	Confidence float64
}

// Pipeline corrects vocabulary in transcribed segments. Implementations must
// be safe for concurrent use.
type Pipeline interface {
	Correct(segments []types.TranscriptSegment) ([]types.TranscriptSegment, []Correction)
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// term is a vocabulary entry with its precomputed matching data.
type term struct {
	canonical string
	lower     string
	tokens    []string
	codes     map[string]struct{}
}

// Corrector aligns transcript text against a fixed clinical vocabulary.
// Read-only after construction and safe for concurrent use.
type Corrector struct {
	terms             []term
	maxTermWords      int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

var _ Pipeline = (*Corrector)(nil)

// NewCorrector builds a Corrector over vocabulary. Blank entries are
// ignored; term matching data is precomputed once here.
func NewCorrector(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}

	for _, v := range vocabulary {
		canonical := strings.TrimSpace(v)
		if canonical == "" {
			continue
		}
		lower := strings.ToLower(canonical)
		tokens := strings.Fields(lower)
		c.terms = append(c.terms, term{
			canonical: canonical,
			lower:     lower,
			tokens:    tokens,
			codes:     metaphoneCodes(tokens),
		})
		if len(tokens) > c.maxTermWords {
			c.maxTermWords = len(tokens)
		}
	}
	return c
}

// Correct applies the vocabulary to every segment. The input slice is not
// modified; corrections reference indexes in the returned slice.
func (c *Corrector) Correct(segments []types.TranscriptSegment) ([]types.TranscriptSegment, []Correction) {
	if len(c.terms) == 0 || len(segments) == 0 {
		return segments, nil
	}

	out := make([]types.TranscriptSegment, len(segments))
	copy(out, segments)

	var corrections []Correction
	for i := range out {
		text, segCorr := c.correctText(out[i].Text)
		for _, sc := range segCorr {
			sc.Segment = i
			corrections = append(corrections, sc)
		}
		out[i].Text = text
	}
	return out, corrections
}

// correctText walks the token stream trying n-gram windows from the longest
// vocabulary term down to one word. The longest match at each position wins
// and the cursor advances past the consumed tokens.
func (c *Corrector) correctText(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var (
		output      []string
		corrections []Correction
	)

	i := 0
	for i < len(tokens) {
		maxN := c.maxTermWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			t, conf, ok := c.match(window)
			if !ok {
				continue
			}

			output = append(output, strings.Fields(t.canonical)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  t.canonical,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// match finds the best vocabulary term for window. A window that already
// equals a term needs no correction and reports no match.
func (c *Corrector) match(window string) (term, float64, bool) {
	windowLower := strings.ToLower(window)
	windowTokens := strings.Fields(windowLower)
	windowCodes := metaphoneCodes(windowTokens)

	var (
		best         term
		bestScore    float64
		bestPhonetic bool
		found        bool
	)

	for _, t := range c.terms {
		if t.lower == windowLower {
			return term{}, 0, false
		}

		phonetic := codesOverlap(windowCodes, t.codes)
		score := bestSimilarity(windowTokens, t.tokens, windowLower, t.lower)

		switch {
		case phonetic && score >= c.phoneticThreshold:
			if !found || !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic, found = t, score, true, true
			}
		case !phonetic && !bestPhonetic && score >= c.fuzzyThreshold:
			if !found || score > bestScore {
				best, bestScore, found = t, score, true
			}
		}
	}

	return best, bestScore, found
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens.
// Tokens without consonant structure (including Arabic script) contribute
// nothing.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity computes the highest Jaro-Winkler score between the window
// and the term: full strings, plus space-stripped concatenations so a term
// the model split into two words still aligns. Single shared tokens do not
// count: the whole window has to resemble the whole term.
func bestSimilarity(windowTokens, termTokens []string, windowFull, termFull string) float64 {
	score := matchr.JaroWinkler(windowFull, termFull, false)

	if len(windowTokens) > 1 || len(termTokens) > 1 {
		c1 := strings.Join(windowTokens, "")
		c2 := strings.Join(termTokens, "")
		if s := matchr.JaroWinkler(c1, c2, false); s > score {
			score = s
		}
	}

	return score
}
