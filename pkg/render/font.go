package render

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// FontMetrics measures glyph advances for already-shaped text and reports
// glyph coverage. Implementations must be safe for concurrent use: layout for
// independent export requests runs in parallel.
type FontMetrics interface {
	// Advance returns the horizontal advance of r in points at the given
	// font size. ok is false when the font has no glyph for r.
	Advance(r rune, size float64) (width float64, ok bool)
}

// fontCache holds parsed fonts keyed by file path. Fonts are parsed once per
// process lifetime; repeated LoadFont calls for the same path share the
// parsed font.
var fontCache = struct {
	mu    sync.Mutex
	fonts map[string]*SFNTMetrics
}{fonts: make(map[string]*SFNTMetrics)}

// SFNTMetrics implements [FontMetrics] backed by a parsed TrueType/OpenType
// font. All methods are safe for concurrent use.
type SFNTMetrics struct {
	path string
	font *sfnt.Font

	// sfnt buffers are not goroutine-safe; serialize access.
	mu  sync.Mutex
	buf sfnt.Buffer
}

// LoadFont parses the TrueType font at path and returns its metrics. The
// parsed font is cached for the lifetime of the process.
func LoadFont(path string) (*SFNTMetrics, error) {
	fontCache.mu.Lock()
	defer fontCache.mu.Unlock()

	if m, ok := fontCache.fonts[path]; ok {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("render: read font %q: %w", path, err)
	}
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("render: parse font %q: %w", path, err)
	}

	m := &SFNTMetrics{path: path, font: f}
	fontCache.fonts[path] = m
	return m, nil
}

// Path returns the file path the font was loaded from.
func (m *SFNTMetrics) Path() string { return m.path }

// Advance implements [FontMetrics]. A rune that maps to the font's missing
// glyph (index 0) is reported as uncovered; the caller decides whether that
// is a [RenderError].
func (m *SFNTMetrics) Advance(r rune, size float64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gi, err := m.font.GlyphIndex(&m.buf, r)
	if err != nil || gi == 0 {
		return 0, false
	}

	ppem := fixed.Int26_6(size * 64)
	adv, err := m.font.GlyphAdvance(&m.buf, gi, ppem, font.HintingNone)
	if err != nil {
		return 0, false
	}
	return float64(adv) / 64, true
}
