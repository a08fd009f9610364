// Package whisper provides a Transcriber backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all requests;
// each request gets its own inference context, so concurrent transcriptions
// do not interfere.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/katibhealth/katib/pkg/provider/transcribe"
	"github.com/katibhealth/katib/pkg/types"
)

// whisper.cpp consumes 16 kHz mono float32 samples.
const sampleRate = 16000

// Compile-time assertion that Transcriber satisfies transcribe.Transcriber.
var _ transcribe.Transcriber = (*Transcriber)(nil)

// Transcriber implements transcribe.Transcriber using local whisper.cpp
// inference. Unlike the hosted API it returns per-segment timestamps.
type Transcriber struct {
	model     whisperlib.Model
	modelPath string
	language  string
}

// Option is a functional option for Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the default BCP-47 language code used when a request
// carries no hint. Defaults to "ar".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// New loads the whisper.cpp model from the given file path. The caller must
// call Close when the transcriber is no longer needed.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	t := &Transcriber{
		model:     model,
		modelPath: modelPath,
		language:  "ar",
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the whisper model.
func (t *Transcriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe implements transcribe.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, req transcribe.Request) ([]types.TranscriptSegment, error) {
	if req.Clip == nil {
		return nil, transcribe.NewPermanent("no_audio", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples := req.Clip.SamplesMono(sampleRate)
	if len(samples) == 0 {
		return nil, transcribe.NewPermanent("empty_audio", nil)
	}

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := t.model.NewContext()
	if err != nil {
		return nil, transcribe.NewTransient("context_alloc", err)
	}

	lang := req.Language
	if lang == "" {
		lang = t.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default",
			"language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, transcribe.NewPermanent("inference", err)
	}

	var segments []types.TranscriptSegment
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, transcribe.NewPermanent("read_segment", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		segments = append(segments, types.TranscriptSegment{
			Index: len(segments),
			Start: segment.Start,
			Text:  text,
		})
	}
	return segments, nil
}

// Model implements transcribe.Transcriber.
func (t *Transcriber) Model() string { return "whisper.cpp:" + t.modelPath }
