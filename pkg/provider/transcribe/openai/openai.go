// Package openai provides a Transcriber backed by the OpenAI audio API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/katibhealth/katib/pkg/provider/transcribe"
	"github.com/katibhealth/katib/pkg/types"
)

// Transcriber implements transcribe.Transcriber using the OpenAI audio API.
// The hosted endpoint returns plain text without word timing, so the result
// is a single segment spanning the whole clip; speaker attribution happens
// downstream.
type Transcriber struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the transcriber.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout. Uploads of long recordings
// need headroom; the zero value leaves the client without a timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a Transcriber. model is the audio model identifier,
// e.g. "whisper-1".
func New(apiKey string, model string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Transcriber{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Transcribe implements transcribe.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, req transcribe.Request) ([]types.TranscriptSegment, error) {
	if req.Clip == nil {
		return nil, transcribe.NewPermanent("no_audio", nil)
	}

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(t.model),
		File:  oai.File(bytes.NewReader(req.Clip.Container()), "recording.wav", "audio/wav"),
	}
	if req.Language != "" {
		params.Language = param.NewOpt(req.Language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, nil
	}
	return []types.TranscriptSegment{{Index: 0, Start: 0, Text: text}}, nil
}

// Model implements transcribe.Transcriber.
func (t *Transcriber) Model() string { return t.model }

// classify maps an SDK error to a transcribe.Error. Rate limits and server
// errors are transient; everything else in the 4xx range is permanent.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apierr *oai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests:
			return transcribe.NewTransient("rate_limited", err)
		case apierr.StatusCode >= 500:
			return transcribe.NewTransient("server_error", err)
		default:
			return transcribe.NewPermanent("api_rejected", err)
		}
	}
	// Network-level failures without an HTTP status are retryable.
	return transcribe.NewTransient("network", err)
}
