package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":         {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"transcriber": {"openai", "whisper"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	errs = append(errs, validateChain("providers.transcriber", "transcriber", cfg.Providers.Transcriber)...)
	errs = append(errs, validateChain("providers.llm", "llm", cfg.Providers.LLM)...)

	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; sessions are held in memory and lost on restart")
	}

	if cfg.Pipeline.EditPolicy != "" && !cfg.Pipeline.EditPolicy.Valid() {
		errs = append(errs, fmt.Errorf("pipeline.edit_policy %q is invalid; valid values: preserve, overwrite", cfg.Pipeline.EditPolicy))
	}
	if cfg.Pipeline.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("pipeline.retry.max_attempts %d must not be negative", cfg.Pipeline.Retry.MaxAttempts))
	}
	if cfg.Pipeline.Retry.Base < 0 || cfg.Pipeline.Retry.Cap < 0 {
		errs = append(errs, errors.New("pipeline.retry durations must not be negative"))
	}
	if cfg.Pipeline.Retry.Cap != 0 && cfg.Pipeline.Retry.Base > cfg.Pipeline.Retry.Cap {
		errs = append(errs, fmt.Errorf("pipeline.retry.base %s exceeds cap %s", cfg.Pipeline.Retry.Base, cfg.Pipeline.Retry.Cap))
	}

	if cfg.Render.FontPath == "" {
		slog.Warn("render.font_path is empty; document export will not be available")
	}
	for name, v := range map[string]float64{
		"render.page_width":  cfg.Render.PageWidth,
		"render.page_height": cfg.Render.PageHeight,
		"render.margin":      cfg.Render.Margin,
		"render.font_size":   cfg.Render.FontSize,
		"render.line_height": cfg.Render.LineHeight,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	return errors.Join(errs...)
}

// validateChain checks one provider chain: the primary must name a provider,
// a fallback (when present) must too.
func validateChain(prefix, kind string, chain ProviderChain) []error {
	var errs []error

	if chain.Primary.Name == "" {
		errs = append(errs, fmt.Errorf("%s.primary.name is required", prefix))
	} else {
		warnUnknownProviderName(kind, chain.Primary.Name)
	}

	if chain.Fallback != nil {
		if chain.Fallback.Name == "" {
			errs = append(errs, fmt.Errorf("%s.fallback.name is required when a fallback block is present", prefix))
		} else {
			warnUnknownProviderName(kind, chain.Fallback.Name)
		}
	}

	return errs
}

// warnUnknownProviderName logs a warning if name is non-empty and not found
// in the [ValidProviderNames] list for the given kind.
func warnUnknownProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
