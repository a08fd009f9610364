// Command katib is the main entry point for the Katib clinical note server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/katibhealth/katib/internal/config"
	"github.com/katibhealth/katib/internal/health"
	"github.com/katibhealth/katib/internal/httpapi"
	"github.com/katibhealth/katib/internal/observe"
	"github.com/katibhealth/katib/internal/resilience"
	"github.com/katibhealth/katib/internal/session"
	"github.com/katibhealth/katib/internal/store"
	"github.com/katibhealth/katib/internal/store/postgres"
	"github.com/katibhealth/katib/internal/transcript"
	"github.com/katibhealth/katib/pkg/provider/llm"
	"github.com/katibhealth/katib/pkg/provider/llm/anyllm"
	oaillm "github.com/katibhealth/katib/pkg/provider/llm/openai"
	"github.com/katibhealth/katib/pkg/provider/transcribe"
	oaitranscribe "github.com/katibhealth/katib/pkg/provider/transcribe/openai"
	"github.com/katibhealth/katib/pkg/provider/transcribe/whisper"
	"github.com/katibhealth/katib/pkg/render"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// configPollInterval is how often the config file is checked for changes.
const configPollInterval = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "katib: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "katib: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("katib starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "katib",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()
	observer := observe.NewPipelineObserver(metrics)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	transcriber, err := buildTranscriber(cfg.Providers.Transcriber, reg, observer)
	if err != nil {
		slog.Error("failed to build transcription provider", "err", err)
		return 1
	}
	llmProvider, err := buildLLM(cfg.Providers.LLM, reg, observer)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}
	checkers := []health.Checker{
		health.Provider("transcriber", transcriber),
		health.Provider("llm", llmProvider),
	}
	if group, ok := transcriber.(*resilience.TranscribeFallback); ok {
		checkers = append(checkers, health.Failover("transcriber", group))
	}
	if group, ok := llmProvider.(*resilience.LLMFallback); ok {
		checkers = append(checkers, health.Failover("llm", group))
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	var sessionStore store.Store
	if cfg.Storage.PostgresDSN != "" {
		pg, err := postgres.New(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pg.Close()
		sessionStore = pg
		checkers = append(checkers, health.Database(pg))
		slog.Info("session store ready", "backend", "postgres")
	} else {
		sessionStore = store.NewMem()
		slog.Warn("session store ready", "backend", "memory")
	}

	// ── Renderer ──────────────────────────────────────────────────────────────
	var renderer session.Renderer
	if cfg.Render.FontPath != "" {
		fontMetrics, err := render.LoadFont(cfg.Render.FontPath)
		if err != nil {
			slog.Error("failed to load export font", "path", cfg.Render.FontPath, "err", err)
			return 1
		}
		renderer = render.New(fontMetrics, pageConfig(cfg.Render))
		checkers = append(checkers, health.FontFile(cfg.Render.FontPath))
		slog.Info("renderer ready", "font", cfg.Render.FontPath)
	} else {
		slog.Warn("no export font configured; document export is disabled")
	}

	// ── Corrector ─────────────────────────────────────────────────────────────
	var corrector transcript.Pipeline
	if len(cfg.Pipeline.Vocabulary) > 0 {
		corrector = transcript.NewCorrector(cfg.Pipeline.Vocabulary)
		slog.Info("vocabulary correction enabled", "terms", len(cfg.Pipeline.Vocabulary))
	}

	// ── Pipeline manager ──────────────────────────────────────────────────────
	manager, err := session.NewManager(session.ManagerConfig{
		Store:       sessionStore,
		Transcriber: transcriber,
		LLM:         llmProvider,
		Renderer:    renderer,
		Corrector:   corrector,
		Language:    cfg.Pipeline.Language,
		EditPolicy:  cfg.Pipeline.EditPolicy,
		Retry: session.RetryConfig{
			MaxAttempts: cfg.Pipeline.Retry.MaxAttempts,
			Base:        cfg.Pipeline.Retry.Base,
			Cap:         cfg.Pipeline.Retry.Cap,
		},
		Observer: observer,
		Logger:   logger,
	})
	if err != nil {
		slog.Error("failed to initialise session pipeline", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	api, err := httpapi.NewServer(httpapi.Config{
		Pipeline: manager,
		Store:    sessionStore,
		Logger:   logger,
	})
	if err != nil {
		slog.Error("failed to initialise http api", "err", err)
		return 1
	}

	mux := http.NewServeMux()
	api.Register(mux)
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, configPollInterval, func(old, new *config.Config) {
		applyConfigChange(logLevel, config.ComputeDiff(old, new))
	}, logger)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg, addr)

	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.TLS != nil {
			errCh <- srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	slog.Info("server ready — press Ctrl+C to shut down", "addr", addr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai uses the first-party client; anthropic, gemini, deepseek, mistral,
	// groq, llamacpp and llamafile share the any-llm pattern of optional APIKey
	// plus optional BaseURL.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Transcribers ──────────────────────────────────────────────────────────

	reg.RegisterTranscriber("openai", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		var opts []oaitranscribe.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitranscribe.WithBaseURL(entry.BaseURL))
		}
		return oaitranscribe.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.ModelPath, opts...)
	})
}

// buildTranscriber instantiates the configured transcription chain. With a
// fallback entry present the chain is wrapped in a circuit-breaking fallback
// group; otherwise the primary is returned directly.
func buildTranscriber(chain config.ProviderChain, reg *config.Registry, obs resilience.Observer) (transcribe.Transcriber, error) {
	primary, err := reg.CreateTranscriber(chain.Primary)
	if err != nil {
		return nil, fmt.Errorf("create transcriber %q: %w", chain.Primary.Name, err)
	}
	slog.Info("provider created", "kind", "transcriber", "name", chain.Primary.Name, "model", primary.Model())

	if chain.Fallback == nil {
		return primary, nil
	}

	fb, err := reg.CreateTranscriber(*chain.Fallback)
	if err != nil {
		return nil, fmt.Errorf("create fallback transcriber %q: %w", chain.Fallback.Name, err)
	}
	group := resilience.NewTranscribeFallback(primary, chain.Primary.Name, resilience.FallbackConfig{Observer: obs})
	group.AddFallback(chain.Fallback.Name, fb)
	slog.Info("provider fallback armed", "kind", "transcriber", "primary", chain.Primary.Name, "fallback", chain.Fallback.Name)
	return group, nil
}

// buildLLM mirrors buildTranscriber for the LLM chain.
func buildLLM(chain config.ProviderChain, reg *config.Registry, obs resilience.Observer) (llm.Provider, error) {
	primary, err := reg.CreateLLM(chain.Primary)
	if err != nil {
		return nil, fmt.Errorf("create llm %q: %w", chain.Primary.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", chain.Primary.Name, "model", primary.Model())

	if chain.Fallback == nil {
		return primary, nil
	}

	fb, err := reg.CreateLLM(*chain.Fallback)
	if err != nil {
		return nil, fmt.Errorf("create fallback llm %q: %w", chain.Fallback.Name, err)
	}
	group := resilience.NewLLMFallback(primary, chain.Primary.Name, resilience.FallbackConfig{Observer: obs})
	group.AddFallback(chain.Fallback.Name, fb)
	slog.Info("provider fallback armed", "kind", "llm", "primary", chain.Primary.Name, "fallback", chain.Fallback.Name)
	return group, nil
}

// pageConfig merges the configured page layout over the A4 defaults.
func pageConfig(rc config.RenderConfig) render.PageConfig {
	pc := render.DefaultPageConfig()
	pc.FontPath = rc.FontPath
	if rc.PageWidth > 0 {
		pc.PageWidth = rc.PageWidth
	}
	if rc.PageHeight > 0 {
		pc.PageHeight = rc.PageHeight
	}
	if rc.Margin > 0 {
		pc.Margin = rc.Margin
	}
	if rc.FontSize > 0 {
		pc.FontSize = rc.FontSize
	}
	if rc.LineHeight > 0 {
		pc.LineHeight = rc.LineHeight
	}
	return pc
}

// applyConfigChange applies what can change at runtime; everything else
// needs a restart.
func applyConfigChange(logLevel *slog.LevelVar, diff config.Diff) {
	if diff.Empty() {
		slog.Info("config changed; no hot-reloadable differences")
		return
	}
	if diff.LogLevelChanged {
		logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.EditPolicyChanged {
		slog.Warn("edit_policy changed in config; restart to apply", "new", diff.NewEditPolicy)
	}
	if diff.VocabularyChanged {
		slog.Warn("vocabulary changed in config; restart to apply", "terms", len(diff.NewVocabulary))
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, addr string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Katib — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printChain("Transcriber", cfg.Providers.Transcriber)
	printChain("LLM", cfg.Providers.LLM)
	if cfg.Storage.PostgresDSN != "" {
		fmt.Printf("║  Storage     : %-23s ║\n", "postgres")
	} else {
		fmt.Printf("║  Storage     : %-23s ║\n", "memory (volatile)")
	}
	if cfg.Render.FontPath != "" {
		fmt.Printf("║  Export      : %-23s ║\n", "pdf")
	} else {
		fmt.Printf("║  Export      : %-23s ║\n", "(disabled, no font)")
	}
	fmt.Printf("║  Vocabulary  : %-23d ║\n", len(cfg.Pipeline.Vocabulary))
	fmt.Printf("║  Listen addr : %-23s ║\n", addr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printChain(kind string, chain config.ProviderChain) {
	value := chain.Primary.Name
	if value == "" {
		value = "(not configured)"
	} else if chain.Primary.Model != "" {
		value = value + " / " + chain.Primary.Model
	}
	if chain.Fallback != nil {
		value += " +fb"
	}
	if len(value) > 23 {
		value = value[:20] + "…"
	}
	fmt.Printf("║  %-11s : %-23s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
