package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/genai"

	"github.com/Riku4230/agenthackathon-4/internal/generate"
	"github.com/Riku4230/agenthackathon-4/internal/live"
	"github.com/Riku4230/agenthackathon-4/internal/relay"
	"github.com/Riku4230/agenthackathon-4/internal/session"
	"github.com/Riku4230/agenthackathon-4/internal/trace"
	"github.com/Riku4230/agenthackathon-4/internal/ws"
)

func main() {
	cfg := loadConfig()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel})))

	if cfg.googleAPIKey == "" {
		slog.Error("GOOGLE_AI_API_KEY is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.googleAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: generate.NewPooledHTTPClient(cfg.generationPoolSize),
	})
	if err != nil {
		slog.Error("genai client", "error", err)
		os.Exit(1)
	}

	// Generation backends
	backends := generate.NewRouter[generate.Backend]("gemini")
	backends.Register("gemini", generate.NewGeminiBackend(genaiClient, cfg.codeModel, cfg.generationMaxTokens))
	if cfg.openaiAPIKey != "" {
		backends.Register("openai", generate.NewOpenAIAgentBackend(cfg.openaiAPIKey, cfg.openaiModel, cfg.generationMaxTokens))
	}
	if !backends.Has(cfg.generationEngine) {
		slog.Warn("generation engine not registered, falling back", "engine", cfg.generationEngine, "fallback", "gemini")
	}
	generator := generate.NewClient(backends, cfg.generationEngine, slog.Default())

	dialer := newDialer(cfg, genaiClient)

	store := session.NewStore()
	if cfg.sessionIdleTTL > 0 {
		go store.RunJanitor(ctx, janitorInterval(cfg.sessionIdleTTL), cfg.sessionIdleTTL)
	}

	var traceStore *trace.Store
	if cfg.traceDatabaseURL != "" {
		initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
		traceStore, err = trace.Open(initCtx, cfg.traceDatabaseURL)
		initCancel()
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
			traceStore = nil
		} else {
			defer traceStore.Close()
			slog.Info("tracing enabled")
		}
	}

	handler := ws.NewHandler(ws.HandlerConfig{
		Store:         store,
		TraceStore:    traceStore,
		MaxConcurrent: cfg.maxConnections,
		AllowedOrigin: cfg.frontendURL,
		NewLive: func(logger *slog.Logger) relay.LiveSession {
			return live.New(live.Options{
				Dialer:    dialer,
				Generator: generator,
				Logger:    logger,
			})
		},
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		port:       cfg.port,
		engines:    backends,
		wsHandler:  handler,
		traceStore: traceStore,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway starting",
		"addr", addr,
		"live_variant", cfg.liveVariant,
		"live_model", cfg.liveModel,
		"generation_engine", cfg.generationEngine,
		"engines", backends.Engines(),
		"max_concurrent", cfg.maxConnections,
	)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}

func newDialer(cfg config, client *genai.Client) live.Dialer {
	if cfg.liveVariant == variantChat {
		return live.NewGeminiChatDialer(client, cfg.liveModel, live.ChatOptions{
			FlushInterval:     cfg.chatFlushInterval,
			ActivityThreshold: cfg.activityThreshold,
			PeakLevel:         cfg.audioPeakLevel,
		})
	}
	if cfg.liveVariant != variantLive {
		slog.Warn("unknown live variant, using live", "live_variant", cfg.liveVariant)
	}
	return live.NewGeminiLiveDialer(client, cfg.liveModel)
}

func janitorInterval(ttl time.Duration) time.Duration {
	return min(ttl, time.Minute)
}
