package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/Riku4230/agenthackathon-4/internal/env"
)

const (
	variantLive = "live"
	variantChat = "chat"
)

type config struct {
	port                string
	googleAPIKey        string
	liveModel           string
	codeModel           string
	liveVariant         string
	generationEngine    string
	generationMaxTokens int
	generationPoolSize  int
	openaiAPIKey        string
	openaiModel         string
	frontendURL         string
	maxConnections      int
	sessionIdleTTL      time.Duration
	chatFlushInterval   time.Duration
	activityThreshold   float64
	audioPeakLevel      float64
	traceDatabaseURL    string
	logLevel            slog.Level
}

func loadConfig() config {
	return config{
		port:                env.Str("PORT", "3001"),
		googleAPIKey:        env.Str("GOOGLE_AI_API_KEY", ""),
		liveModel:           env.Str("GEMINI_LIVE_MODEL", "gemini-2.0-flash-exp"),
		codeModel:           env.Str("GEMINI_CODE_MODEL", "gemini-2.0-flash"),
		liveVariant:         strings.ToLower(env.Str("LIVE_VARIANT", variantLive)),
		generationEngine:    strings.ToLower(env.Str("GENERATION_ENGINE", "gemini")),
		generationMaxTokens: env.Int("GENERATION_MAX_TOKENS", 8192),
		generationPoolSize:  env.Int("GENERATION_POOL_SIZE", 50),
		openaiAPIKey:        env.Str("OPENAI_API_KEY", ""),
		openaiModel:         env.Str("OPENAI_MODEL", "gpt-4o-mini"),
		frontendURL:         env.Str("FRONTEND_URL", "http://localhost:3000"),
		maxConnections:      env.Int("MAX_CONCURRENT_CONNECTIONS", 100),
		sessionIdleTTL:      env.Duration("SESSION_IDLE_TTL", 0),
		chatFlushInterval:   env.Duration("CHAT_FLUSH_INTERVAL", 5*time.Second),
		activityThreshold:   env.Float("AUDIO_ACTIVITY_THRESHOLD", 500),
		audioPeakLevel:      env.Float("AUDIO_NORMALIZE_LEVEL", 0.9),
		traceDatabaseURL:    env.Str("TRACE_DATABASE_URL", ""),
		logLevel:            parseLevel(env.Str("LOG_LEVEL", "info")),
	}
}

// parseLevel falls back to info for anything slog does not recognize.
func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
