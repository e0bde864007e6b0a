package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Riku4230/agenthackathon-4/internal/metrics"
	"github.com/Riku4230/agenthackathon-4/internal/prompts"
	"github.com/Riku4230/agenthackathon-4/internal/session"
)

// Result is the outcome of one generation call.
type Result struct {
	Code               string  `json:"code"`
	Engine             string  `json:"engine"`
	LatencyMs          float64 `json:"latency_ms"`
	TimeToFirstChunkMs float64 `json:"ttfc_ms"`
	Chunks             int     `json:"chunks"`
}

// Client turns requirements into component code through the routed backend.
type Client struct {
	router *Router[Backend]
	engine string
	logger *slog.Logger
}

func NewClient(router *Router[Backend], engine string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{router: router, engine: engine, logger: logger}
}

// Generate builds the requirement-list prompt. Streaming is used iff onChunk is non-nil.
func (c *Client) Generate(ctx context.Context, reqs []session.Requirement, onChunk ChunkFunc) (Result, error) {
	lines := make([]prompts.RequirementLine, len(reqs))
	for i, r := range reqs {
		lines[i] = prompts.RequirementLine{
			ComponentType: string(r.ComponentType),
			Description:   r.Description,
			Context:       r.Context,
		}
	}
	return c.run(ctx, prompts.CodeFromRequirements(lines), onChunk)
}

// GenerateFromDescription builds the named-component prompt from a free-text summary.
func (c *Client) GenerateFromDescription(ctx context.Context, componentName, summary string, onChunk ChunkFunc) (Result, error) {
	return c.run(ctx, prompts.CodeFromDescription(componentName, summary), onChunk)
}

func (c *Client) run(ctx context.Context, prompt string, onChunk ChunkFunc) (Result, error) {
	backend, engine, err := c.router.Route(c.engine)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	start := time.Now()
	var firstChunk time.Time
	var acc Accumulator
	var raw string

	if onChunk == nil {
		raw, err = backend.Complete(ctx, prompt)
		acc.Add(raw)
	} else {
		_, err = backend.Stream(ctx, prompt, func(chunk string) {
			if firstChunk.IsZero() {
				firstChunk = time.Now()
			}
			acc.Add(chunk)
			onChunk(chunk)
		})
	}
	latency := time.Since(start)

	if err != nil {
		metrics.GenerationErrors.WithLabelValues(engine).Inc()
		c.logger.Warn("generation failed", "engine", engine, "chunks", acc.Chunks(), "partial_len", len(acc.Raw()), "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	res := Result{
		Code:      acc.Result(),
		Engine:    engine,
		LatencyMs: float64(latency.Milliseconds()),
		Chunks:    acc.Chunks(),
	}
	metrics.GenerationDuration.WithLabelValues(engine).Observe(latency.Seconds())
	if !firstChunk.IsZero() {
		ttfc := firstChunk.Sub(start)
		res.TimeToFirstChunkMs = float64(ttfc.Milliseconds())
		metrics.GenerationTTFC.WithLabelValues(engine).Observe(ttfc.Seconds())
	}

	c.logger.Info("generation complete",
		"engine", engine,
		"chunks", res.Chunks,
		"code_len", len(res.Code),
		"latency_ms", res.LatencyMs,
		"ttfc_ms", res.TimeToFirstChunkMs,
	)
	return res, nil
}
