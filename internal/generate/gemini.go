package generate

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"
)

// contentModels is the slice of *genai.Models used here.
type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeminiBackend generates text through the Gemini content API.
type GeminiBackend struct {
	models    contentModels
	model     string
	maxTokens int
}

// NewGeminiBackend wraps an existing genai client.
func NewGeminiBackend(client *genai.Client, model string, maxTokens int) *GeminiBackend {
	return &GeminiBackend{models: client.Models, model: model, maxTokens: maxTokens}
}

func (g *GeminiBackend) config() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.maxTokens)
	}
	return cfg
}

func (g *GeminiBackend) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config())
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

func (g *GeminiBackend) Stream(ctx context.Context, prompt string, onChunk ChunkFunc) (string, error) {
	var buf strings.Builder
	for resp, err := range g.models.GenerateContentStream(ctx, g.model, genai.Text(prompt), g.config()) {
		if err != nil {
			return buf.String(), fmt.Errorf("gemini stream: %w", err)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		buf.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	return buf.String(), nil
}
