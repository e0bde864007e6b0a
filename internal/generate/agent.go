package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"
)

const textDelta = "response.output_text.delta"

// AgentBackend generates text through an openai-agents-go model provider.
type AgentBackend struct {
	provider     agents.ModelProvider
	model        string
	maxTokens    int
	instructions string
}

// NewOpenAIAgentBackend builds a backend on the OpenAI provider for apiKey.
func NewOpenAIAgentBackend(apiKey, model string, maxTokens int) *AgentBackend {
	provider := agents.NewOpenAIProvider(agents.OpenAIProviderParams{
		APIKey: param.NewOpt(apiKey),
	})
	return NewAgentBackend(provider, model, maxTokens)
}

func NewAgentBackend(provider agents.ModelProvider, model string, maxTokens int) *AgentBackend {
	return &AgentBackend{
		provider:     provider,
		model:        model,
		maxTokens:    maxTokens,
		instructions: "You write production-quality React components. Reply with code only.",
	}
}

// Complete runs the stream to completion without forwarding fragments.
func (a *AgentBackend) Complete(ctx context.Context, prompt string) (string, error) {
	return a.Stream(ctx, prompt, nil)
}

func (a *AgentBackend) Stream(ctx context.Context, prompt string, onChunk ChunkFunc) (string, error) {
	agent := agents.New("codegen").
		WithInstructions(a.instructions).
		WithModel(a.model).
		WithModelSettings(a.modelSettings())

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   a.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	events, errCh, err := runner.RunStreamedChan(ctx, agent, prompt)
	if err != nil {
		return "", fmt.Errorf("agent stream start: %w", err)
	}

	var buf strings.Builder
	for ev := range events {
		if delta, ok := textDeltaOf(ev); ok {
			buf.WriteString(delta)
			if onChunk != nil {
				onChunk(delta)
			}
		}
	}

	if streamErr := <-errCh; streamErr != nil {
		return buf.String(), fmt.Errorf("agent stream: %w", streamErr)
	}
	return buf.String(), nil
}

// modelSettings leaves max_tokens unset unless a positive limit is configured.
func (a *AgentBackend) modelSettings() modelsettings.ModelSettings {
	var settings modelsettings.ModelSettings
	if a.maxTokens > 0 {
		settings.MaxTokens = param.NewOpt(int64(a.maxTokens))
	}
	return settings
}

func textDeltaOf(ev agents.StreamEvent) (string, bool) {
	raw, ok := ev.(agents.RawResponsesStreamEvent)
	if !ok || raw.Data.Type != textDelta || raw.Data.Delta == "" {
		return "", false
	}
	return raw.Data.Delta, true
}
