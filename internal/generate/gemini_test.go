package generate

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	texts     []string
	streamErr error
	gotModel  string
	gotConfig *genai.GenerateContentConfig
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel, f.gotConfig = model, cfg
	if len(f.texts) == 0 {
		return nil, errors.New("empty")
	}
	return textResponse(f.texts[0]), nil
}

func (f *fakeModels) GenerateContentStream(_ context.Context, model string, _ []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.gotModel, f.gotConfig = model, cfg
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, t := range f.texts {
			if !yield(textResponse(t), nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield(nil, f.streamErr)
		}
	}
}

func TestGeminiBackend_Stream(t *testing.T) {
	models := &fakeModels{texts: []string{"function ", "", "Foo() ", "{}"}}
	g := &GeminiBackend{models: models, model: "gemini-2.0-flash", maxTokens: 8192}

	var chunks []string
	raw, err := g.Stream(context.Background(), "p", func(c string) { chunks = append(chunks, c) })
	require.NoError(t, err)

	assert.Equal(t, []string{"function ", "Foo() ", "{}"}, chunks)
	assert.Equal(t, "function Foo() {}", raw)
	assert.Equal(t, "gemini-2.0-flash", models.gotModel)
	assert.Equal(t, int32(8192), models.gotConfig.MaxOutputTokens)
}

func TestGeminiBackend_StreamError(t *testing.T) {
	models := &fakeModels{texts: []string{"a"}, streamErr: errors.New("reset")}
	g := &GeminiBackend{models: models, model: "m"}

	raw, err := g.Stream(context.Background(), "p", nil)
	assert.Error(t, err)
	assert.Equal(t, "a", raw)
}

func TestGeminiBackend_Complete(t *testing.T) {
	g := &GeminiBackend{models: &fakeModels{texts: []string{"```tsx\nx\n```"}}, model: "m"}
	text, err := g.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "```tsx\nx\n```", text)
}
