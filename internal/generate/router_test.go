package generate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	r := NewRouter[string]("gemini")
	r.Register("gemini", "g")
	r.Register("openai", "o")

	got, engine, err := r.Route("openai")
	require.NoError(t, err)
	assert.Equal(t, "o", got)
	assert.Equal(t, "openai", engine)

	got, engine, err = r.Route("mystery")
	require.NoError(t, err)
	assert.Equal(t, "g", got)
	assert.Equal(t, "gemini", engine)

	assert.True(t, r.Has("openai"))
	assert.False(t, r.Has("mystery"))
	assert.Equal(t, []string{"gemini", "openai"}, r.Engines())
}

func TestRouter_NoFallback(t *testing.T) {
	r := NewRouter[string]("gemini")
	_, _, err := r.Route("gemini")
	assert.Error(t, err)
}
