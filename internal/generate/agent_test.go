package generate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgentBackend_ModelSettings(t *testing.T) {
	limited := NewAgentBackend(nil, "gpt-4o-mini", 8192).modelSettings()
	assert.True(t, limited.MaxTokens.Valid())
	assert.Equal(t, int64(8192), limited.MaxTokens.Value)

	unlimited := NewAgentBackend(nil, "gpt-4o-mini", 0).modelSettings()
	assert.False(t, unlimited.MaxTokens.Valid())
}
