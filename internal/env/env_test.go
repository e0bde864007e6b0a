package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStr(t *testing.T) {
	t.Setenv("RELAY_TEST_STR", "value")
	assert.Equal(t, "value", Str("RELAY_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", Str("RELAY_TEST_STR_UNSET", "fallback"))
}

func TestIntAndFloat(t *testing.T) {
	t.Setenv("RELAY_TEST_INT", "42")
	t.Setenv("RELAY_TEST_BAD_INT", "forty-two")
	t.Setenv("RELAY_TEST_FLOAT", "0.75")

	assert.Equal(t, 42, Int("RELAY_TEST_INT", 1))
	assert.Equal(t, 1, Int("RELAY_TEST_BAD_INT", 1))
	assert.InDelta(t, 0.75, Float("RELAY_TEST_FLOAT", 0), 1e-9)
	assert.InDelta(t, 2.5, Float("RELAY_TEST_FLOAT_UNSET", 2.5), 1e-9)
}

func TestDuration(t *testing.T) {
	t.Setenv("RELAY_TEST_DUR", "1m30s")
	t.Setenv("RELAY_TEST_BAD_DUR", "soon")

	assert.Equal(t, 90*time.Second, Duration("RELAY_TEST_DUR", time.Second))
	assert.Equal(t, time.Second, Duration("RELAY_TEST_BAD_DUR", time.Second))
}
