package generate

import (
	"context"
	"errors"
)

// ErrGenerationFailed wraps every provider or transport failure surfaced by this package.
var ErrGenerationFailed = errors.New("generation failed")

// ChunkFunc receives each streamed text fragment in arrival order.
type ChunkFunc func(chunk string)

// Backend is one provider capable of turning a prompt into text.
type Backend interface {
	// Complete makes a single blocking call and returns the full text.
	Complete(ctx context.Context, prompt string) (string, error)
	// Stream forwards fragments to onChunk as they arrive and returns the raw accumulated text.
	Stream(ctx context.Context, prompt string, onChunk ChunkFunc) (string, error)
}
