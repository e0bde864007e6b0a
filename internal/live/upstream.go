package live

import (
	"context"

	"google.golang.org/genai"
)

// Setup is what every upstream session is opened with.
type Setup struct {
	SystemInstruction string
	Tools             []*genai.FunctionDeclaration
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResponse acknowledges a ToolCall.
type ToolResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// ServerMessage is a provider message normalized across variants.
type ServerMessage struct {
	Parts        []string
	ToolCalls    []ToolCall
	TurnComplete bool
	// Err reports a failed turn that did not end the session.
	Err error
}

// Upstream is one open session with the model provider.
// Send methods may be called concurrently with Receive and with each other.
type Upstream interface {
	SendAudio(ctx context.Context, pcm []byte) error
	SendText(ctx context.Context, text string) error
	SendToolResponses(ctx context.Context, responses []ToolResponse) error
	// Receive blocks for the next message. Any error ends the session.
	Receive() (ServerMessage, error)
	Close() error
}

// Dialer opens upstream sessions.
type Dialer interface {
	Dial(ctx context.Context, setup Setup) (Upstream, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, setup Setup) (Upstream, error)

func (f DialerFunc) Dial(ctx context.Context, setup Setup) (Upstream, error) { return f(ctx, setup) }
