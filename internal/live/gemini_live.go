package live

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

const audioMIMEType = "audio/pcm;rate=16000"

// liveSession is the subset of *genai.Session used here.
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendClientContent(input genai.LiveClientContentInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// GeminiLiveDialer opens bidirectional Gemini Live sessions.
type GeminiLiveDialer struct {
	client *genai.Client
	model  string
}

func NewGeminiLiveDialer(client *genai.Client, model string) *GeminiLiveDialer {
	return &GeminiLiveDialer{client: client, model: model}
}

func (d *GeminiLiveDialer) Dial(ctx context.Context, setup Setup) (Upstream, error) {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityText},
		SystemInstruction:  genai.NewContentFromText(setup.SystemInstruction, genai.RoleUser),
		Tools:              []*genai.Tool{{FunctionDeclarations: setup.Tools}},
	}
	sess, err := d.client.Live.Connect(ctx, d.model, cfg)
	if err != nil {
		return nil, fmt.Errorf("live connect %s: %w", d.model, err)
	}
	return newLiveUpstream(sess), nil
}

// liveUpstream serializes writes; the websocket underneath allows one writer at a time.
type liveUpstream struct {
	sess    liveSession
	writeMu sync.Mutex
}

func newLiveUpstream(sess liveSession) *liveUpstream {
	return &liveUpstream{sess: sess}
}

func (u *liveUpstream) SendAudio(_ context.Context, pcm []byte) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	return u.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: audioMIMEType},
	})
}

func (u *liveUpstream) SendText(_ context.Context, text string) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	return u.sess.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
	})
}

func (u *liveUpstream) SendToolResponses(_ context.Context, responses []ToolResponse) error {
	out := make([]*genai.FunctionResponse, len(responses))
	for i, r := range responses {
		out[i] = &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response}
	}
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	return u.sess.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: out})
}

func (u *liveUpstream) Receive() (ServerMessage, error) {
	msg, err := u.sess.Receive()
	if err != nil {
		return ServerMessage{}, err
	}
	return fromLiveMessage(msg), nil
}

func (u *liveUpstream) Close() error {
	return u.sess.Close()
}

func fromLiveMessage(msg *genai.LiveServerMessage) ServerMessage {
	var out ServerMessage
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			out.Parts = textParts(sc.ModelTurn.Parts)
		}
		out.TurnComplete = sc.TurnComplete
	}
	if tc := msg.ToolCall; tc != nil {
		out.ToolCalls = toolCalls(tc.FunctionCalls)
	}
	return out
}

func textParts(parts []*genai.Part) []string {
	var out []string
	for _, p := range parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		out = append(out, p.Text)
	}
	return out
}

func toolCalls(calls []*genai.FunctionCall) []ToolCall {
	out := make([]ToolCall, 0, len(calls))
	for _, fc := range calls {
		if fc == nil {
			continue
		}
		out = append(out, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
	}
	return out
}
