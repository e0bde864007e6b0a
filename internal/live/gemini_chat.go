package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/Riku4230/agenthackathon-4/internal/audio"
	"github.com/Riku4230/agenthackathon-4/internal/metrics"
	"github.com/Riku4230/agenthackathon-4/internal/prompts"
)

var errUpstreamClosed = errors.New("upstream closed")

// chatSession is the subset of *genai.Chat used here.
type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type ChatOptions struct {
	// FlushInterval batches buffered audio into one turn. Zero means 5s.
	FlushInterval time.Duration
	// ActivityThreshold is the RMS level below which a batch is dropped as silence.
	ActivityThreshold float64
	// PeakLevel normalizes each active batch to this fraction of full scale. Zero disables it.
	PeakLevel float64
	Logger    *slog.Logger
}

func (o ChatOptions) withDefaults() ChatOptions {
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// GeminiChatDialer emulates a live session on a turn-based chat: each user message,
// audio batch, or tool answer is one request whose function calls come back as tool calls.
type GeminiChatDialer struct {
	client *genai.Client
	model  string
	opts   ChatOptions
}

func NewGeminiChatDialer(client *genai.Client, model string, opts ChatOptions) *GeminiChatDialer {
	return &GeminiChatDialer{client: client, model: model, opts: opts.withDefaults()}
}

func (d *GeminiChatDialer) Dial(ctx context.Context, setup Setup) (Upstream, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(setup.SystemInstruction, genai.RoleUser),
		Tools:             []*genai.Tool{{FunctionDeclarations: setup.Tools}},
	}
	chat, err := d.client.Chats.Create(ctx, d.model, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("chat create %s: %w", d.model, err)
	}
	return newChatUpstream(chat, d.opts), nil
}

type chatUpstream struct {
	chat   chatSession
	opts   ChatOptions
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	queueMu sync.Mutex
	queue   [][]genai.Part
	wake    chan struct{}

	audioMu sync.Mutex
	audio   [][]int16

	// outstanding calls from the last model turn, answered together
	respMu    sync.Mutex
	pending   map[string]string // local call id → provider call id
	responses []ToolResponse

	out       chan ServerMessage
	done      chan struct{}
	closeOnce sync.Once
}

func newChatUpstream(chat chatSession, opts ChatOptions) *chatUpstream {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	u := &chatUpstream{
		chat:    chat,
		opts:    opts,
		logger:  opts.Logger.With("upstream", "chat"),
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		pending: make(map[string]string),
		out:     make(chan ServerMessage, 16),
		done:    make(chan struct{}),
	}
	go u.run()
	return u
}

// SendAudio buffers PCM until the next flush.
func (u *chatUpstream) SendAudio(_ context.Context, pcm []byte) error {
	if u.isClosed() {
		return errUpstreamClosed
	}
	samples := audio.BytesToSamples(pcm)
	u.audioMu.Lock()
	u.audio = append(u.audio, samples)
	u.audioMu.Unlock()
	return nil
}

// SendText echoes the message as a completed turn, then asks the model about it.
func (u *chatUpstream) SendText(_ context.Context, text string) error {
	if u.isClosed() {
		return errUpstreamClosed
	}
	u.deliver(ServerMessage{Parts: []string{text}, TurnComplete: true})
	u.enqueue([]genai.Part{{Text: text}})
	return nil
}

// SendToolResponses holds answers until every call of the last model turn has one.
func (u *chatUpstream) SendToolResponses(_ context.Context, responses []ToolResponse) error {
	if u.isClosed() {
		return errUpstreamClosed
	}

	u.respMu.Lock()
	for _, r := range responses {
		providerID, ok := u.pending[r.ID]
		if !ok {
			continue
		}
		delete(u.pending, r.ID)
		r.ID = providerID
		u.responses = append(u.responses, r)
	}
	var ready []ToolResponse
	if len(u.pending) == 0 && len(u.responses) > 0 {
		ready = u.responses
		u.responses = nil
	}
	u.respMu.Unlock()

	if len(ready) == 0 {
		return nil
	}
	parts := make([]genai.Part, len(ready))
	for i, r := range ready {
		parts[i] = genai.Part{FunctionResponse: &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response}}
	}
	u.enqueue(parts)
	return nil
}

func (u *chatUpstream) Receive() (ServerMessage, error) {
	select {
	case msg := <-u.out:
		return msg, nil
	case <-u.done:
		return ServerMessage{}, errUpstreamClosed
	}
}

func (u *chatUpstream) Close() error {
	u.closeOnce.Do(func() {
		u.cancel()
		close(u.done)
	})
	return nil
}

func (u *chatUpstream) isClosed() bool {
	select {
	case <-u.done:
		return true
	default:
		return false
	}
}

// enqueue never blocks so tool answers cannot deadlock against Receive.
func (u *chatUpstream) enqueue(parts []genai.Part) {
	u.queueMu.Lock()
	u.queue = append(u.queue, parts)
	u.queueMu.Unlock()
	select {
	case u.wake <- struct{}{}:
	default:
	}
}

func (u *chatUpstream) dequeue() ([]genai.Part, bool) {
	u.queueMu.Lock()
	defer u.queueMu.Unlock()
	if len(u.queue) == 0 {
		return nil, false
	}
	parts := u.queue[0]
	u.queue = u.queue[1:]
	return parts, true
}

func (u *chatUpstream) deliver(msg ServerMessage) {
	select {
	case u.out <- msg:
	case <-u.done:
	}
}

func (u *chatUpstream) run() {
	ticker := time.NewTicker(u.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-u.done:
			return
		case <-u.wake:
			for {
				parts, ok := u.dequeue()
				if !ok {
					break
				}
				u.turn(parts)
			}
		case <-ticker.C:
			u.flushAudio()
		}
	}
}

func (u *chatUpstream) flushAudio() {
	u.audioMu.Lock()
	chunks := u.audio
	u.audio = nil
	u.audioMu.Unlock()
	if len(chunks) == 0 {
		return
	}

	samples := audio.MergeChunks(chunks)
	cfg := audio.DefaultConfig()
	if !audio.DetectActivity(samples, u.opts.ActivityThreshold) {
		u.logger.Debug("audio batch silent, dropped", "seconds", audio.DurationSeconds(len(samples), cfg.SampleRate))
		return
	}
	metrics.AudioFramesActive.Add(float64(len(chunks)))
	if u.opts.PeakLevel > 0 {
		samples = audio.Normalize(samples, u.opts.PeakLevel)
	}

	wav := audio.EncodeWAV(samples, cfg)
	u.logger.Debug("audio batch sent", "seconds", audio.DurationSeconds(len(samples), cfg.SampleRate), "bytes", len(wav))
	u.turn([]genai.Part{
		{Text: prompts.AudioBatch},
		{InlineData: &genai.Blob{MIMEType: "audio/wav", Data: wav}},
	})
}

func (u *chatUpstream) turn(parts []genai.Part) {
	resp, err := u.chat.SendMessage(u.ctx, parts...)
	if err != nil {
		if u.ctx.Err() != nil {
			return
		}
		u.logger.Warn("chat turn failed", "error", err)
		u.deliver(ServerMessage{Err: fmt.Errorf("chat turn: %w", err)})
		return
	}

	if text := resp.Text(); text != "" {
		u.logger.Debug("chat reply", "text", text)
	}

	calls := resp.FunctionCalls()
	if len(calls) == 0 {
		return
	}

	msg := ServerMessage{ToolCalls: make([]ToolCall, 0, len(calls))}
	u.respMu.Lock()
	for _, fc := range calls {
		if fc == nil {
			continue
		}
		local := fc.ID
		if local == "" {
			local = uuid.NewString()
		}
		u.pending[local] = fc.ID
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: local, Name: fc.Name, Args: fc.Args})
	}
	u.respMu.Unlock()
	u.deliver(msg)
}
