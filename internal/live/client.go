package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Riku4230/agenthackathon-4/internal/generate"
	"github.com/Riku4230/agenthackathon-4/internal/metrics"
	"github.com/Riku4230/agenthackathon-4/internal/session"
)

var (
	ErrConnectionFailed = errors.New("upstream connection failed")
	ErrNotConnected     = errors.New("live client not connected")
)

// State is the client's position in Disconnected → Connecting → Connected → Disconnected.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Generator is the code generation capability used by tool calls and relay requests.
type Generator interface {
	Generate(ctx context.Context, reqs []session.Requirement, onChunk generate.ChunkFunc) (generate.Result, error)
	GenerateFromDescription(ctx context.Context, componentName, summary string, onChunk generate.ChunkFunc) (generate.Result, error)
}

type Options struct {
	Dialer    Dialer
	Generator Generator
	Logger    *slog.Logger
	// Setup overrides DefaultSetup when non-nil.
	Setup *Setup
	// EventBuffer sizes the events channel. Zero means 64.
	EventBuffer int
}

// Client owns at most one upstream session. It is not reusable after Disconnect.
type Client struct {
	dialer Dialer
	gen    Generator
	logger *slog.Logger
	setup  Setup

	mu       sync.Mutex
	state    State
	closed   bool // set by Disconnect only
	upstream Upstream
	bgCtx    context.Context

	events       chan Event
	done         chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	audioChunks atomic.Int64

	// owned by the receive loop
	transcript strings.Builder
}

func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	setup := DefaultSetup()
	if opts.Setup != nil {
		setup = *opts.Setup
	}
	buf := opts.EventBuffer
	if buf <= 0 {
		buf = 64
	}
	return &Client{
		dialer: opts.Dialer,
		gen:    opts.Generator,
		logger: logger,
		setup:  setup,
		bgCtx:  context.Background(),
		events: make(chan Event, buf),
		done:   make(chan struct{}),
	}
}

// Events delivers everything the session observes, in production order per source.
// The channel is closed after Disconnect once all in-flight work has stopped emitting.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.state = s
	metrics.UpstreamTransitions.WithLabelValues(s.String()).Inc()
}

// Connect opens the upstream session. On failure the client stays Disconnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect: already %s", c.state)
	}
	c.setState(StateConnecting)
	c.mu.Unlock()

	up, err := c.dialer.Dial(ctx, c.setup)

	c.mu.Lock()
	if err != nil {
		c.setState(StateDisconnected)
		c.mu.Unlock()
		c.logger.Error("live connect failed", "error", err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if c.closed {
		c.mu.Unlock()
		_ = up.Close()
		return ErrNotConnected
	}
	c.upstream = up
	c.bgCtx = context.WithoutCancel(ctx)
	c.setState(StateConnected)
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("live connected")
	c.emit(Event{Kind: KindConnected})
	go c.receiveLoop(up)
	return nil
}

// SendAudio forwards PCM to the upstream. Dropped when not connected.
func (c *Client) SendAudio(ctx context.Context, pcm []byte) {
	up := c.connected()
	if up == nil {
		metrics.AudioFramesDropped.Inc()
		c.logger.Debug("audio dropped, not connected", "bytes", len(pcm))
		return
	}
	n := c.audioChunks.Add(1)
	if n%50 == 0 {
		c.logger.Debug("audio forwarded", "chunks", n, "bytes", len(pcm))
	}
	if err := up.SendAudio(ctx, pcm); err != nil {
		c.logger.Warn("send audio failed", "error", err)
	}
}

// SendText forwards a user message. Dropped when not connected.
func (c *Client) SendText(ctx context.Context, text string) {
	up := c.connected()
	if up == nil {
		c.logger.Debug("text dropped, not connected")
		return
	}
	if err := up.SendText(ctx, text); err != nil {
		c.logger.Warn("send text failed", "error", err)
	}
}

func (c *Client) connected() Upstream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return nil
	}
	return c.upstream
}

// Disconnect closes the upstream session. It never fails and may be called repeatedly.
// In-flight generations run to completion but their events are discarded.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	if c.state != StateDisconnected {
		c.setState(StateDisconnected)
	}
	c.mu.Unlock()
	c.shutdown()
}

func (c *Client) shutdown() {
	c.shutdownOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		up := c.upstream
		c.mu.Unlock()
		if up != nil {
			if err := up.Close(); err != nil {
				c.logger.Debug("upstream close", "error", err)
			}
		}

		go func() {
			c.wg.Wait()
			close(c.events)
		}()
	})
}

// terminate handles an upstream that went away on its own. The client stays
// open so relay-requested generations keep running until Disconnect.
func (c *Client) terminate(up Upstream, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.setState(StateDisconnected)
	if c.upstream == up {
		c.upstream = nil
	}
	c.mu.Unlock()

	if cerr := up.Close(); cerr != nil {
		c.logger.Debug("upstream close", "error", cerr)
	}
	c.logger.Warn("live session closed by upstream", "error", err)
	c.emit(Event{Kind: KindDisconnected, Err: err})
}

func (c *Client) emit(ev Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// spawn runs fn as tracked background work unless Disconnect was called.
func (c *Client) spawn(fn func()) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

func (c *Client) receiveLoop(up Upstream) {
	defer c.wg.Done()
	for {
		msg, err := up.Receive()
		if err != nil {
			c.terminate(up, err)
			return
		}
		c.handleMessage(up, msg)
	}
}

func (c *Client) handleMessage(up Upstream, msg ServerMessage) {
	if msg.Err != nil {
		c.emit(Event{Kind: KindError, Err: msg.Err})
	}

	for _, text := range msg.Parts {
		if text == "" {
			continue
		}
		c.transcript.WriteString(text)
		metrics.Transcripts.WithLabelValues("false").Inc()
		c.emit(Event{Kind: KindTranscript, Text: text})
	}

	if msg.TurnComplete && c.transcript.Len() > 0 {
		full := c.transcript.String()
		c.transcript.Reset()
		metrics.Transcripts.WithLabelValues("true").Inc()
		c.emit(Event{Kind: KindTranscript, Text: full, IsFinal: true})
	}

	for _, call := range msg.ToolCalls {
		c.handleToolCall(up, call)
	}
}

// handleToolCall acknowledges every call. Requirement extraction is answered
// inline so requirement events keep upstream order; generation runs in the background.
func (c *Client) handleToolCall(up Upstream, call ToolCall) {
	log := c.logger.With("tool", call.Name, "call_id", call.ID)

	switch call.Name {
	case ToolExtractRequirement:
		draft, err := requirementFromArgs(call.Args)
		if err != nil {
			log.Warn("rejected requirement", "error", err)
			c.ack(up, call, failure(err.Error()))
			return
		}
		metrics.RequirementsDetected.WithLabelValues(string(draft.ComponentType)).Inc()
		log.Info("requirement extracted", "component_type", draft.ComponentType, "priority", draft.Priority)
		c.emit(Event{Kind: KindRequirement, Requirement: draft})
		c.ack(up, call, map[string]any{"success": true, "message": "Requirement extracted"})

	case ToolGenerateCode:
		name := stringArg(call.Args, "component_name")
		if name == "" {
			name = defaultComponentName
		}
		summary := stringArg(call.Args, "requirements_summary")
		artifactID := uuid.NewString()

		started := c.spawn(func() {
			err := c.runGeneration(c.bgCtx, artifactID, OriginTool, func(ctx context.Context, onChunk generate.ChunkFunc) (generate.Result, error) {
				return c.gen.GenerateFromDescription(ctx, name, summary, onChunk)
			})
			if err != nil {
				c.ack(up, call, failure(err.Error()))
				return
			}
			c.ack(up, call, map[string]any{"success": true, "artifactId": artifactID, "message": "Code generated"})
		})
		if !started {
			c.ack(up, call, failure(ErrNotConnected.Error()))
		}

	default:
		log.Warn("unknown function")
		c.ack(up, call, failure("Unknown function"))
	}
}

func failure(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

func (c *Client) ack(up Upstream, call ToolCall, response map[string]any) {
	result := "ok"
	if ok, _ := response["success"].(bool); !ok {
		result = "error"
	}
	metrics.ToolCalls.WithLabelValues(call.Name, result).Inc()

	err := up.SendToolResponses(c.bgCtx, []ToolResponse{{ID: call.ID, Name: call.Name, Response: response}})
	if err != nil {
		c.logger.Warn("tool response failed", "tool", call.Name, "error", err)
	}
}

func requirementFromArgs(args map[string]any) (session.RequirementDraft, error) {
	description := strings.TrimSpace(stringArg(args, "description"))
	if description == "" {
		return session.RequirementDraft{}, errors.New("description is required")
	}
	return session.RequirementDraft{
		ComponentType: session.ParseComponentType(stringArg(args, "component_type")),
		Description:   description,
		Priority:      session.ParsePriority(stringArg(args, "priority")),
		Context:       stringArg(args, "context"),
	}, nil
}

type generateFunc func(ctx context.Context, onChunk generate.ChunkFunc) (generate.Result, error)

// runGeneration streams one artifact as CodeGeneration events followed by
// exactly one CodeComplete, or an Error on failure.
func (c *Client) runGeneration(ctx context.Context, artifactID string, origin Origin, fn generateFunc) error {
	log := c.logger.With("artifact_id", artifactID, "origin", origin)
	log.Info("generation started")

	res, err := fn(ctx, func(chunk string) {
		c.emit(Event{Kind: KindCodeGeneration, ArtifactID: artifactID, Origin: origin, Chunk: chunk})
	})
	if err != nil {
		log.Error("generation failed", "error", err)
		c.emit(Event{Kind: KindError, ArtifactID: artifactID, Origin: origin, Err: err})
		return err
	}

	c.emit(Event{Kind: KindCodeComplete, ArtifactID: artifactID, Origin: origin, Code: res.Code})
	return nil
}

// GenerateForRequirements starts a relay-requested generation for artifactID in the
// background. It works whether or not the upstream is connected, including after
// the upstream dropped, until Disconnect.
func (c *Client) GenerateForRequirements(ctx context.Context, artifactID string, reqs []session.Requirement) error {
	if len(reqs) == 0 {
		return nil
	}
	reqs = append([]session.Requirement(nil), reqs...)
	genCtx := context.WithoutCancel(ctx)

	started := c.spawn(func() {
		_ = c.runGeneration(genCtx, artifactID, OriginRequest, func(ctx context.Context, onChunk generate.ChunkFunc) (generate.Result, error) {
			return c.gen.Generate(ctx, reqs, onChunk)
		})
	})
	if !started {
		return ErrNotConnected
	}
	return nil
}
