package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Riku4230/agenthackathon-4/internal/audio"
	"github.com/Riku4230/agenthackathon-4/internal/live"
	"github.com/Riku4230/agenthackathon-4/internal/metrics"
	"github.com/Riku4230/agenthackathon-4/internal/protocol"
	"github.com/Riku4230/agenthackathon-4/internal/session"
	"github.com/Riku4230/agenthackathon-4/internal/trace"
)

const targetSampleRate = 16000

// Sink delivers outbound messages to the connected client.
type Sink interface {
	Send(msg protocol.Outbound) error
}

// LiveSession is the part of *live.Client the relay drives.
type LiveSession interface {
	Connect(ctx context.Context) error
	SendAudio(ctx context.Context, pcm []byte)
	SendText(ctx context.Context, text string)
	GenerateForRequirements(ctx context.Context, artifactID string, reqs []session.Requirement) error
	Disconnect()
	Events() <-chan live.Event
}

// NewLiveFunc builds a fresh live session for one relay session.
type NewLiveFunc func(logger *slog.Logger) LiveSession

type Config struct {
	Store   *session.Store
	NewLive NewLiveFunc
	Sink    Sink
	Logger  *slog.Logger
	// TraceStore enables per-session tracing when non-nil.
	TraceStore *trace.Store
}

// generation is what the relay remembers about one artifact in flight.
type generation struct {
	requirementIDs []string
	tracked        bool
	runID          string
	started        time.Time
	chunks         int
}

// Relay binds one downstream connection to at most one session and live client.
// All state is owned by the goroutine running Run.
type Relay struct {
	store   *session.Store
	newLive NewLiveFunc
	sink    Sink
	base    *slog.Logger
	traces  *trace.Store

	log        *slog.Logger
	sessionID  string
	live       LiveSession
	events     <-chan live.Event
	sampleRate int
	tracer     *trace.Tracer
	inflight   map[string]*generation
}

func New(cfg Config) *Relay {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		store:   cfg.Store,
		newLive: cfg.NewLive,
		sink:    cfg.Sink,
		base:    logger,
		traces:  cfg.TraceStore,
		log:     logger,
	}
}

// Run dispatches client events and live events until inbound closes or ctx ends,
// then releases the active session.
func (r *Relay) Run(ctx context.Context, inbound <-chan protocol.Inbound) error {
	defer r.teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			r.handleInbound(ctx, msg)

		case ev, ok := <-r.events:
			if !ok {
				r.events = nil
				continue
			}
			r.handleEvent(ev)
		}
	}
}

func (r *Relay) handleInbound(ctx context.Context, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.SessionStart:
		r.startSession(ctx, m)
	case protocol.AudioStream:
		r.forwardAudio(ctx, m)
	case protocol.ChatMessage:
		if r.live == nil {
			r.sendError("No active session", protocol.CodeSessionError)
			return
		}
		r.log.Info("chat message", "len", len(m.Text))
		r.live.SendText(ctx, m.Text)
	case protocol.GenerateRequest:
		r.requestGeneration(ctx, m)
	case protocol.SessionEnd:
		r.log.Info("session ended by client")
		r.teardown()
	default:
		r.log.Warn("unhandled inbound event", "event", msg.EventName())
	}
}

func (r *Relay) startSession(ctx context.Context, m protocol.SessionStart) {
	if r.sessionID != "" {
		r.log.Info("session restarted, releasing previous")
		r.teardown()
	}

	sess := r.store.CreateSession(m.MeetingID)
	r.sessionID = sess.ID
	r.log = r.base.With("session_id", sess.ID)
	r.sampleRate = m.SampleRate
	if r.sampleRate <= 0 {
		r.sampleRate = targetSampleRate
	}
	r.inflight = make(map[string]*generation)
	r.tracer = trace.NewTracer(r.traces, sess.ID, sess.MeetingID)

	r.live = r.newLive(r.log)
	r.events = r.live.Events()

	started := time.Now()
	err := r.live.Connect(ctx)
	r.tracer.RecordSpan("", "connect", started, sess.MeetingID, "", err)

	r.send(protocol.SessionConnected(sess.ID))
	r.log.Info("session started", "meeting_id", sess.MeetingID, "sample_rate", r.sampleRate)

	if err != nil {
		r.log.Error("live connect failed", "error", err)
		r.sendError(err.Error(), protocol.CodeConnectionError)
	}
}

func (r *Relay) forwardAudio(ctx context.Context, m protocol.AudioStream) {
	metrics.AudioFrames.Inc()
	if r.live == nil {
		metrics.AudioFramesDropped.Inc()
		return
	}
	pcm := m.Data
	if r.sampleRate != targetSampleRate {
		pcm = audio.ResamplePCM16(pcm, r.sampleRate, targetSampleRate)
	}
	r.live.SendAudio(ctx, pcm)
}

// requestGeneration resolves the target set, starts generation, and only then
// marks the set generating and remembers which requirements the artifact is for.
func (r *Relay) requestGeneration(ctx context.Context, m protocol.GenerateRequest) {
	if r.live == nil {
		r.sendError("No active session", protocol.CodeSessionError)
		return
	}

	reqs := r.resolve(m.RequirementIDs)
	if len(reqs) == 0 {
		r.sendError("No requirements to generate", protocol.CodeNoRequirements)
		return
	}

	ids := make([]string, len(reqs))
	for i, req := range reqs {
		ids[i] = req.ID
	}

	artifactID := uuid.NewString()
	gen := &generation{requirementIDs: ids, tracked: true, started: time.Now()}
	gen.runID = r.tracer.StartRun(string(live.OriginRequest), artifactID, len(ids))

	r.log.Info("generation requested", "artifact_id", artifactID, "requirements", len(ids))
	if err := r.live.GenerateForRequirements(ctx, artifactID, reqs); err != nil {
		r.tracer.EndRun(gen.runID, time.Since(gen.started), 0, "", err)
		r.log.Error("generation not started", "artifact_id", artifactID, "error", err)
		r.sendError(err.Error(), protocol.CodeGeminiError)
		return
	}

	// completion events are handled on this goroutine, after this returns
	r.inflight[artifactID] = gen
	for _, id := range ids {
		r.store.UpdateRequirementStatus(r.sessionID, id, session.StatusGenerating)
	}
}

func (r *Relay) resolve(ids []string) []session.Requirement {
	if len(ids) == 0 {
		return r.store.GetPendingRequirements(r.sessionID)
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []session.Requirement
	for _, req := range r.store.GetRequirements(r.sessionID) {
		if want[req.ID] {
			out = append(out, req)
		}
	}
	return out
}

func (r *Relay) handleEvent(ev live.Event) {
	if r.sessionID == "" {
		return
	}

	switch ev.Kind {
	case live.KindConnected:
		r.log.Debug("live session connected")

	case live.KindDisconnected:
		r.log.Warn("live session dropped", "error", ev.Err)
		r.send(protocol.GeminiDisconnected())

	case live.KindTranscript:
		if _, err := r.store.AddTranscript(r.sessionID, ev.Text, ev.IsFinal, ""); err != nil {
			r.log.Error("store transcript", "error", err)
		}
		r.send(protocol.TranscriptUpdate(ev.Text, ev.IsFinal))

	case live.KindRequirement:
		req, err := r.store.AddRequirement(r.sessionID, ev.Requirement)
		if err != nil {
			r.log.Error("store requirement", "error", err)
			r.sendError(err.Error(), protocol.CodeSessionError)
			return
		}
		r.log.Info("requirement detected", "requirement_id", req.ID, "component_type", req.ComponentType)
		r.send(protocol.RequirementDetected(req))

	case live.KindCodeGeneration:
		gen := r.generationFor(ev)
		gen.chunks++
		r.send(protocol.ArtifactStream(ev.ArtifactID, ev.Chunk))

	case live.KindCodeComplete:
		r.completeArtifact(ev)

	case live.KindError:
		if gen, ok := r.inflight[ev.ArtifactID]; ok && ev.ArtifactID != "" {
			delete(r.inflight, ev.ArtifactID)
			r.tracer.EndRun(gen.runID, time.Since(gen.started), gen.chunks, "", ev.Err)
		}
		msg := "upstream error"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		r.sendError(msg, protocol.CodeGeminiError)
	}
}

// generationFor returns the in-flight record for an artifact, creating an
// untracked one for generations the model started on its own.
func (r *Relay) generationFor(ev live.Event) *generation {
	if gen, ok := r.inflight[ev.ArtifactID]; ok {
		return gen
	}
	gen := &generation{started: time.Now()}
	gen.runID = r.tracer.StartRun(string(ev.Origin), ev.ArtifactID, 0)
	r.inflight[ev.ArtifactID] = gen
	return gen
}

func (r *Relay) completeArtifact(ev live.Event) {
	gen := r.generationFor(ev)
	delete(r.inflight, ev.ArtifactID)

	ids := gen.requirementIDs
	if !gen.tracked {
		for _, req := range r.store.GetPendingRequirements(r.sessionID) {
			ids = append(ids, req.ID)
		}
	}

	art, err := r.store.AddArtifactWithID(r.sessionID, ev.ArtifactID, ev.Code, session.FrameworkReact, ids)
	if err != nil {
		r.log.Error("store artifact", "artifact_id", ev.ArtifactID, "error", err)
	} else {
		r.log.Info("artifact complete", "artifact_id", ev.ArtifactID, "stored_id", art.ID, "requirements", len(art.RequirementIDs))
	}
	r.tracer.EndRun(gen.runID, time.Since(gen.started), gen.chunks, ev.Code, err)

	r.send(protocol.ArtifactUpdate(ev.ArtifactID, ev.Code))
}

// teardown releases the active triple. Events still queued from its live
// client are never read again.
func (r *Relay) teardown() {
	if r.live != nil {
		r.live.Disconnect()
	}
	if r.sessionID != "" {
		r.store.EndSession(r.sessionID)
		r.log.Info("session released")
	}
	r.tracer.Close()

	r.live = nil
	r.events = nil
	r.sessionID = ""
	r.tracer = nil
	r.inflight = nil
	r.log = r.base
}

func (r *Relay) send(msg protocol.Outbound) {
	if err := r.sink.Send(msg); err != nil {
		r.log.Debug("send failed", "event", msg.Event, "error", err)
	}
}

func (r *Relay) sendError(message, code string) {
	metrics.DownstreamErrors.WithLabelValues(code).Inc()
	r.send(protocol.Error(message, code))
}
