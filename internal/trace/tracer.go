package trace

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	maxIOLen     = 500
	writeTimeout = 5 * time.Second
)

type msgKind int

const (
	kindSessionStart msgKind = iota
	kindSessionEnd
	kindRunStart
	kindRunFinish
	kindSpan
)

type traceMsg struct {
	kind msgKind
	at   time.Time
	run  Run
	span Span
}

// writer is the persistence side of the tracer; *Store implements it.
type writer interface {
	CreateSession(ctx context.Context, id, meetingID string, startedAt time.Time) error
	EndSession(ctx context.Context, id string, endedAt time.Time) error
	CreateRun(ctx context.Context, r Run) error
	FinishRun(ctx context.Context, r Run) error
	CreateSpan(ctx context.Context, sp Span) error
}

// Tracer writes one session's trace data asynchronously via a buffered channel.
// All methods are nil-safe (no-op on nil receiver). Writes that would block are dropped.
type Tracer struct {
	w         writer
	sessionID string
	meetingID string
	ch        chan traceMsg
	done      chan struct{}
}

// NewTracer starts a tracer for one session. It returns nil when store is nil.
// Must call Close when done.
func NewTracer(store *Store, sessionID, meetingID string) *Tracer {
	if store == nil {
		return nil
	}
	return newTracer(store, sessionID, meetingID)
}

func newTracer(w writer, sessionID, meetingID string) *Tracer {
	t := &Tracer{
		w:         w,
		sessionID: sessionID,
		meetingID: meetingID,
		ch:        make(chan traceMsg, 256),
		done:      make(chan struct{}),
	}
	go t.drain()
	t.send(traceMsg{kind: kindSessionStart, at: time.Now()})
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		t.handle(msg)
	}
}

func (t *Tracer) handle(m traceMsg) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch m.kind {
	case kindSessionStart:
		err = t.w.CreateSession(ctx, t.sessionID, t.meetingID, m.at)
	case kindSessionEnd:
		err = t.w.EndSession(ctx, t.sessionID, m.at)
	case kindRunStart:
		err = t.w.CreateRun(ctx, m.run)
	case kindRunFinish:
		err = t.w.FinishRun(ctx, m.run)
	case kindSpan:
		err = t.w.CreateSpan(ctx, m.span)
	}
	if err != nil {
		slog.Warn("trace write failed", "session_id", t.sessionID, "kind", m.kind, "error", err)
	}
}

func (t *Tracer) send(m traceMsg) {
	select {
	case t.ch <- m:
	default:
		slog.Warn("trace buffer full, dropping", "session_id", t.sessionID, "kind", m.kind)
	}
}

// StartRun begins a generation run and returns its ID.
func (t *Tracer) StartRun(kind, artifactID string, requirementCount int) string {
	if t == nil {
		return ""
	}
	id := uuid.NewString()
	t.send(traceMsg{kind: kindRunStart, run: Run{
		ID:               id,
		SessionID:        t.sessionID,
		Kind:             kind,
		ArtifactID:       artifactID,
		RequirementCount: requirementCount,
		StartedAt:        time.Now(),
	}})
	return id
}

// EndRun finalizes a run. A non-nil err marks it failed.
func (t *Tracer) EndRun(runID string, duration time.Duration, chunks int, output string, err error) {
	if t == nil || runID == "" {
		return
	}
	r := Run{
		ID:         runID,
		DurationMs: float64(duration.Milliseconds()),
		ChunkCount: chunks,
		Output:     truncate(output, maxIOLen),
		Status:     StatusOK,
	}
	if err != nil {
		r.Status = StatusError
		r.Error = truncate(err.Error(), maxIOLen)
	}
	t.send(traceMsg{kind: kindRunFinish, run: r})
}

// RecordSpan records a completed step. runID may be empty for session-level spans.
func (t *Tracer) RecordSpan(runID, name string, startedAt time.Time, input, output string, err error) {
	if t == nil {
		return
	}
	sp := Span{
		ID:         uuid.NewString(),
		SessionID:  t.sessionID,
		RunID:      runID,
		Name:       name,
		StartedAt:  startedAt,
		DurationMs: float64(time.Since(startedAt).Milliseconds()),
		Input:      truncate(input, maxIOLen),
		Output:     truncate(output, maxIOLen),
		Status:     StatusOK,
	}
	if err != nil {
		sp.Status = StatusError
		sp.Error = truncate(err.Error(), maxIOLen)
	}
	t.send(traceMsg{kind: kindSpan, span: sp})
}

// Close marks the session ended, drains pending writes, and stops the background goroutine.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.send(traceMsg{kind: kindSessionEnd, at: time.Now()})
	close(t.ch)
	<-t.done
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
