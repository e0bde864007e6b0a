package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Riku4230/agenthackathon-4/internal/metrics"
)

// ErrSessionNotFound is returned by mutations that reference an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// entry guards one session's sequences with its own lock so that
// concurrent connections never contend on a shared mutex.
type entry struct {
	mu           sync.Mutex
	sess         Session
	lastActivity time.Time
}

// Store owns every Session, Requirement, TranscriptMessage and Artifact.
// Callers hold ids only; reads return copies.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	return e, ok
}

// CreateSession allocates a session. An empty meetingID is replaced by a generated one.
func (s *Store) CreateSession(meetingID string) Session {
	now := s.now()
	if meetingID == "" {
		meetingID = fmt.Sprintf("session-%d", now.UnixMilli())
	}
	e := &entry{
		sess: Session{
			ID:           uuid.NewString(),
			MeetingID:    meetingID,
			Requirements: []Requirement{},
			Transcripts:  []TranscriptMessage{},
			Artifacts:    []Artifact{},
			StartedAt:    now,
		},
		lastActivity: now,
	}

	s.mu.Lock()
	s.sessions[e.sess.ID] = e
	s.mu.Unlock()

	metrics.SessionsActive.Inc()
	slog.Info("session created", "session_id", e.sess.ID, "meeting_id", meetingID)
	return e.sess.clone()
}

// GetSession returns a snapshot of the session.
func (s *Store) GetSession(id string) (Session, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.clone(), true
}

// EndSession stamps the end time once. Unknown or already-ended sessions are ignored.
func (s *Store) EndSession(id string) {
	e, ok := s.lookup(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.EndedAt != nil {
		return
	}
	now := s.now()
	if now.Before(e.sess.StartedAt) {
		now = e.sess.StartedAt
	}
	e.sess.EndedAt = &now
	e.lastActivity = now
	metrics.SessionsActive.Dec()
	slog.Info("session ended", "session_id", id, "duration_ms", now.Sub(e.sess.StartedAt).Milliseconds())
}

// AddRequirement appends a pending requirement built from draft.
func (s *Store) AddRequirement(sessionID string, draft RequirementDraft) (Requirement, error) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return Requirement{}, fmt.Errorf("add requirement %s: %w", sessionID, ErrSessionNotFound)
	}
	now := s.now()
	req := Requirement{
		ID:            uuid.NewString(),
		ComponentType: ParseComponentType(string(draft.ComponentType)),
		Description:   draft.Description,
		Priority:      ParsePriority(string(draft.Priority)),
		Context:       draft.Context,
		Status:        StatusPending,
		CreatedAt:     now,
	}

	e.mu.Lock()
	e.sess.Requirements = append(e.sess.Requirements, req)
	e.lastActivity = now
	e.mu.Unlock()

	slog.Info("requirement added", "session_id", sessionID, "requirement_id", req.ID, "component_type", req.ComponentType)
	return req, nil
}

// UpdateRequirementStatus moves a requirement forward to pending or generating.
// It is lenient: unknown ids, backward moves and direct completion are ignored,
// since only an attached artifact may complete a requirement.
func (s *Store) UpdateRequirementStatus(sessionID, requirementID string, status Status) {
	if status == StatusCompleted {
		return
	}
	e, ok := s.lookup(sessionID)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	advance(&e.sess, requirementID, status)
	e.lastActivity = s.now()
}

func advance(sess *Session, requirementID string, status Status) bool {
	for i := range sess.Requirements {
		r := &sess.Requirements[i]
		if r.ID != requirementID {
			continue
		}
		if statusRank[status] <= statusRank[r.Status] {
			return false
		}
		r.Status = status
		return true
	}
	return false
}

// AddTranscript records a transcript fragment. A non-final fragment replaces a
// trailing non-final entry in place; a final fragment finalizes that entry (or
// appends when the tail is already final). Finalized entries are never touched again.
func (s *Store) AddTranscript(sessionID, text string, isFinal bool, speaker string) (TranscriptMessage, error) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return TranscriptMessage{}, fmt.Errorf("add transcript %s: %w", sessionID, ErrSessionNotFound)
	}
	now := s.now()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastActivity = now

	if n := len(e.sess.Transcripts); n > 0 && !e.sess.Transcripts[n-1].IsFinal {
		last := &e.sess.Transcripts[n-1]
		last.Text = text
		last.IsFinal = isFinal
		last.Timestamp = now
		if speaker != "" {
			last.Speaker = speaker
		}
		return *last, nil
	}

	msg := TranscriptMessage{
		ID:        uuid.NewString(),
		Text:      text,
		IsFinal:   isFinal,
		Timestamp: now,
		Speaker:   speaker,
	}
	e.sess.Transcripts = append(e.sess.Transcripts, msg)
	return msg, nil
}

// AddArtifact appends a completed artifact and completes every referenced
// requirement that exists in the session. Ids that do not resolve are dropped.
func (s *Store) AddArtifact(sessionID, code string, framework Framework, requirementIDs []string) (Artifact, error) {
	return s.AddArtifactWithID(sessionID, "", code, framework, requirementIDs)
}

// AddArtifactWithID is AddArtifact with a caller-chosen artifact id, so the id
// streamed to the client is the one stored. An empty id gets a fresh one.
func (s *Store) AddArtifactWithID(sessionID, artifactID, code string, framework Framework, requirementIDs []string) (Artifact, error) {
	if artifactID == "" {
		artifactID = uuid.NewString()
	}
	e, ok := s.lookup(sessionID)
	if !ok {
		return Artifact{}, fmt.Errorf("add artifact %s: %w", sessionID, ErrSessionNotFound)
	}
	now := s.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	resolved := make([]string, 0, len(requirementIDs))
	seen := make(map[string]bool, len(requirementIDs))
	for _, id := range requirementIDs {
		if seen[id] || !hasRequirement(&e.sess, id) {
			continue
		}
		seen[id] = true
		resolved = append(resolved, id)
		advance(&e.sess, id, StatusCompleted)
	}

	art := Artifact{
		ID:             artifactID,
		Code:           code,
		Framework:      framework,
		RequirementIDs: resolved,
		CreatedAt:      now,
		IsComplete:     true,
	}
	e.sess.Artifacts = append(e.sess.Artifacts, art)
	e.lastActivity = now

	slog.Info("artifact added", "session_id", sessionID, "artifact_id", art.ID, "requirements", len(resolved), "code_len", len(code))
	out := art
	out.RequirementIDs = append([]string(nil), resolved...)
	return out, nil
}

func hasRequirement(sess *Session, id string) bool {
	for _, r := range sess.Requirements {
		if r.ID == id {
			return true
		}
	}
	return false
}

// GetRequirements returns a copy of the session's requirements, empty if absent.
func (s *Store) GetRequirements(sessionID string) []Requirement {
	return s.filterRequirements(sessionID, func(Requirement) bool { return true })
}

// GetPendingRequirements returns requirements still in the pending state.
func (s *Store) GetPendingRequirements(sessionID string) []Requirement {
	return s.filterRequirements(sessionID, func(r Requirement) bool { return r.Status == StatusPending })
}

func (s *Store) filterRequirements(sessionID string, keep func(Requirement) bool) []Requirement {
	e, ok := s.lookup(sessionID)
	if !ok {
		return []Requirement{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Requirement, 0, len(e.sess.Requirements))
	for _, r := range e.sess.Requirements {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// DeleteSession removes the session unconditionally.
func (s *Store) DeleteSession(sessionID string) {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	if e.sess.EndedAt == nil {
		metrics.SessionsActive.Dec()
	}
	e.mu.Unlock()
	slog.Info("session deleted", "session_id", sessionID)
}

// Len reports how many sessions the store currently holds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictIdle deletes ended sessions whose last activity is older than ttl and
// returns their ids. Sessions still owned by a connection are never evicted.
func (s *Store) EvictIdle(now time.Time, ttl time.Duration) []string {
	s.mu.RLock()
	var stale []string
	for id, e := range s.sessions {
		e.mu.Lock()
		if e.sess.EndedAt != nil && now.Sub(e.lastActivity) > ttl {
			stale = append(stale, id)
		}
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	for _, id := range stale {
		s.DeleteSession(id)
	}
	if len(stale) > 0 {
		metrics.SessionsEvicted.Add(float64(len(stale)))
	}
	return stale
}

// RunJanitor evicts idle ended sessions every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := s.EvictIdle(s.now(), ttl); len(evicted) > 0 {
				slog.Info("evicted idle sessions", "count", len(evicted), "remaining", s.Len())
			}
		}
	}
}
