package trace

import "time"

// Session mirrors one relay session for telemetry only.
type Session struct {
	ID        string     `json:"id"`
	MeetingID string     `json:"meeting_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	RunCount  int        `json:"run_count,omitempty"`
}

// Run is one code generation, started by a tool call or a client request.
type Run struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	Kind             string    `json:"kind"`
	ArtifactID       string    `json:"artifact_id,omitempty"`
	RequirementCount int       `json:"requirement_count"`
	StartedAt        time.Time `json:"started_at"`
	DurationMs       float64   `json:"duration_ms,omitempty"`
	ChunkCount       int       `json:"chunk_count"`
	Output           string    `json:"output,omitempty"`
	Status           string    `json:"status"`
	Error            string    `json:"error,omitempty"`
}

// Span is a timed step inside a session, optionally attached to a run.
type Span struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	RunID      string    `json:"run_id,omitempty"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusError   = "error"
)
