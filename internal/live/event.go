package live

import (
	"fmt"

	"github.com/Riku4230/agenthackathon-4/internal/session"
)

// Kind tags the variant carried by an Event.
type Kind int

const (
	KindConnected Kind = iota + 1
	KindDisconnected
	KindTranscript
	KindRequirement
	KindCodeGeneration
	KindCodeComplete
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindDisconnected:
		return "disconnected"
	case KindTranscript:
		return "transcript"
	case KindRequirement:
		return "requirement"
	case KindCodeGeneration:
		return "code_generation"
	case KindCodeComplete:
		return "code_complete"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Origin says what started a generation.
type Origin string

const (
	OriginTool    Origin = "tool"
	OriginRequest Origin = "request"
)

// Event is one observation from a live session. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind

	// KindTranscript
	Text    string
	IsFinal bool

	// KindRequirement
	Requirement session.RequirementDraft

	// KindCodeGeneration, KindCodeComplete, and KindError raised by a generation
	ArtifactID string
	Origin     Origin
	Chunk      string
	Code       string

	// KindError, and KindDisconnected when the upstream dropped
	Err error
}
