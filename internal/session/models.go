package session

import (
	"strings"
	"time"
)

// ComponentType tags the kind of UI a requirement asks for.
type ComponentType string

const (
	ComponentButton     ComponentType = "button"
	ComponentForm       ComponentType = "form"
	ComponentList       ComponentType = "list"
	ComponentCard       ComponentType = "card"
	ComponentModal      ComponentType = "modal"
	ComponentNavigation ComponentType = "navigation"
	ComponentDashboard  ComponentType = "dashboard"
	ComponentTable      ComponentType = "table"
	ComponentChart      ComponentType = "chart"
	ComponentHeader     ComponentType = "header"
	ComponentFooter     ComponentType = "footer"
	ComponentSidebar    ComponentType = "sidebar"
	ComponentOther      ComponentType = "other"
)

// ComponentTypes lists every accepted component tag in declaration order.
var ComponentTypes = []ComponentType{
	ComponentButton, ComponentForm, ComponentList, ComponentCard, ComponentModal,
	ComponentNavigation, ComponentDashboard, ComponentTable, ComponentChart,
	ComponentHeader, ComponentFooter, ComponentSidebar, ComponentOther,
}

// ParseComponentType maps free-form input onto the closed set; unknown values become "other".
func ParseComponentType(s string) ComponentType {
	ct := ComponentType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ComponentTypes {
		if ct == known {
			return ct
		}
	}
	return ComponentOther
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority defaults anything unrecognized (including "") to medium.
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityHigh, PriorityLow:
		return p
	default:
		return PriorityMedium
	}
}

// Status is a requirement's progress. Transitions only move forward.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
)

var statusRank = map[Status]int{
	StatusPending:    0,
	StatusGenerating: 1,
	StatusCompleted:  2,
}

// Framework is the target of generated code.
type Framework string

const (
	FrameworkReact Framework = "react"
	FrameworkHTML  Framework = "html"
)

// Session is the root aggregate for one user interaction.
type Session struct {
	ID           string              `json:"id"`
	MeetingID    string              `json:"meetingId"`
	Requirements []Requirement       `json:"requirements"`
	Transcripts  []TranscriptMessage `json:"transcripts"`
	Artifacts    []Artifact          `json:"artifacts"`
	StartedAt    time.Time           `json:"startedAt"`
	EndedAt      *time.Time          `json:"endedAt,omitempty"`
}

// Requirement is one detected unit of desired UI functionality.
type Requirement struct {
	ID            string        `json:"id"`
	ComponentType ComponentType `json:"componentType"`
	Description   string        `json:"description"`
	Priority      Priority      `json:"priority"`
	Context       string        `json:"context"`
	Status        Status        `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// RequirementDraft is a requirement before the store assigns identity and status.
type RequirementDraft struct {
	ComponentType ComponentType `json:"componentType"`
	Description   string        `json:"description"`
	Priority      Priority      `json:"priority"`
	Context       string        `json:"context"`
}

// TranscriptMessage is one utterance or response fragment.
type TranscriptMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsFinal   bool      `json:"isFinal"`
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker,omitempty"`
}

// Artifact is a completed block of generated code.
type Artifact struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Framework      Framework `json:"framework"`
	RequirementIDs []string  `json:"requirements"`
	CreatedAt      time.Time `json:"createdAt"`
	IsComplete     bool      `json:"isComplete"`
}

func (s *Session) clone() Session {
	out := *s
	out.Requirements = append([]Requirement(nil), s.Requirements...)
	out.Transcripts = append([]TranscriptMessage(nil), s.Transcripts...)
	out.Artifacts = make([]Artifact, len(s.Artifacts))
	for i, a := range s.Artifacts {
		a.RequirementIDs = append([]string(nil), a.RequirementIDs...)
		out.Artifacts[i] = a
	}
	if s.EndedAt != nil {
		ended := *s.EndedAt
		out.EndedAt = &ended
	}
	return out
}
