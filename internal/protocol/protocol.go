package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Riku4230/agenthackathon-4/internal/session"
)

// Inbound event names.
const (
	EventSessionStart    = "session:start"
	EventAudioStream     = "audio:stream"
	EventChatMessage     = "chat:message"
	EventGenerateRequest = "generate:request"
	EventSessionEnd      = "session:end"
)

// Outbound event names.
const (
	EventSessionConnected    = "session:connected"
	EventTranscriptUpdate    = "transcript:update"
	EventRequirementDetected = "requirement:detected"
	EventArtifactStream      = "artifact:stream"
	EventArtifactUpdate      = "artifact:update"
	EventError               = "error"
	EventGeminiDisconnected  = "gemini:disconnected"
)

// Error codes sent to clients.
const (
	CodeNoRequirements  = "NO_REQUIREMENTS"
	CodeGeminiError     = "GEMINI_ERROR"
	CodeConnectionError = "CONNECTION_ERROR"
	CodeSessionError    = "SESSION_ERROR"
	CodeBadRequest      = "BAD_REQUEST"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// Inbound is one decoded client event.
type Inbound interface {
	EventName() string
}

type SessionStart struct {
	MeetingID string `json:"meetingId,omitempty"`
	// SampleRate of the audio the client will send; zero means 16000.
	SampleRate int `json:"sampleRate,omitempty"`
}

type AudioStream struct {
	Data      []byte
	Timestamp int64
}

type ChatMessage struct {
	Text string `json:"text"`
}

type GenerateRequest struct {
	RequirementIDs []string `json:"requirementIds,omitempty"`
}

type SessionEnd struct{}

func (SessionStart) EventName() string    { return EventSessionStart }
func (AudioStream) EventName() string     { return EventAudioStream }
func (ChatMessage) EventName() string     { return EventChatMessage }
func (GenerateRequest) EventName() string { return EventGenerateRequest }
func (SessionEnd) EventName() string      { return EventSessionEnd }

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeInbound parses a JSON text frame {"event": ..., "data": {...}}.
func DecodeInbound(frame []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	event := strings.TrimSpace(env.Event)
	if event == "" {
		return nil, badRequest("missing event", "event")
	}
	data := env.Data
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = []byte("{}")
	}

	switch event {
	case EventSessionStart:
		var msg SessionStart
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid session:start payload", "data")
		}
		if msg.SampleRate < 0 {
			return nil, badRequest("sampleRate must be positive", "data.sampleRate")
		}
		return msg, nil

	case EventAudioStream:
		return decodeAudio(data)

	case EventChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid chat:message payload", "data")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("text is required", "data.text")
		}
		return msg, nil

	case EventGenerateRequest:
		var msg GenerateRequest
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid generate:request payload", "data")
		}
		return msg, nil

	case EventSessionEnd:
		return SessionEnd{}, nil

	default:
		return nil, unsupported("unsupported event", event)
	}
}

func decodeAudio(data json.RawMessage) (Inbound, error) {
	var raw struct {
		Data      json.RawMessage `json:"data"`
		Timestamp int64           `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, badRequest("invalid audio:stream payload", "data")
	}
	pcm, err := decodeAudioBytes(raw.Data)
	if err != nil {
		return nil, err
	}
	return AudioStream{Data: pcm, Timestamp: raw.Timestamp}, nil
}

// decodeAudioBytes accepts a base64 string or an array of byte values.
func decodeAudioBytes(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, badRequest("audio data is required", "data.data")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, badRequest("invalid audio data string", "data.data")
		}
		pcm, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, badRequest("audio data is not valid base64", "data.data")
		}
		return pcm, nil
	case '[':
		var values []int
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, badRequest("invalid audio data array", "data.data")
		}
		pcm := make([]byte, len(values))
		for i, v := range values {
			if v < 0 || v > 255 {
				return nil, badRequest("audio data array must hold byte values", fmt.Sprintf("data.data[%d]", i))
			}
			pcm[i] = byte(v)
		}
		return pcm, nil
	default:
		return nil, badRequest("audio data must be a base64 string or byte array", "data.data")
	}
}

// DecodeBinaryFrame strips an "audio:stream\x00" tag when present. Untagged
// frames are raw audio.
func DecodeBinaryFrame(frame []byte) (Inbound, error) {
	if sep := bytes.IndexByte(frame, 0); sep > 0 && string(frame[:sep]) == EventAudioStream {
		frame = frame[sep+1:]
	}
	if len(frame) == 0 {
		return nil, badRequest("empty audio frame", "")
	}
	return AudioStream{Data: frame}, nil
}

// Outbound is one server event.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func Encode(msg Outbound) ([]byte, error) {
	data := msg.Data
	if data == nil {
		data = struct{}{}
	}
	out, err := json.Marshal(Outbound{Event: msg.Event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Event, err)
	}
	return out, nil
}

func SessionConnected(sessionID string) Outbound {
	return Outbound{Event: EventSessionConnected, Data: map[string]any{"sessionId": sessionID}}
}

func TranscriptUpdate(text string, isFinal bool) Outbound {
	return Outbound{Event: EventTranscriptUpdate, Data: map[string]any{"text": text, "isFinal": isFinal}}
}

func RequirementDetected(req session.Requirement) Outbound {
	return Outbound{Event: EventRequirementDetected, Data: map[string]any{"requirement": req}}
}

func ArtifactStream(artifactID, chunk string) Outbound {
	return Outbound{Event: EventArtifactStream, Data: map[string]any{"artifactId": artifactID, "chunk": chunk}}
}

func ArtifactUpdate(artifactID, code string) Outbound {
	return Outbound{Event: EventArtifactUpdate, Data: map[string]any{"artifactId": artifactID, "code": code, "isComplete": true}}
}

func Error(message, code string) Outbound {
	return Outbound{Event: EventError, Data: map[string]any{"message": message, "code": code}}
}

func GeminiDisconnected() Outbound {
	return Outbound{Event: EventGeminiDisconnected, Data: struct{}{}}
}
