package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riku4230/agenthackathon-4/internal/session"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Inbound
	}{
		{"session start empty", `{"event":"session:start","data":{}}`, SessionStart{}},
		{"session start no data", `{"event":"session:start"}`, SessionStart{}},
		{"session start", `{"event":"session:start","data":{"meetingId":"abc-defg-hij","sampleRate":48000}}`, SessionStart{MeetingID: "abc-defg-hij", SampleRate: 48000}},
		{"audio base64", `{"event":"audio:stream","data":{"data":"AQID","timestamp":17}}`, AudioStream{Data: []byte{1, 2, 3}, Timestamp: 17}},
		{"audio array", `{"event":"audio:stream","data":{"data":[1,2,255]}}`, AudioStream{Data: []byte{1, 2, 255}}},
		{"chat", `{"event":"chat:message","data":{"text":"add a login button"}}`, ChatMessage{Text: "add a login button"}},
		{"generate all", `{"event":"generate:request","data":{}}`, GenerateRequest{}},
		{"generate ids", `{"event":"generate:request","data":{"requirementIds":["a","b"]}}`, GenerateRequest{RequirementIDs: []string{"a", "b"}}},
		{"end", `{"event":"session:end","data":{}}`, SessionEnd{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.EventName(), got.EventName())
		})
	}
}

func TestDecodeInbound_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		code  string
		param string
	}{
		{"not json", `nope`, "bad_request", ""},
		{"no event", `{"data":{}}`, "bad_request", "event"},
		{"unknown event", `{"event":"artifact:delete","data":{}}`, "unsupported", "artifact:delete"},
		{"empty chat", `{"event":"chat:message","data":{"text":"  "}}`, "bad_request", "data.text"},
		{"bad base64", `{"event":"audio:stream","data":{"data":"!!"}}`, "bad_request", "data.data"},
		{"audio out of range", `{"event":"audio:stream","data":{"data":[1,300]}}`, "bad_request", "data.data[1]"},
		{"audio missing", `{"event":"audio:stream","data":{}}`, "bad_request", "data.data"},
		{"negative rate", `{"event":"session:start","data":{"sampleRate":-1}}`, "bad_request", "data.sampleRate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tt.frame))
			var decErr *DecodeError
			require.True(t, errors.As(err, &decErr), "err = %v", err)
			assert.Equal(t, tt.code, decErr.Code)
			assert.Equal(t, tt.param, decErr.Param)
		})
	}
}

func TestDecodeBinaryFrame(t *testing.T) {
	tagged := append([]byte("audio:stream\x00"), 9, 8, 7)
	got, err := DecodeBinaryFrame(tagged)
	require.NoError(t, err)
	assert.Equal(t, AudioStream{Data: []byte{9, 8, 7}}, got)

	got, err = DecodeBinaryFrame([]byte{0, 1, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, AudioStream{Data: []byte{0, 1, 0, 2}}, got, "untagged frames are raw pcm")

	_, err = DecodeBinaryFrame([]byte("audio:stream\x00"))
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	req := session.Requirement{ID: "r1", ComponentType: session.ComponentForm, Description: "signup", Priority: session.PriorityHigh, Status: session.StatusPending}

	cases := []struct {
		msg  Outbound
		want string
	}{
		{SessionConnected("s1"), `{"event":"session:connected","data":{"sessionId":"s1"}}`},
		{TranscriptUpdate("hi", true), `{"event":"transcript:update","data":{"isFinal":true,"text":"hi"}}`},
		{ArtifactStream("a", "x"), `{"event":"artifact:stream","data":{"artifactId":"a","chunk":"x"}}`},
		{ArtifactUpdate("a", "c"), `{"event":"artifact:update","data":{"artifactId":"a","code":"c","isComplete":true}}`},
		{Error("No requirements to generate", CodeNoRequirements), `{"event":"error","data":{"code":"NO_REQUIREMENTS","message":"No requirements to generate"}}`},
		{GeminiDisconnected(), `{"event":"gemini:disconnected","data":{}}`},
	}
	for _, tc := range cases {
		got, err := Encode(tc.msg)
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(got))
	}

	got, err := Encode(RequirementDetected(req))
	require.NoError(t, err)
	var decoded struct {
		Event string `json:"event"`
		Data  struct {
			Requirement session.Requirement `json:"requirement"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got, &decoded))
	assert.Equal(t, EventRequirementDetected, decoded.Event)
	assert.Equal(t, req.ID, decoded.Data.Requirement.ID)
	assert.Equal(t, session.StatusPending, decoded.Data.Requirement.Status)
}
