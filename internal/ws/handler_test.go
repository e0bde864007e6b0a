package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riku4230/agenthackathon-4/internal/generate"
	"github.com/Riku4230/agenthackathon-4/internal/live"
	"github.com/Riku4230/agenthackathon-4/internal/relay"
	"github.com/Riku4230/agenthackathon-4/internal/session"
)

type stubUpstream struct {
	in   chan live.ServerMessage
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	audio [][]byte
	texts []string
}

func newStubUpstream() *stubUpstream {
	return &stubUpstream{in: make(chan live.ServerMessage, 8), done: make(chan struct{})}
}

func (u *stubUpstream) SendAudio(_ context.Context, pcm []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.audio = append(u.audio, pcm)
	return nil
}

func (u *stubUpstream) SendText(_ context.Context, text string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.texts = append(u.texts, text)
	return nil
}

func (u *stubUpstream) SendToolResponses(context.Context, []live.ToolResponse) error { return nil }

func (u *stubUpstream) Receive() (live.ServerMessage, error) {
	select {
	case msg := <-u.in:
		return msg, nil
	case <-u.done:
		return live.ServerMessage{}, errors.New("closed")
	}
}

func (u *stubUpstream) Close() error {
	u.once.Do(func() { close(u.done) })
	return nil
}

func (u *stubUpstream) audioFrames() [][]byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([][]byte(nil), u.audio...)
}

type chunkGenerator struct {
	chunks []string
}

func (g chunkGenerator) Generate(_ context.Context, _ []session.Requirement, onChunk generate.ChunkFunc) (generate.Result, error) {
	for _, c := range g.chunks {
		onChunk(c)
	}
	return generate.Result{Code: strings.Join(g.chunks, ""), Engine: "stub"}, nil
}

func (g chunkGenerator) GenerateFromDescription(ctx context.Context, _, _ string, onChunk generate.ChunkFunc) (generate.Result, error) {
	return g.Generate(ctx, nil, onChunk)
}

type testServer struct {
	srv   *httptest.Server
	store *session.Store

	mu        sync.Mutex
	upstreams []*stubUpstream
}

func newTestServer(t *testing.T, cfg HandlerConfig) *testServer {
	t.Helper()
	ts := &testServer{store: session.NewStore()}
	dialer := live.DialerFunc(func(context.Context, live.Setup) (live.Upstream, error) {
		up := newStubUpstream()
		ts.mu.Lock()
		ts.upstreams = append(ts.upstreams, up)
		ts.mu.Unlock()
		return up, nil
	})
	cfg.Store = ts.store
	cfg.NewLive = func(logger *slog.Logger) relay.LiveSession {
		return live.New(live.Options{
			Dialer:    dialer,
			Generator: chunkGenerator{chunks: []string{"export ", "default ", "X"}},
			Logger:    logger,
		})
	}
	ts.srv = httptest.NewServer(NewHandler(cfg))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) upstream(i int) *stubUpstream {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.upstreams[i]
}

func (ts *testServer) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.url(), header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

type envelope struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// next reads messages until one named event arrives.
func next(t *testing.T, conn *websocket.Conn, event string) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var env envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event == event {
			return env
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func TestHandler_EndToEnd(t *testing.T) {
	ts := newTestServer(t, HandlerConfig{MaxConcurrent: 4, AllowedOrigin: "http://localhost:3000"})
	conn := ts.dial(t, nil)

	send(t, conn, `{"event":"session:start","data":{"meetingId":"standup"}}`)
	connected := next(t, conn, "session:connected")
	sessionID, _ := connected.Data["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	sess, ok := ts.store.GetSession(sessionID)
	require.True(t, ok)
	assert.Equal(t, "standup", sess.MeetingID)

	up := ts.upstream(0)
	up.in <- live.ServerMessage{ToolCalls: []live.ToolCall{{
		ID:   "call-1",
		Name: live.ToolExtractRequirement,
		Args: map[string]any{"component_type": "form", "description": "login form", "priority": "high"},
	}}}
	detected := next(t, conn, "requirement:detected")
	req, _ := detected.Data["requirement"].(map[string]any)
	assert.Equal(t, "form", req["componentType"])
	assert.Equal(t, "pending", req["status"])

	send(t, conn, `{"event":"generate:request","data":{}}`)
	stream := next(t, conn, "artifact:stream")
	assert.Equal(t, "export ", stream.Data["chunk"])
	update := next(t, conn, "artifact:update")
	assert.Equal(t, "export default X", update.Data["code"])
	assert.Equal(t, true, update.Data["isComplete"])
	assert.Equal(t, stream.Data["artifactId"], update.Data["artifactId"])

	require.Eventually(t, func() bool {
		reqs := ts.store.GetRequirements(sessionID)
		return len(reqs) == 1 && reqs[0].Status == session.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	frame := append([]byte("audio:stream\x00"), 1, 0, 2, 0)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	require.Eventually(t, func() bool { return len(up.audioFrames()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte{1, 0, 2, 0}, up.audioFrames()[0])

	send(t, conn, `{"event":"session:end"}`)
	require.Eventually(t, func() bool {
		s, _ := ts.store.GetSession(sessionID)
		return s.EndedAt != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_BadFrameKeepsConnection(t *testing.T) {
	ts := newTestServer(t, HandlerConfig{})
	conn := ts.dial(t, nil)

	send(t, conn, `{"event":"chat:message","data":{}}`)
	bad := next(t, conn, "error")
	assert.Equal(t, "BAD_REQUEST", bad.Data["code"])

	send(t, conn, `not json`)
	bad = next(t, conn, "error")
	assert.Equal(t, "BAD_REQUEST", bad.Data["code"])

	send(t, conn, `{"event":"chat:message","data":{"text":"hello"}}`)
	noSession := next(t, conn, "error")
	assert.Equal(t, "SESSION_ERROR", noSession.Data["code"])
}

func TestHandler_Origin(t *testing.T) {
	ts := newTestServer(t, HandlerConfig{AllowedOrigin: "http://localhost:3000"})

	ts.dial(t, http.Header{"Origin": {"http://localhost:3000"}})
	ts.dial(t, http.Header{"Origin": {"chrome-extension://abcdef"}})

	_, resp, err := websocket.DefaultDialer.Dial(ts.url(), http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandler_AtCapacity(t *testing.T) {
	ts := newTestServer(t, HandlerConfig{MaxConcurrent: 1})
	conn := ts.dial(t, nil)

	// the first connection is admitted once it can answer
	send(t, conn, `{"event":"chat:message","data":{"text":"hi"}}`)
	next(t, conn, "error")

	_, resp, err := websocket.DefaultDialer.Dial(ts.url(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
