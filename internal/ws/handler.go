package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Riku4230/agenthackathon-4/internal/metrics"
	"github.com/Riku4230/agenthackathon-4/internal/protocol"
	"github.com/Riku4230/agenthackathon-4/internal/relay"
	"github.com/Riku4230/agenthackathon-4/internal/session"
	"github.com/Riku4230/agenthackathon-4/internal/trace"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 20
	inboundBuffer  = 64
)

// HandlerConfig holds what every connection shares.
type HandlerConfig struct {
	Store         *session.Store
	NewLive       relay.NewLiveFunc
	TraceStore    *trace.Store
	MaxConcurrent int
	// AllowedOrigin is the frontend origin. Browser extensions are always allowed,
	// as are clients that send no Origin header.
	AllowedOrigin string
}

// Handler manages downstream websocket connections with admission control.
type Handler struct {
	cfg      HandlerConfig
	sem      chan struct{}
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler with shared dependencies and a concurrency limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	h := &Handler{
		cfg: cfg,
		sem: make(chan struct{}, maxConc),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	switch {
	case origin == "":
		return true
	case strings.HasPrefix(origin, "chrome-extension://"):
		return true
	case h.cfg.AllowedOrigin == "*":
		return true
	default:
		return origin == h.cfg.AllowedOrigin
	}
}

// ServeHTTP upgrades the connection and relays it until either side closes.
// Returns 503 if at max concurrent connection capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		metrics.ConnectionsRejected.Inc()
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	if !h.checkOrigin(r) {
		metrics.ConnectionsRejected.Inc()
		slog.Warn("websocket origin rejected", "origin", r.Header.Get("Origin"))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.ConnectionsActive.Inc()
	metrics.ConnectionsTotal.Inc()
	defer metrics.ConnectionsActive.Dec()

	h.runConnection(r.Context(), conn)
}

func (h *Handler) runConnection(parent context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	logger := slog.With("remote", conn.RemoteAddr().String())
	logger.Info("client connected")

	sink := newConnSink(conn)
	inbound := make(chan protocol.Inbound, inboundBuffer)

	go readPump(ctx, conn, inbound, sink, logger)
	go pingLoop(ctx, conn)

	rel := relay.New(relay.Config{
		Store:      h.cfg.Store,
		NewLive:    h.cfg.NewLive,
		Sink:       sink,
		Logger:     logger,
		TraceStore: h.cfg.TraceStore,
	})
	if err := rel.Run(ctx, inbound); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("relay stopped", "error", err)
	}

	logger.Info("client disconnected")
}

// readPump decodes frames into inbound events until the connection fails.
// Undecodable frames are answered with BAD_REQUEST and the connection stays open.
func readPump(ctx context.Context, conn *websocket.Conn, inbound chan<- protocol.Inbound, sink *connSink, logger *slog.Logger) {
	defer close(inbound)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("connection closed", "error", err)
			}
			return
		}

		msg, err := decodeFrame(msgType, data)
		if err != nil {
			logger.Warn("bad inbound frame", "error", err)
			metrics.DownstreamErrors.WithLabelValues(protocol.CodeBadRequest).Inc()
			sink.Send(protocol.Error(err.Error(), protocol.CodeBadRequest))
			continue
		}

		select {
		case inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func decodeFrame(msgType int, data []byte) (protocol.Inbound, error) {
	if msgType == websocket.BinaryMessage {
		return protocol.DecodeBinaryFrame(data)
	}
	return protocol.DecodeInbound(data)
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// connSink serializes writes; gorilla allows one concurrent writer.
type connSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newConnSink(conn *websocket.Conn) *connSink {
	return &connSink{conn: conn}
}

func (s *connSink) Send(msg protocol.Outbound) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}
