// Package ingest accepts webcam frames pushed by candidate browsers over
// WebSocket and hands them to the owning session's frame buffer.
package ingest

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/monitor"
	"github.com/teslashibe/go-proctor/pkg/protocol"
)

// Error codes sent back to the client
const (
	CodeUnknownSession = "unknown_session"
	CodeBadMessage     = "bad_message"
	CodeBadFrame       = "bad_frame"
	CodeUnsupported    = "unsupported"
)

// Sink receives decoded JPEG frames for one session
type Sink interface {
	Publish(jpeg []byte, capturedAt time.Time) monitor.FrameSample
}

// Resolver maps a session ID to its frame sink
type Resolver interface {
	Sink(sessionID string) (Sink, bool)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(sessionID string) (Sink, bool)

// Sink implements Resolver
func (f ResolverFunc) Sink(sessionID string) (Sink, bool) { return f(sessionID) }

// conn is one connected candidate
type conn struct {
	id        string
	sessionID string
	ws        *websocket.Conn
	connected time.Time

	mu       sync.Mutex
	lastSeen time.Time
	frames   uint64
}

func (c *conn) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Handler serves the frame ingest endpoint
type Handler struct {
	resolver Resolver
	logger   *slog.Logger

	mu    sync.RWMutex
	conns map[string]*conn

	// Stats
	messagesReceived atomic.Uint64
	framesAccepted   atomic.Uint64
	framesRejected   atomic.Uint64
}

// NewHandler creates an ingest handler resolving sessions through r
func NewHandler(r Resolver) *Handler {
	return &Handler{
		resolver: r,
		logger:   log.With("component", "ingest"),
		conns:    make(map[string]*conn),
	}
}

// RegisterRoutes registers the WebSocket route on a Fiber app
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/ingest", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/ingest/:id", websocket.New(h.handle))
}

func (h *Handler) handle(ws *websocket.Conn) {
	c := &conn{
		id:        uuid.NewString(),
		sessionID: ws.Params("id"),
		ws:        ws,
		connected: time.Now(),
		lastSeen:  time.Now(),
	}
	logger := h.logger.With("session_id", c.sessionID, "client", c.id)

	sink, ok := h.resolver.Sink(c.sessionID)
	if !ok {
		logger.Warn("ingest rejected, unknown session")
		h.reply(c, CodeUnknownSession, "session not found or not running")
		return
	}

	h.mu.Lock()
	h.conns[c.id] = c
	count := len(h.conns)
	h.mu.Unlock()
	logger.Info("ingest connected", "total", count)

	defer func() {
		h.mu.Lock()
		delete(h.conns, c.id)
		count := len(h.conns)
		h.mu.Unlock()
		logger.Info("ingest disconnected", "frames", c.frameCount(), "remaining", count)
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			logger.Debug("ingest read ended", "error", err)
			return
		}
		h.messagesReceived.Add(1)
		h.handleMessage(c, sink, logger, data)
	}
}

func (h *Handler) handleMessage(c *conn, sink Sink, logger *slog.Logger, data []byte) {
	now := time.Now()
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.reply(c, CodeBadMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		frame, err := msg.GetFrameData()
		if err != nil {
			h.reject(c, err)
			return
		}
		jpeg, err := frame.DecodeFrameData()
		if err != nil {
			h.reject(c, err)
			return
		}
		// Server receive time orders frames; client clocks are untrusted.
		sample := sink.Publish(jpeg, now)
		h.framesAccepted.Add(1)
		c.mu.Lock()
		c.frames++
		c.mu.Unlock()
		logger.Debug("frame", "seq", sample.Seq, "bytes", len(jpeg))

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage("", msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			if err := c.send(pong); err != nil {
				logger.Debug("pong failed", "error", err)
			}
		}

	default:
		h.reply(c, CodeUnsupported, "unsupported message type "+string(msg.Type))
	}
}

func (h *Handler) reject(c *conn, err error) {
	h.framesRejected.Add(1)
	h.reply(c, CodeBadFrame, err.Error())
}

func (h *Handler) reply(c *conn, code, text string) {
	msg, err := protocol.NewErrorMessage(code, text)
	if err != nil {
		return
	}
	if err := c.send(msg); err != nil {
		h.logger.Debug("error reply failed", "client", c.id, "error", err)
	}
}

func (c *conn) frameCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// ClientCount returns the number of connected candidates
func (h *Handler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Stats contains ingest statistics
type Stats struct {
	ClientCount      int    `json:"client_count"`
	MessagesReceived uint64 `json:"messages_received"`
	FramesAccepted   uint64 `json:"frames_accepted"`
	FramesRejected   uint64 `json:"frames_rejected"`
}

// GetStats returns ingest statistics
func (h *Handler) GetStats() Stats {
	return Stats{
		ClientCount:      h.ClientCount(),
		MessagesReceived: h.messagesReceived.Load(),
		FramesAccepted:   h.framesAccepted.Load(),
		FramesRejected:   h.framesRejected.Load(),
	}
}

// ClientInfo describes a connected candidate
type ClientInfo struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Frames    uint64    `json:"frames"`
}

// Clients returns info about connected candidates, optionally filtered by
// session
func (h *Handler) Clients(sessionID string) []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(h.conns))
	for _, c := range h.conns {
		if sessionID != "" && c.sessionID != sessionID {
			continue
		}
		c.mu.Lock()
		infos = append(infos, ClientInfo{
			ID:        c.id,
			SessionID: c.sessionID,
			Connected: c.connected,
			LastSeen:  c.lastSeen,
			Frames:    c.frames,
		})
		c.mu.Unlock()
	}
	return infos
}
