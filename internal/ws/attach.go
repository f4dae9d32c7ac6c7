// Package ws exposes live terminal attachment over WebSocket. A
// client attaches to an identity's PTY session, receives output
// frames as they happen, and sends keystrokes and resize requests
// back.
package ws

import (
	"encoding/base64"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/glebobos/LambdaTerminal/internal/logging"
	"github.com/glebobos/LambdaTerminal/internal/monitoring"
	"github.com/glebobos/LambdaTerminal/internal/session"
	"github.com/glebobos/LambdaTerminal/internal/term"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Same trust model as the command endpoint
	},
}

// Message is the frame exchanged with attached clients. Data carries
// base64 because PTY bytes are not guaranteed to be valid UTF-8.
type Message struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// Handler manages WebSocket attachments to terminal sessions.
type Handler struct {
	manager *term.Manager
	store   session.Store
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

func NewHandler(manager *term.Manager, store session.Store, logger *logging.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Handler{
		manager: manager,
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// client serializes writes; the output pump and the read loop both
// write to the connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *client) sendError(text string) error {
	return c.send(Message{Type: "error", Data: text})
}

// HandleAttach upgrades the connection and bridges it to the
// identity's PTY session, creating the session on first attach.
func (h *Handler) HandleAttach(c *gin.Context) {
	identity := c.Param("identity")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	cl := &client{conn: conn}

	sess, err := h.manager.Attach(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("terminal attach failed",
			zap.String("identity", identity),
			zap.Error(err))
		cl.sendError("failed to attach terminal")
		return
	}

	cl.send(Message{Type: "system", Data: "attached " + sess.ID})

	// Replay what the transcript already holds so the attached view
	// starts where the page left off.
	if backlog, readErr := h.store.ReadOutput(c.Request.Context(), identity); readErr == nil && len(backlog) > 0 {
		cl.send(Message{
			Type: "output",
			Data: base64.StdEncoding.EncodeToString(backlog),
		})
	}

	clientID, output := sess.Subscribe()
	defer sess.Unsubscribe(clientID)

	go func() {
		for chunk := range output {
			if sendErr := cl.send(Message{
				Type: "output",
				Data: base64.StdEncoding.EncodeToString(chunk),
			}); sendErr != nil {
				return
			}
		}
		// Session ended. Tell the client and unblock its read loop.
		cl.send(Message{Type: "closed"})
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "input":
			data, decErr := base64.StdEncoding.DecodeString(msg.Data)
			if decErr != nil {
				cl.sendError("input is not valid base64")
				continue
			}
			if writeErr := h.manager.Write(identity, data); writeErr != nil {
				cl.sendError(writeErr.Error())
			}
		case "resize":
			if resizeErr := h.manager.Resize(identity, msg.Cols, msg.Rows); resizeErr != nil {
				cl.sendError(resizeErr.Error())
			}
		case "ping":
			cl.send(Message{Type: "pong"})
		default:
			cl.sendError("unknown message type")
		}
	}
}
