// Package websocket streams job events to connected administrators.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

// Handler is both the websocket endpoint and the JobEventPublisher the job service writes to
type Handler struct {
	upgrader    websocket.Upgrader
	connections map[*websocketConnection]struct{}
	mu          sync.RWMutex
	logger      outbound.Logger
	closed      bool
}

type websocketConnection struct {
	conn      *websocket.Conn
	subject   string
	factoryID string
	send      chan any
	done      chan struct{}
	closeOnce sync.Once
}

// NewHandler builds the hub; allowedOrigins empty means same-origin only
func NewHandler(logger outbound.Logger, allowedOrigins []string) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || origins["*"] || origins[origin] {
					return true
				}
				return origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
		connections: make(map[*websocketConnection]struct{}),
		logger:      logger,
	}
}

// HandleConnection upgrades an already authorized request.
// factoryID limits the feed to one factory, model.AllJobs or "" streams everything.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, subject, factoryID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Error upgrading to WebSocket", "error", err)
		return
	}
	if factoryID == model.AllJobs {
		factoryID = ""
	}

	wsConn := &websocketConnection{
		conn:      conn,
		subject:   subject,
		factoryID: factoryID,
		send:      make(chan any, sendBuffer),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.connections[wsConn] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Job feed subscriber connected", "user", subject, "factory", factoryID)

	wsConn.send <- map[string]string{
		"type":    "connected",
		"factory": factoryID,
	}

	go h.writeLoop(wsConn)
	go h.readLoop(wsConn)
}

// Publish never blocks, a subscriber that cannot keep up is disconnected
func (h *Handler) Publish(event *model.JobEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.connections {
		if c.factoryID != "" && c.factoryID != event.FactoryUUID {
			continue
		}
		select {
		case c.send <- event:
		default:
			h.logger.Warn("Job feed subscriber too slow, dropping connection", "user", c.subject)
			c.close()
		}
	}
}

func (h *Handler) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Handler) writeLoop(c *websocketConnection) {
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"))
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Debug("WebSocket write failed", "user", c.subject, "error", err)
				c.close()
				return
			}
		}
	}
}

func (h *Handler) readLoop(c *websocketConnection) {
	defer func() {
		c.close()
		h.mu.Lock()
		delete(h.connections, c)
		h.mu.Unlock()
		h.logger.Info("Job feed subscriber disconnected", "user", c.subject)
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket error", "user", c.subject, "error", err)
			}
			return
		}
		h.handleClientMessage(c, messageType, data)
	}
}

func (h *Handler) handleClientMessage(c *websocketConnection, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var message struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &message); err != nil {
		h.logger.Debug("Error parsing client message", "error", err)
		return
	}

	if message.Type == "ping" {
		select {
		case c.send <- map[string]string{"type": "pong"}:
		default:
		}
	}
}

func (c *websocketConnection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Cleanup disconnects every subscriber and refuses new ones
func (h *Handler) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.connections {
		c.close()
	}
	h.logger.Info("WebSocket handler cleanup complete", "connections", len(h.connections))
}
