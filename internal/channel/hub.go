// AngelaMos | 2026
// hub.go

package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/whisperme/whisper-api/internal/config"
)

const (
	writeWait        = 10 * time.Second
	maxMessageSize   = 64 * 1024
	sendBuffer       = 32
	lifecycleTimeout = 10 * time.Second
)

// Message types exchanged on the presence socket.
const (
	TypeSignal     = "signal"
	TypeConnected  = "connected"
	TypeHeartbeat  = "heartbeat"
	TypeLeave      = "leave"
	TypePeerJoined = "peer_joined"
	TypePeerLeft   = "peer_left"
	TypeEnded      = "ended"
	TypeError      = "error"
)

// Lifecycle is the slice of call session management the hub drives.
type Lifecycle interface {
	Authorize(ctx context.Context, sessionID, userID string) (peerID string, err error)
	MarkConnected(ctx context.Context, sessionID, userID string) error
	Heartbeat(ctx context.Context, sessionID, userID string) error
	Leave(ctx context.Context, sessionID, userID string) error
}

type Message struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub keeps at most one presence socket per participant per session and
// relays signalling between the two ends. A socket that drops without the
// session ending is reported as a Leave.
type Hub struct {
	lifecycle    Lifecycle
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	rooms map[string]map[string]*client
}

type client struct {
	sessionID string
	userID    string
	conn      *websocket.Conn
	send      chan Message

	mu     sync.Mutex
	closed bool
	silent bool
}

func NewHub(cfg config.ChannelConfig, logger *slog.Logger) *Hub {
	allowed := cfg.AllowedOrigins

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowed, r.Header.Get("Origin"))
			},
		},
		pingInterval: cfg.PingInterval,
		logger:       logger.With("component", "channel_hub"),
		rooms:        make(map[string]map[string]*client),
	}
}

// SetLifecycle wires the call manager after construction; the manager in
// turn notifies the hub when a session ends.
func (h *Hub) SetLifecycle(l Lifecycle) {
	h.lifecycle = l
}

// Serve upgrades the request and runs the socket until either side goes
// away. Authorization happens before the upgrade so rejected clients get a
// normal HTTP error.
func (h *Hub) Serve(
	w http.ResponseWriter,
	r *http.Request,
	sessionID, userID string,
) error {
	peerID, err := h.lifecycle.Authorize(r.Context(), sessionID, userID)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			"session_id", sessionID,
			"error", err,
		)
		return nil
	}

	c := &client{
		sessionID: sessionID,
		userID:    userID,
		conn:      conn,
		send:      make(chan Message, sendBuffer),
	}

	peerOnline := h.join(c, peerID)

	go h.writePump(c)

	if peerOnline {
		h.deliver(sessionID, peerID, Message{Type: TypePeerJoined, From: userID})
		c.enqueue(Message{Type: TypePeerJoined, From: peerID})
	}

	h.readPump(c, peerID)
	return nil
}

// CloseSession tells both ends the call is over and drops their sockets
// without reporting a Leave.
func (h *Hub) CloseSession(sessionID, reason string) {
	h.mu.Lock()
	room := h.rooms[sessionID]
	delete(h.rooms, sessionID)
	h.mu.Unlock()

	for _, c := range room {
		c.markSilent()
		c.enqueue(Message{Type: TypeEnded, Reason: reason})
		c.close()
	}
}

// Online reports how many participants of a session hold a socket.
func (h *Hub) Online(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[sessionID])
}

// LiveSessions reports how many sessions have at least one socket open.
func (h *Hub) LiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Shutdown drops every socket. Sessions are left to the supervisor.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[string]*client)
	h.mu.Unlock()

	for _, room := range rooms {
		for _, c := range room {
			c.markSilent()
			c.close()
		}
	}
}

func (h *Hub) join(c *client, peerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.sessionID]
	if !ok {
		room = make(map[string]*client, 2)
		h.rooms[c.sessionID] = room
	}

	if previous, ok := room[c.userID]; ok {
		previous.markSilent()
		previous.close()
	}
	room[c.userID] = c

	_, peerOnline := room[peerID]
	return peerOnline
}

func (h *Hub) remove(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.sessionID]
	if !ok || room[c.userID] != c {
		return false
	}

	delete(room, c.userID)
	if len(room) == 0 {
		delete(h.rooms, c.sessionID)
	}
	return true
}

func (h *Hub) deliver(sessionID, userID string, msg Message) {
	h.mu.Lock()
	target := h.rooms[sessionID][userID]
	h.mu.Unlock()

	if target != nil {
		target.enqueue(msg)
	}
}

func (h *Hub) readPump(c *client, peerID string) {
	defer func() {
		removed := h.remove(c)
		c.close()

		if !removed || c.isSilent() {
			return
		}

		h.deliver(c.sessionID, peerID, Message{Type: TypePeerLeft, From: c.userID})
		h.leave(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	h.extendDeadline(c)
	c.conn.SetPongHandler(func(string) error {
		h.extendDeadline(c)
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
			) {
				h.logger.Debug("presence socket closed",
					"session_id", c.sessionID,
					"user_id", c.userID,
					"error", err,
				)
			}
			return
		}
		h.extendDeadline(c)

		if !h.handle(c, peerID, msg) {
			return
		}
	}
}

func (h *Hub) handle(c *client, peerID string, msg Message) bool {
	switch msg.Type {
	case TypeSignal:
		msg.From = c.userID
		h.deliver(c.sessionID, peerID, msg)
	case TypeConnected:
		h.call(c, "mark connected", h.lifecycle.MarkConnected)
	case TypeHeartbeat:
		h.call(c, "heartbeat", h.lifecycle.Heartbeat)
	case TypeLeave:
		return false
	default:
		c.enqueue(Message{Type: TypeError, Reason: "unknown message type"})
	}
	return true
}

func (h *Hub) leave(c *client) {
	h.call(c, "leave", h.lifecycle.Leave)
}

func (h *Hub) call(
	c *client,
	op string,
	fn func(ctx context.Context, sessionID, userID string) error,
) {
	ctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()

	if err := fn(ctx, c.sessionID, c.userID); err != nil {
		h.logger.Warn("presence "+op+" failed",
			"session_id", c.sessionID,
			"user_id", c.userID,
			"error", err,
		)
		c.enqueue(Message{Type: TypeError, Reason: op + " failed"})
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		//nolint:errcheck // connection is going away
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			//nolint:errcheck // write failures surface on the next write
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // best-effort close frame
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // write failures surface on the next write
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) extendDeadline(c *client) {
	//nolint:errcheck // deadline errors surface on the next read
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
}

func (c *client) enqueue(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) markSilent() {
	c.mu.Lock()
	c.silent = true
	c.mu.Unlock()
}

func (c *client) isSilent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.silent
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
