// Package player drives the video widget embedded in the browser page. The
// page connects over a WebSocket, receives load/play/pause/stop commands and
// session snapshots, and reports ready and playback state changes back.
package player

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tubita/tubita/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
	inboundTimeout = 5 * time.Second
)

// Inbound receives the notifications the page reports. *session.Runner
// satisfies it.
type Inbound interface {
	PlayerReady(ctx context.Context) error
	PlayerChanged(ctx context.Context, ps session.PlayerState) error
}

// Command is a message sent to the page.
type Command struct {
	Type     string            `json:"type"`
	VideoID  string            `json:"videoId,omitempty"`
	Event    session.EventType `json:"event,omitempty"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
}

const (
	CommandLoad     = "load"
	CommandPlay     = "play"
	CommandPause    = "pause"
	CommandStop     = "stop"
	CommandSnapshot = "snapshot"
)

// Notification is a message received from the page.
type Notification struct {
	Type  string `json:"type"`
	State string `json:"state,omitempty"`
}

const (
	NotificationReady = "ready"
	NotificationState = "state"
)

var (
	_ session.Adapter  = (*Hub)(nil)
	_ session.Observer = (*Hub)(nil)
)

type client struct {
	conn *websocket.Conn
	addr string
	send chan []byte
}

// Hub is the session's playback adapter and the UI's event feed. Adapter
// and observer methods never block: a page that cannot keep up is dropped.
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	state    session.PlayerState
	snapshot []byte
	inbound  Inbound
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[*client]struct{}),
		state:   session.PlayerUnstarted,
	}
}

// SetInbound wires page notifications to the session loop.
func (h *Hub) SetInbound(in Inbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inbound = in
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Load(videoID string) {
	h.mu.Lock()
	h.state = session.PlayerUnstarted
	h.mu.Unlock()
	h.broadcast(Command{Type: CommandLoad, VideoID: videoID})
}

func (h *Hub) Play() {
	h.broadcast(Command{Type: CommandPlay})
}

func (h *Hub) Pause() {
	h.broadcast(Command{Type: CommandPause})
}

func (h *Hub) Stop() {
	h.mu.Lock()
	h.state = session.PlayerUnstarted
	h.mu.Unlock()
	h.broadcast(Command{Type: CommandStop})
}

// State returns the last playback state reported by the page.
func (h *Hub) State() session.PlayerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Observe pushes every session event to the page. The latest snapshot is
// kept and replayed to pages that connect later.
func (h *Hub) Observe(e session.Event) {
	snap := e.Snapshot
	data, err := json.Marshal(Command{Type: CommandSnapshot, Event: e.Type, Snapshot: &snap})
	if err != nil {
		slog.Error("player: failed to encode snapshot", "error", err)
		return
	}
	h.mu.Lock()
	h.snapshot = data
	h.mu.Unlock()
	h.send(data)
}

func (h *Hub) broadcast(cmd Command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		slog.Error("player: failed to encode command", "type", cmd.Type, "error", err)
		return
	}
	h.send(data)
}

func (h *Hub) send(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("player: client too slow, dropping", "remote_addr", c.addr)
			h.removeLocked(c)
		}
	}
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// ServeHTTP upgrades the request and serves one page connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("player: websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, addr: conn.RemoteAddr().String(), send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.snapshot != nil {
		c.send <- h.snapshot
	}
	total := len(h.clients)
	h.mu.Unlock()
	slog.Info("player: page connected", "remote_addr", c.addr, "clients", total)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
		_ = c.conn.Close()
		slog.Info("player: page disconnected", "remote_addr", c.addr)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var n Notification
		if err := c.conn.ReadJSON(&n); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("player: websocket read error", "error", err)
			}
			return
		}
		h.handle(n)
	}
}

func (h *Hub) handle(n Notification) {
	h.mu.Lock()
	in := h.inbound
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	switch n.Type {
	case NotificationReady:
		h.mu.Lock()
		h.state = session.PlayerUnstarted
		h.mu.Unlock()
		if in != nil {
			if err := in.PlayerReady(ctx); err != nil {
				slog.Warn("player: ready not delivered", "error", err)
			}
		}
	case NotificationState:
		ps, ok := session.ParsePlayerState(n.State)
		if !ok {
			slog.Debug("player: ignoring unknown state", "state", n.State)
			return
		}
		h.mu.Lock()
		h.state = ps
		h.mu.Unlock()
		if in != nil {
			if err := in.PlayerChanged(ctx, ps); err != nil {
				slog.Warn("player: state not delivered", "state", ps, "error", err)
			}
		}
	default:
		slog.Debug("player: ignoring message", "type", n.Type)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
