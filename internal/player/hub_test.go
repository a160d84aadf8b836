package player

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tubita/tubita/internal/session"
)

type recordingInbound struct {
	mu      sync.Mutex
	ready   int
	changes []session.PlayerState
}

func (r *recordingInbound) PlayerReady(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready++
	return nil
}

func (r *recordingInbound) PlayerChanged(_ context.Context, ps session.PlayerState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, ps)
	return nil
}

func (r *recordingInbound) snapshot() (int, []session.PlayerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready, append([]session.PlayerState(nil), r.changes...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func connect(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readCommand(t *testing.T, conn *websocket.Conn) Command {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var cmd Command
	if err := conn.ReadJSON(&cmd); err != nil {
		t.Fatalf("read: %v", err)
	}
	return cmd
}

func TestHubBroadcastsAdapterCommands(t *testing.T) {
	hub := NewHub()
	conn := connect(t, hub)
	waitFor(t, func() bool { return hub.Clients() == 1 })

	hub.Load("XqZsoesa55w")
	hub.Play()
	hub.Pause()
	hub.Stop()

	want := []Command{
		{Type: CommandLoad, VideoID: "XqZsoesa55w"},
		{Type: CommandPlay},
		{Type: CommandPause},
		{Type: CommandStop},
	}
	for _, w := range want {
		got := readCommand(t, conn)
		if got.Type != w.Type || got.VideoID != w.VideoID {
			t.Errorf("expected %+v, got %+v", w, got)
		}
	}
}

func TestHubDispatchesPageNotifications(t *testing.T) {
	hub := NewHub()
	in := &recordingInbound{}
	hub.SetInbound(in)
	conn := connect(t, hub)

	for _, n := range []Notification{
		{Type: NotificationReady},
		{Type: NotificationState, State: "playing"},
		{Type: NotificationState, State: "buffering"},
		{Type: NotificationState, State: "ended"},
		{Type: "hello"},
	} {
		if err := conn.WriteJSON(n); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	waitFor(t, func() bool {
		_, changes := in.snapshot()
		return len(changes) == 2
	})
	ready, changes := in.snapshot()
	if ready != 1 {
		t.Errorf("expected 1 ready, got %d", ready)
	}
	if changes[0] != session.PlayerPlaying || changes[1] != session.PlayerEnded {
		t.Errorf("unexpected changes %v", changes)
	}
	if hub.State() != session.PlayerEnded {
		t.Errorf("expected ended state, got %s", hub.State())
	}
}

func TestHubLoadResetsReportedState(t *testing.T) {
	hub := NewHub()
	hub.handle(Notification{Type: NotificationState, State: "playing"})
	if hub.State() != session.PlayerPlaying {
		t.Fatalf("expected playing, got %s", hub.State())
	}
	hub.Load("kUj5JNJCpDs")
	if hub.State() != session.PlayerUnstarted {
		t.Errorf("expected unstarted after load, got %s", hub.State())
	}
}

func TestHubReplaysLatestSnapshotOnConnect(t *testing.T) {
	hub := NewHub()
	hub.Observe(session.Event{Type: session.EventWarning, Snapshot: session.Snapshot{State: session.StateWarning, User: "Mia"}})

	conn := connect(t, hub)
	got := readCommand(t, conn)
	if got.Type != CommandSnapshot || got.Event != session.EventWarning {
		t.Fatalf("unexpected command %+v", got)
	}
	if got.Snapshot == nil || got.Snapshot.User != "Mia" {
		t.Errorf("unexpected snapshot %+v", got.Snapshot)
	}
}

func TestHubObserveBroadcastsSnapshot(t *testing.T) {
	hub := NewHub()
	conn := connect(t, hub)
	waitFor(t, func() bool { return hub.Clients() == 1 })

	hub.Observe(session.Event{Type: session.EventTick, Snapshot: session.Snapshot{State: session.StatePlaying, WatchedSeconds: 12}})

	got := readCommand(t, conn)
	if got.Type != CommandSnapshot || got.Snapshot == nil || got.Snapshot.WatchedSeconds != 12 {
		t.Errorf("unexpected command %+v", got)
	}
}

func TestHubDropsClientOnDisconnect(t *testing.T) {
	hub := NewHub()
	conn := connect(t, hub)
	waitFor(t, func() bool { return hub.Clients() == 1 })

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	waitFor(t, func() bool { return hub.Clients() == 0 })
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()
	c := &client{addr: "192.168.1.20:51000", send: make(chan []byte, 1)}
	hub.clients[c] = struct{}{}

	data, _ := json.Marshal(Command{Type: CommandPlay})
	c.send <- data

	// The buffer is full, so the next send must not block.
	done := make(chan struct{})
	go func() {
		hub.send(data)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send blocked on a full client buffer")
	}
	if hub.Clients() != 0 {
		t.Errorf("expected slow client to be dropped, got %d clients", hub.Clients())
	}
}
