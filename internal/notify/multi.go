package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tubita/tubita/internal/session"
)

const defaultTimeout = 30 * time.Second

// Notifier delivers a session event to one parent-facing channel.
type Notifier interface {
	Notify(ctx context.Context, e session.Event) error
}

var _ session.Observer = (*Multi)(nil)

// Multi fans session events out to all registered notifiers. Each delivery
// runs on its own goroutine so the session loop is never held up by the
// network.
type Multi struct {
	notifiers []Notifier
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewMulti creates an observer that delegates to all provided notifiers.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, timeout: defaultTimeout}
}

func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Notable reports whether an event type is announced to parents.
func Notable(t session.EventType) bool {
	switch t {
	case session.EventStarted, session.EventWarning, session.EventExpired,
		session.EventExhausted, session.EventUnlocked, session.EventEnded:
		return true
	}
	return false
}

func (m *Multi) Observe(e session.Event) {
	if !Notable(e.Type) {
		return
	}
	for _, n := range m.notifiers {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			defer cancel()
			if err := n.Notify(ctx, e); err != nil {
				slog.Error("multi-notifier: session notification failed", "event", e.Type, "error", err)
			}
		}()
	}
}

// Wait blocks until in-flight deliveries finish.
func (m *Multi) Wait() {
	m.wg.Wait()
}
