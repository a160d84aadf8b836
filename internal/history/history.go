package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tubita/tubita/internal/kv"
	"github.com/tubita/tubita/internal/session"
)

const (
	Key        = "history"
	MaxRecords = 100

	writeTimeout = 5 * time.Second
)

// Record is one finished or locked watch session.
type Record struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	User           string    `json:"user"`
	VideoIDs       []string  `json:"videoIds"`
	WatchedSeconds int       `json:"watchedSeconds"`
	Reason         string    `json:"reason"`
	StartedAt      time.Time `json:"startedAt"`
	EndedAt        time.Time `json:"endedAt"`
	Device         string    `json:"device,omitempty"`
}

// Log keeps the most recent session records, newest first, in the key-value
// store.
type Log struct {
	store kv.Store

	mu      sync.Mutex
	records []Record

	// pending holds observed records not yet written, oldest first. One
	// drain goroutine at a time writes them in order.
	qmu      sync.Mutex
	pending  []Record
	draining bool
	wg       sync.WaitGroup
}

// Load reads the stored history. A corrupted document starts an empty log.
func Load(ctx context.Context, store kv.Store) (*Log, error) {
	l := &Log{store: store}
	raw, found, err := store.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if found {
		if err := json.Unmarshal(raw, &l.records); err != nil {
			slog.Warn("history: stored history corrupted, starting empty", "error", err)
			l.records = nil
		}
	}
	return l, nil
}

func (l *Log) Append(ctx context.Context, r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	next := make([]Record, 0, min(len(l.records)+1, MaxRecords))
	next = append(next, r)
	next = append(next, l.records...)
	if len(next) > MaxRecords {
		next = next[:MaxRecords]
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := l.store.Set(ctx, Key, raw); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	l.records = next
	return nil
}

// List returns up to limit records, newest first. A limit <= 0 returns all.
func (l *Log) List(limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, n)
	copy(out, l.records[:n])
	return out
}

// Observe records a history entry when a session ends or locks. Records are
// queued and written in order off the session loop.
func (l *Log) Observe(e session.Event) {
	var reason string
	switch e.Type {
	case session.EventEnded:
		reason = "logout"
	case session.EventExpired:
		reason = string(session.ReasonTimeExpired)
	case session.EventExhausted:
		reason = string(session.ReasonPlaylistExhausted)
	default:
		return
	}

	l.qmu.Lock()
	defer l.qmu.Unlock()
	l.pending = append(l.pending, recordFrom(e, reason))
	if !l.draining {
		l.draining = true
		l.wg.Add(1)
		go l.drain()
	}
}

func (l *Log) drain() {
	defer l.wg.Done()
	for {
		l.qmu.Lock()
		if len(l.pending) == 0 {
			l.draining = false
			l.qmu.Unlock()
			return
		}
		r := l.pending[0]
		l.pending = l.pending[1:]
		l.qmu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := l.Append(ctx, r); err != nil {
			slog.Error("history: failed to record session", "session_id", r.SessionID, "error", err)
		}
		cancel()
	}
}

// Wait blocks until queued records are written.
func (l *Log) Wait() {
	l.wg.Wait()
}

func recordFrom(e session.Event, reason string) Record {
	snap := e.Snapshot
	r := Record{
		ID:             uuid.NewString(),
		SessionID:      snap.SessionID,
		User:           snap.User,
		VideoIDs:       snap.VideoIDs(),
		WatchedSeconds: snap.TotalWatchedSeconds,
		Reason:         reason,
		EndedAt:        e.At,
		Device:         snap.Device,
	}
	if snap.StartedAt != nil {
		r.StartedAt = *snap.StartedAt
	}
	return r
}
