package session

import (
	"sync"
	"time"
)

// Timer is the repeating watch-time tick. Start on a running timer and Stop
// on a stopped one are no-ops.
type Timer interface {
	Start()
	Stop()
	Running() bool
}

// IntervalTimer delivers a tick on C every interval while running. Ticks are
// dropped rather than queued when the receiver falls behind.
type IntervalTimer struct {
	interval time.Duration
	c        chan struct{}

	mu   sync.Mutex
	stop chan struct{}
}

func NewIntervalTimer(interval time.Duration) *IntervalTimer {
	if interval <= 0 {
		interval = time.Second
	}
	return &IntervalTimer{interval: interval, c: make(chan struct{}, 1)}
}

func (t *IntervalTimer) C() <-chan struct{} {
	return t.c
}

func (t *IntervalTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	stop := make(chan struct{})
	t.stop = stop
	go t.run(stop)
}

func (t *IntervalTimer) run(stop <-chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case t.c <- struct{}{}:
			default:
			}
		}
	}
}

func (t *IntervalTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop == nil {
		return
	}
	close(t.stop)
	t.stop = nil
}

func (t *IntervalTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}
