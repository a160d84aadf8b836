package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunnerAppliesTicksAndCommandsInOrder(t *testing.T) {
	f := newFixture(t, 30, 5)
	ticks := make(chan struct{})
	r := NewRunner(f.machine, ticks)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	err := r.Do(ctx, func(m *Machine) {
		_ = m.Start(StartRequest{User: "Mia", VideoIDs: []string{"XqZsoesa55w"}})
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.PlayerChanged(ctx, PlayerPlaying); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		ticks <- struct{}{}
	}

	snap, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.WatchedSeconds != 3 {
		t.Errorf("expected 3 watched seconds, got %d", snap.WatchedSeconds)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
	if f.timer.running {
		t.Error("timer left running after shutdown")
	}
	if err := r.Do(context.Background(), func(*Machine) {}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestRunnerDoRespectsContext(t *testing.T) {
	f := newFixture(t, 30, 5)
	r := NewRunner(f.machine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Do(ctx, func(*Machine) {}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
