package session

import (
	"context"
	"errors"
)

var ErrStopped = errors.New("session loop stopped")

type command struct {
	fn   func(*Machine)
	done chan struct{}
}

// Runner owns a Machine and feeds it timer ticks and commands from a single
// goroutine, so ticks, adapter notifications and user input never interleave.
type Runner struct {
	machine *Machine
	ticks   <-chan struct{}
	cmds    chan command
	stopped chan struct{}
}

func NewRunner(m *Machine, ticks <-chan struct{}) *Runner {
	return &Runner{
		machine: m,
		ticks:   ticks,
		cmds:    make(chan command),
		stopped: make(chan struct{}),
	}
}

// Run processes ticks and commands until ctx is cancelled. The timer is
// stopped on the way out.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.stopped)
	defer r.machine.Shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ticks:
			r.machine.Tick()
		case c := <-r.cmds:
			c.fn(r.machine)
			close(c.done)
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (r *Runner) Do(ctx context.Context, fn func(*Machine)) error {
	c := command{fn: fn, done: make(chan struct{})}
	select {
	case r.cmds <- c:
	case <-r.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-c.done
	return nil
}

func (r *Runner) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := r.Do(ctx, func(m *Machine) { snap = m.Snapshot() })
	return snap, err
}

func (r *Runner) PlayerReady(ctx context.Context) error {
	return r.Do(ctx, func(m *Machine) { m.PlayerReady() })
}

func (r *Runner) PlayerChanged(ctx context.Context, ps PlayerState) error {
	return r.Do(ctx, func(m *Machine) { m.PlayerChanged(ps) })
}
