package session

import (
	"context"
	"testing"

	"github.com/tubita/tubita/internal/playlist"
	"github.com/tubita/tubita/internal/settings"
)

type fakeAdapter struct {
	loaded []string
	plays  int
	pauses int
	stops  int
	state  PlayerState
}

func (a *fakeAdapter) Load(id string) {
	a.loaded = append(a.loaded, id)
	a.state = PlayerUnstarted
}
func (a *fakeAdapter) Play()              { a.plays++; a.state = PlayerPlaying }
func (a *fakeAdapter) Pause()             { a.pauses++; a.state = PlayerPaused }
func (a *fakeAdapter) Stop()              { a.stops++; a.state = PlayerUnstarted }
func (a *fakeAdapter) State() PlayerState { return a.state }

func (a *fakeAdapter) lastLoaded() string {
	if len(a.loaded) == 0 {
		return ""
	}
	return a.loaded[len(a.loaded)-1]
}

type fakeTimer struct {
	running bool
	starts  int
	stops   int
}

func (t *fakeTimer) Start() {
	if t.running {
		return
	}
	t.running = true
	t.starts++
}

func (t *fakeTimer) Stop() {
	if !t.running {
		return
	}
	t.running = false
	t.stops++
}

func (t *fakeTimer) Running() bool { return t.running }

type staticSettings struct{ s settings.Settings }

func (s *staticSettings) Settings() settings.Settings { return s.s }

type catalog struct{ p playlist.Playlist }

func (c catalog) Lookup(id string) (playlist.VideoEntry, bool) { return c.p.Find(id) }

type password string

func (p password) Verify(candidate string) bool { return string(p) == candidate }

type memorySelections struct {
	saved   *Selection
	cleared int
}

func (m *memorySelections) SaveSelection(_ context.Context, sel Selection) error {
	m.saved = &sel
	return nil
}

func (m *memorySelections) ClearSelection(context.Context) error {
	m.saved = nil
	m.cleared++
	return nil
}

type eventLog struct{ events []Event }

func (l *eventLog) Observe(e Event) { l.events = append(l.events, e) }

func (l *eventLog) count(t EventType) int {
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	machine    *Machine
	adapter    *fakeAdapter
	timer      *fakeTimer
	settings   *staticSettings
	selections *memorySelections
	events     *eventLog
}

var testVideos = playlist.Playlist{
	{ID: "XqZsoesa55w", Title: "Baby Shark"},
	{ID: "kUj5JNJCpDs", Title: "Peppa Pig"},
	{ID: "_UR-l3QI2nE", Title: "CoComelon"},
	{ID: "gIOyB9ZXn8s", Title: "Let It Go"},
}

func newFixture(t *testing.T, timeLimit, warningLead int) *fixture {
	t.Helper()
	st := settings.Defaults()
	st.TimeLimitMinutes = timeLimit
	st.WarningLeadMinutes = warningLead
	if err := st.Validate(); err != nil {
		t.Fatalf("invalid test settings: %v", err)
	}

	f := &fixture{
		adapter:    &fakeAdapter{state: PlayerUnstarted},
		timer:      &fakeTimer{},
		settings:   &staticSettings{s: st},
		selections: &memorySelections{},
		events:     &eventLog{},
	}
	f.machine = NewMachine(f.adapter, f.settings, catalog{p: testVideos}, password("admin123"), f.timer)
	f.machine.SetSelectionStore(f.selections)
	f.machine.AddObserver(f.events)
	return f
}

// start begins a session on the given videos and reports the player as
// playing, which is what the embedded widget does after a load.
func (f *fixture) start(t *testing.T, ids ...string) {
	t.Helper()
	if err := f.machine.Start(StartRequest{User: "Mia", VideoIDs: ids}); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.machine.PlayerChanged(PlayerPlaying)
}

func (f *fixture) ticks(n int) {
	for range n {
		f.machine.Tick()
	}
}
