package session

import (
	"errors"
	"fmt"
	"testing"
)

func TestStartLoadsFirstVideoAndWaitsForPlayback(t *testing.T) {
	f := newFixture(t, 30, 5)

	if err := f.machine.Start(StartRequest{User: "Mia", VideoIDs: []string{"kUj5JNJCpDs", "XqZsoesa55w"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.adapter.lastLoaded(); got != "kUj5JNJCpDs" {
		t.Errorf("expected first selected video loaded, got %q", got)
	}
	if f.machine.State() != StatePlaying {
		t.Errorf("expected playing, got %s", f.machine.State())
	}
	if f.timer.running {
		t.Error("timer should wait for the player to report playing")
	}

	f.machine.Tick()
	if snap := f.machine.Snapshot(); snap.WatchedSeconds != 0 {
		t.Errorf("tick before playback counted: %d", snap.WatchedSeconds)
	}

	f.machine.PlayerChanged(PlayerPlaying)
	if !f.timer.running {
		t.Error("expected timer running once playing")
	}
	if f.events.count(EventStarted) != 1 {
		t.Errorf("expected one started event, got %d", f.events.count(EventStarted))
	}
}

func TestWarningFiresExactlyOnceAtThreshold(t *testing.T) {
	cases := []struct{ limit, lead int }{
		{1, 0}, {1, 1}, {2, 1}, {3, 0}, {5, 2}, {30, 5}, {10, 10},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("T=%d W=%d", tc.limit, tc.lead), func(t *testing.T) {
			f := newFixture(t, tc.limit, tc.lead)
			f.start(t, "XqZsoesa55w")

			warningAt := -1
			if f.events.count(EventWarning) == 1 {
				warningAt = 0
			}
			lockedAt := -1
			for i := 1; i <= tc.limit*60+30; i++ {
				f.machine.Tick()
				if warningAt < 0 && f.events.count(EventWarning) == 1 {
					warningAt = i
				}
				if lockedAt < 0 && f.machine.State() == StateLocked {
					lockedAt = i
				}
			}

			want := (tc.limit - tc.lead) * 60
			if warningAt != want {
				t.Errorf("warning at tick %d, want %d", warningAt, want)
			}
			if n := f.events.count(EventWarning); n != 1 {
				t.Errorf("warning fired %d times", n)
			}
			if lockedAt != tc.limit*60 {
				t.Errorf("locked at tick %d, want %d", lockedAt, tc.limit*60)
			}
			if got := f.machine.Snapshot().WatchedSeconds; got != tc.limit*60 {
				t.Errorf("watched %d after lock, want %d", got, tc.limit*60)
			}
		})
	}
}

func TestScenarioImmediateWarningAndExpiryAtSixty(t *testing.T) {
	f := newFixture(t, 1, 1)
	f.start(t, "XqZsoesa55w")

	if f.events.count(EventWarning) != 1 {
		t.Fatal("expected warning at tick 0")
	}
	if f.machine.State() != StateWarning {
		t.Errorf("expected warning state, got %s", f.machine.State())
	}

	f.ticks(59)
	if f.machine.State() == StateLocked {
		t.Fatal("locked before tick 60")
	}
	f.machine.Tick()
	if f.machine.State() != StateLocked {
		t.Fatal("expected lock at tick 60")
	}
	snap := f.machine.Snapshot()
	if snap.LockReason != ReasonTimeExpired {
		t.Errorf("expected time expiry, got %q", snap.LockReason)
	}
	if f.adapter.pauses != 1 {
		t.Errorf("expected adapter paused once, got %d", f.adapter.pauses)
	}
	if f.timer.running {
		t.Error("timer still running after lock")
	}
	if f.events.count(EventExpired) != 1 {
		t.Errorf("expected one expired event, got %d", f.events.count(EventExpired))
	}
}

func TestScenarioVideoEndKeepsBudget(t *testing.T) {
	f := newFixture(t, 30, 5)
	f.start(t, "XqZsoesa55w", "kUj5JNJCpDs")

	f.ticks(10)
	f.machine.PlayerChanged(PlayerEnded)

	snap := f.machine.Snapshot()
	if snap.CurrentIndex != 1 {
		t.Errorf("expected current index 1, got %d", snap.CurrentIndex)
	}
	if snap.WatchedSeconds != 10 {
		t.Errorf("expected watched 10, got %d", snap.WatchedSeconds)
	}
	if got := f.adapter.lastLoaded(); got != "kUj5JNJCpDs" {
		t.Errorf("expected second video loaded, got %q", got)
	}
	if f.timer.running {
		t.Error("timer should idle until the next video plays")
	}

	f.machine.PlayerChanged(PlayerPlaying)
	f.ticks(5)
	if got := f.machine.Snapshot().WatchedSeconds; got != 15 {
		t.Errorf("expected watched 15, got %d", got)
	}
}

func TestScenarioWrongPasswordsKeepLock(t *testing.T) {
	f := newFixture(t, 1, 0)
	f.start(t, "XqZsoesa55w")
	f.ticks(60)
	if f.machine.State() != StateLocked {
		t.Fatal("expected locked session")
	}

	for i := 1; i <= 5; i++ {
		err := f.machine.Unlock("Admin123")
		if !errors.Is(err, ErrWrongPassword) {
			t.Fatalf("attempt %d: expected ErrWrongPassword, got %v", i, err)
		}
		if f.machine.State() != StateLocked {
			t.Fatalf("attempt %d: expected locked, got %s", i, f.machine.State())
		}
		if got := f.machine.Snapshot().WatchedSeconds; got != 60 {
			t.Fatalf("attempt %d: watched changed to %d", i, got)
		}
	}

	if err := f.machine.Unlock("admin123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := f.machine.Snapshot()
	if snap.Locked || snap.WatchedSeconds != 0 || snap.WarningFired {
		t.Errorf("expected reset session, got %+v", snap)
	}
	if snap.State != StatePlaying {
		t.Errorf("expected playing, got %s", snap.State)
	}
	if f.adapter.plays != 1 {
		t.Errorf("expected adapter resumed, got %d plays", f.adapter.plays)
	}
}

func TestScenarioSingleVideoExhausts(t *testing.T) {
	f := newFixture(t, 30, 5)
	f.start(t, "XqZsoesa55w")
	f.ticks(42)

	f.machine.PlayerChanged(PlayerEnded)

	snap := f.machine.Snapshot()
	if snap.State != StateLocked || snap.LockReason != ReasonPlaylistExhausted {
		t.Fatalf("expected exhausted lock, got %s/%s", snap.State, snap.LockReason)
	}
	if snap.WatchedSeconds != 42 {
		t.Errorf("expected watched 42, got %d", snap.WatchedSeconds)
	}
	if f.timer.running {
		t.Error("timer still running after exhaustion")
	}
	if f.events.count(EventExhausted) != 1 {
		t.Errorf("expected one exhausted event, got %d", f.events.count(EventExhausted))
	}
}

func TestLockedSessionIgnoresTicksAndPlayback(t *testing.T) {
	f := newFixture(t, 1, 0)
	f.start(t, "XqZsoesa55w")
	f.ticks(60)
	pauses := f.adapter.pauses

	f.machine.PlayerChanged(PlayerPlaying)
	f.ticks(10)

	if got := f.machine.Snapshot().WatchedSeconds; got != 60 {
		t.Errorf("watched changed while locked: %d", got)
	}
	if f.adapter.pauses != pauses+1 {
		t.Errorf("expected playback paused again, pauses=%d", f.adapter.pauses)
	}
	if f.timer.running {
		t.Error("timer restarted while locked")
	}
	for _, op := range []struct {
		name string
		fn   func() error
	}{
		{"next", f.machine.Next},
		{"previous", f.machine.Previous},
		{"logout", f.machine.Logout},
		{"picker", f.machine.OpenPicker},
		{"start", func() error { return f.machine.Start(StartRequest{User: "Leo", VideoIDs: []string{"kUj5JNJCpDs"}}) }},
	} {
		if err := op.fn(); !errors.Is(err, ErrLocked) {
			t.Errorf("%s: expected ErrLocked, got %v", op.name, err)
		}
	}
}

func TestUnlockWhenUnlockedIsNoop(t *testing.T) {
	f := newFixture(t, 30, 5)
	f.start(t, "XqZsoesa55w")
	f.ticks(30)

	if err := f.machine.Unlock("admin123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.machine.Unlock("admin123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.machine.Snapshot().WatchedSeconds; got != 30 {
		t.Errorf("unlock reset an unlocked session: watched=%d", got)
	}
	if f.events.count(EventUnlocked) != 0 {
		t.Error("unexpected unlocked event")
	}
	if f.adapter.plays != 0 {
		t.Error("unexpected adapter play")
	}
}

func TestUnlockAfterExhaustionReturnsToPicker(t *testing.T) {
	f := newFixture(t, 30, 5)
	f.start(t, "XqZsoesa55w")
	f.machine.PlayerChanged(PlayerEnded)

	if err := f.machine.Unlock("admin123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := f.machine.Snapshot()
	if snap.State != StateSelecting {
		t.Errorf("expected selecting, got %s", snap.State)
	}
	if snap.Picker == nil || len(snap.Picker.Selected) != 0 {
		t.Errorf("expected empty picker, got %+v", snap.Picker)
	}
	if f.adapter.stops != 1 {
		t.Errorf("expected adapter stopped, got %d", f.adapter.stops)
	}
	if f.selections.saved != nil {
		t.Error("expected persisted selection cleared")
	}
}

func TestTotalWatchedAccumulatesAcrossUnlocks(t *testing.T) {
	f := newFixture(t, 1, 0)
	f.start(t, "XqZsoesa55w")
	f.ticks(60)
	if err := f.machine.Unlock("admin123"); err != nil {
		t.Fatal(err)
	}
	f.machine.PlayerChanged(PlayerPlaying)
	f.ticks(10)

	snap := f.machine.Snapshot()
	if snap.WatchedSeconds != 10 || snap.TotalWatchedSeconds != 70 {
		t.Errorf("expected watched 10 total 70, got %d/%d", snap.WatchedSeconds, snap.TotalWatchedSeconds)
	}
}

func TestPauseSuspendsTicking(t *testing.T) {
	f := newFixture(t, 30, 5)
	f.start(t, "XqZsoesa55w")
	f.ticks(5)

	f.machine.PlayerChanged(PlayerPaused)
	if f.timer.running {
		t.Error("timer running while paused")
	}
	f.ticks(5)
	if got := f.machine.Snapshot().WatchedSeconds; got != 5 {
		t.Errorf("ticks counted while paused: %d", got)
	}

	f.machine.PlayerChanged(PlayerPlaying)
	f.ticks(3)
	if got := f.machine.Snapshot().WatchedSeconds; got != 8 {
		t.Errorf("expected 8 after resume, got %d", got)
	}
}

func TestTimerStartIsGuarded(t *testing.T) {
	f := newFixture(t, 30, 5)
	f.start(t, "XqZsoesa55w")
	f.machine.PlayerChanged(PlayerPlaying)
	f.machine.PlayerChanged(PlayerPlaying)

	if f.timer.starts != 1 {
		t.Errorf("expected timer started once, got %d", f.timer.starts)
	}
}

func TestPickerSelectionBoundaries(t *testing.T) {
	f := newFixture(t, 30, 5)

	if err := f.machine.Toggle("XqZsoesa55w"); !errors.Is(err, ErrNotSelecting) {
		t.Fatalf("expected ErrNotSelecting before opening the picker, got %v", err)
	}
	if err := f.machine.OpenPicker(); err != nil {
		t.Fatal(err)
	}
	if f.machine.State() != StateSelecting {
		t.Fatalf("expected selecting, got %s", f.machine.State())
	}
	if p := f.machine.Picker(); p.CanStart || !p.CanSelectMore {
		t.Errorf("empty picker: %+v", p)
	}

	for _, id := range []string{"XqZsoesa55w", "kUj5JNJCpDs", "_UR-l3QI2nE"} {
		if err := f.machine.Toggle(id); err != nil {
			t.Fatalf("toggle %s: %v", id, err)
		}
	}
	if p := f.machine.Picker(); p.CanSelectMore || !p.CanStart {
		t.Errorf("full picker: %+v", p)
	}
	if err := f.machine.Toggle("gIOyB9ZXn8s"); !errors.Is(err, ErrSelectionFull) {
		t.Errorf("expected ErrSelectionFull, got %v", err)
	}

	if err := f.machine.Toggle("kUj5JNJCpDs"); err != nil {
		t.Fatal(err)
	}
	if p := f.machine.Picker(); !p.CanSelectMore || len(p.Selected) != 2 {
		t.Errorf("after deselect: %+v", p)
	}
	if err := f.machine.Toggle("unknown0000"); !errors.Is(err, ErrUnknownVideo) {
		t.Errorf("expected ErrUnknownVideo, got %v", err)
	}

	if err := f.machine.Start(StartRequest{User: "Mia"}); err != nil {
		t.Fatalf("start from picker: %v", err)
	}
	snap := f.machine.Snapshot()
	if len(snap.Videos) != 2 || snap.Videos[0].ID != "XqZsoesa55w" || snap.Videos[1].ID != "_UR-l3QI2nE" {
		t.Errorf("unexpected session videos: %+v", snap.Videos)
	}
	if snap.Picker != nil {
		t.Error("picker should close once the session starts")
	}
}

func TestStartValidation(t *testing.T) {
	tests := []struct {
		name string
		req  StartRequest
		want error
	}{
		{"empty user", StartRequest{User: "  ", VideoIDs: []string{"XqZsoesa55w"}}, ErrUserRequired},
		{"no videos", StartRequest{User: "Mia"}, ErrNoVideos},
		{"too many", StartRequest{User: "Mia", VideoIDs: []string{"XqZsoesa55w", "kUj5JNJCpDs", "_UR-l3QI2nE", "gIOyB9ZXn8s"}}, ErrSelectionFull},
		{"duplicate", StartRequest{User: "Mia", VideoIDs: []string{"XqZsoesa55w", "XqZsoesa55w"}}, ErrDuplicateVideo},
		{"unknown", StartRequest{User: "Mia", VideoIDs: []string{"notinlist00"}}, ErrUnknownVideo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 30, 5)
			if err := f.machine.Start(tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if f.machine.State() != StateUnstarted {
				t.Errorf("failed start changed state to %s", f.machine.State())
			}
			if len(f.adapter.loaded) != 0 {
				t.Error("failed start loaded a video")
			}
		})
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	f := newFixture(t, 30, 5)
	f.start(t, "XqZsoesa55w")
	err := f.machine.Start(StartRequest{User: "Leo", VideoIDs: []string{"kUj5JNJCpDs"}})
	if !errors.Is(err, ErrSessionActive) {
		t.Errorf("expected ErrSessionActive, got %v", err)
	}
}

func TestStartPersistsSelectionAndLogoutClearsIt(t *testing.T) {
	f := newFixture(t, 30, 5)
	f.start(t, "kUj5JNJCpDs", "XqZsoesa55w")

	if f.selections.saved == nil || f.selections.saved.User != "Mia" || len(f.selections.saved.VideoIDs) != 2 {
		t.Fatalf("unexpected saved selection: %+v", f.selections.saved)
	}

	if err := f.machine.Logout(); err != nil {
		t.Fatal(err)
	}
	if f.machine.State() != StateUnstarted {
		t.Errorf("expected unstarted, got %s", f.machine.State())
	}
	if f.selections.saved != nil {
		t.Error("expected selection cleared")
	}
	if f.adapter.stops != 1 {
		t.Errorf("expected adapter stopped, got %d", f.adapter.stops)
	}
	if f.timer.running {
		t.Error("timer still running after logout")
	}
	if f.events.count(EventEnded) != 1 {
		t.Errorf("expected ended event, got %d", f.events.count(EventEnded))
	}
}

func TestManualNavigation(t *testing.T) {
	f := newFixture(t, 30, 5)
	f.start(t, "XqZsoesa55w", "kUj5JNJCpDs", "_UR-l3QI2nE")
	f.ticks(7)

	if err := f.machine.Previous(); !errors.Is(err, ErrNoPreviousVideo) {
		t.Errorf("expected ErrNoPreviousVideo, got %v", err)
	}
	if err := f.machine.Next(); err != nil {
		t.Fatal(err)
	}
	if err := f.machine.Next(); err != nil {
		t.Fatal(err)
	}
	if err := f.machine.Next(); !errors.Is(err, ErrNoNextVideo) {
		t.Errorf("expected ErrNoNextVideo, got %v", err)
	}
	if err := f.machine.Previous(); err != nil {
		t.Fatal(err)
	}

	snap := f.machine.Snapshot()
	if snap.CurrentIndex != 1 || f.adapter.lastLoaded() != "kUj5JNJCpDs" {
		t.Errorf("unexpected position %d / %s", snap.CurrentIndex, f.adapter.lastLoaded())
	}
	if snap.WatchedSeconds != 7 {
		t.Errorf("navigation changed budget: %d", snap.WatchedSeconds)
	}
	if snap.State != StatePlaying {
		t.Errorf("manual next must not lock, got %s", snap.State)
	}
}

func TestNavigationWithoutSession(t *testing.T) {
	f := newFixture(t, 30, 5)
	if err := f.machine.Next(); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestRestoreStartsFreshSession(t *testing.T) {
	f := newFixture(t, 30, 5)
	if err := f.machine.Restore(Selection{User: "Mia", VideoIDs: []string{"_UR-l3QI2nE"}}); err != nil {
		t.Fatal(err)
	}
	snap := f.machine.Snapshot()
	if snap.State != StatePlaying || snap.User != "Mia" || snap.WatchedSeconds != 0 {
		t.Errorf("unexpected restored session: %+v", snap)
	}
	if f.adapter.lastLoaded() != "_UR-l3QI2nE" {
		t.Errorf("expected restored video loaded, got %q", f.adapter.lastLoaded())
	}

	g := newFixture(t, 30, 5)
	if err := g.machine.Restore(Selection{User: "Mia", VideoIDs: []string{"removed0000"}}); !errors.Is(err, ErrUnknownVideo) {
		t.Errorf("expected ErrUnknownVideo, got %v", err)
	}
}

func TestPlayerReadyReplaysCurrentVideo(t *testing.T) {
	f := newFixture(t, 30, 5)
	f.start(t, "XqZsoesa55w")

	f.machine.PlayerReady()
	if len(f.adapter.loaded) != 2 || f.adapter.lastLoaded() != "XqZsoesa55w" {
		t.Errorf("expected current video reloaded, got %v", f.adapter.loaded)
	}
}

func TestSnapshotProgress(t *testing.T) {
	f := newFixture(t, 1, 0)
	f.start(t, "XqZsoesa55w")
	f.ticks(30)

	snap := f.machine.Snapshot()
	if snap.ProgressPercent != 50 {
		t.Errorf("expected 50%%, got %v", snap.ProgressPercent)
	}
	if snap.RemainingSeconds != 30 || snap.LimitSeconds != 60 {
		t.Errorf("unexpected remaining/limit %d/%d", snap.RemainingSeconds, snap.LimitSeconds)
	}
	if snap.Current == nil || snap.Current.Title != "Baby Shark" {
		t.Errorf("unexpected current %+v", snap.Current)
	}
}

func TestLowerLimitMidSessionLocksOnNextTick(t *testing.T) {
	f := newFixture(t, 30, 5)
	f.start(t, "XqZsoesa55w")
	f.ticks(120)

	f.settings.s.TimeLimitMinutes = 1
	f.settings.s.WarningLeadMinutes = 0
	f.machine.Tick()

	if f.machine.State() != StateLocked {
		t.Errorf("expected lock after limit lowered, got %s", f.machine.State())
	}
}
