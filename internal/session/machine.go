package session

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tubita/tubita/internal/playlist"
	"github.com/tubita/tubita/internal/settings"
)

// Adapter drives the embedded video widget.
type Adapter interface {
	Load(videoID string)
	Play()
	Pause()
	Stop()
	State() PlayerState
}

type SettingsSource interface {
	Settings() settings.Settings
}

type Catalog interface {
	Lookup(id string) (playlist.VideoEntry, bool)
}

type PasswordChecker interface {
	Verify(candidate string) bool
}

type SelectionStore interface {
	SaveSelection(ctx context.Context, sel Selection) error
	ClearSelection(ctx context.Context) error
}

const selectionWriteTimeout = 5 * time.Second

// Machine is the session state machine and watch-time monitor. It is not safe
// for concurrent use; a Runner serializes every call onto one goroutine.
type Machine struct {
	adapter    Adapter
	settings   SettingsSource
	catalog    Catalog
	checker    PasswordChecker
	timer      Timer
	selections SelectionStore
	observers  []Observer
	now        func() time.Time

	selecting bool
	picked    []string
	sess      *Session
	player    PlayerState
}

func NewMachine(adapter Adapter, source SettingsSource, catalog Catalog, checker PasswordChecker, timer Timer) *Machine {
	return &Machine{
		adapter:  adapter,
		settings: source,
		catalog:  catalog,
		checker:  checker,
		timer:    timer,
		now:      time.Now,
		player:   PlayerUnstarted,
	}
}

func (m *Machine) SetSelectionStore(s SelectionStore) {
	m.selections = s
}

func (m *Machine) AddObserver(o Observer) {
	m.observers = append(m.observers, o)
}

func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Machine) State() State {
	switch {
	case m.sess == nil && m.selecting:
		return StateSelecting
	case m.sess == nil:
		return StateUnstarted
	case m.sess.Locked:
		return StateLocked
	case m.sess.WarningFired:
		return StateWarning
	default:
		return StatePlaying
	}
}

// OpenPicker moves an idle machine to Selecting.
func (m *Machine) OpenPicker() error {
	if m.sess != nil {
		if m.sess.Locked {
			return ErrLocked
		}
		return ErrSessionActive
	}
	if !m.selecting {
		m.selecting = true
		m.picked = nil
		m.emit(EventChanged)
	}
	return nil
}

// Toggle adds or removes a video from the picker selection.
func (m *Machine) Toggle(id string) error {
	if m.State() != StateSelecting {
		return ErrNotSelecting
	}
	if i := slices.Index(m.picked, id); i >= 0 {
		m.picked = slices.Delete(m.picked, i, i+1)
		m.emit(EventChanged)
		return nil
	}
	if _, ok := m.catalog.Lookup(id); !ok {
		return ErrUnknownVideo
	}
	if len(m.picked) >= m.settings.Settings().MaxVideosPerSession {
		return ErrSelectionFull
	}
	m.picked = append(m.picked, id)
	m.emit(EventChanged)
	return nil
}

func (m *Machine) Picker() PickerView {
	limit := m.settings.Settings().MaxVideosPerSession
	selected := append([]string{}, m.picked...)
	return PickerView{
		Selected:      selected,
		Max:           limit,
		CanSelectMore: len(selected) < limit,
		CanStart:      len(selected) > 0,
	}
}

// Start builds a session from the request. An empty VideoIDs falls back to
// the picker selection.
func (m *Machine) Start(req StartRequest) error {
	if m.sess != nil {
		if m.sess.Locked {
			return ErrLocked
		}
		return ErrSessionActive
	}
	ids := req.VideoIDs
	if len(ids) == 0 {
		ids = m.picked
	}
	sess, err := m.build(req.User, ids)
	if err != nil {
		return err
	}
	sess.Device = req.Device

	m.begin(sess)
	m.saveSelection(Selection{User: sess.User, VideoIDs: sess.videoIDs()})
	return nil
}

// Restore starts a fresh session from a persisted selection. Elapsed time
// always starts at zero.
func (m *Machine) Restore(sel Selection) error {
	if m.sess != nil {
		return ErrSessionActive
	}
	sess, err := m.build(sel.User, sel.VideoIDs)
	if err != nil {
		return err
	}
	m.begin(sess)
	return nil
}

func (m *Machine) build(user string, ids []string) (*Session, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, ErrUserRequired
	}
	if len(ids) == 0 {
		return nil, ErrNoVideos
	}
	if len(ids) > m.settings.Settings().MaxVideosPerSession {
		return nil, ErrSelectionFull
	}
	videos := make([]playlist.VideoEntry, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, ErrDuplicateVideo
		}
		seen[id] = struct{}{}
		v, ok := m.catalog.Lookup(id)
		if !ok {
			return nil, ErrUnknownVideo
		}
		videos = append(videos, v)
	}
	return &Session{
		ID:        uuid.NewString(),
		User:      user,
		Videos:    videos,
		StartedAt: m.now(),
	}, nil
}

func (m *Machine) begin(sess *Session) {
	m.sess = sess
	m.selecting = false
	m.picked = nil
	m.player = PlayerUnstarted

	slog.Info("session: started", "session_id", sess.ID, "user", sess.User, "videos", len(sess.Videos))
	m.emit(EventStarted)
	m.checkWarning()
	m.adapter.Load(sess.current().ID)
	m.syncTimer()
}

// Tick advances the watch-time counter by one second. It is ignored unless a
// session is unlocked and the player reports playing.
func (m *Machine) Tick() {
	if m.sess == nil || m.sess.Locked || m.player != PlayerPlaying {
		return
	}
	m.sess.WatchedSeconds++
	m.sess.TotalWatchedSeconds++
	m.emit(EventTick)

	m.checkWarning()
	if m.sess.WatchedSeconds >= m.settings.Settings().LimitSeconds() {
		m.lock(ReasonTimeExpired)
	}
}

func (m *Machine) checkWarning() {
	if m.sess.WarningFired {
		return
	}
	if m.sess.WatchedSeconds >= m.settings.Settings().WarningThresholdSeconds() {
		m.sess.WarningFired = true
		slog.Info("session: warning", "session_id", m.sess.ID, "watched_seconds", m.sess.WatchedSeconds)
		m.emit(EventWarning)
	}
}

// lock pauses the adapter and stops the timer in the same step that sets
// Locked, so no tick can count after it.
func (m *Machine) lock(reason Reason) {
	m.sess.Locked = true
	m.sess.LockReason = reason
	m.adapter.Pause()
	m.timer.Stop()
	m.player = PlayerPaused

	slog.Info("session: locked", "session_id", m.sess.ID, "reason", reason, "watched_seconds", m.sess.WatchedSeconds)
	if reason == ReasonPlaylistExhausted {
		m.emit(EventExhausted)
	} else {
		m.emit(EventExpired)
	}
}

// PlayerReady re-sends the current video to a freshly loaded widget.
func (m *Machine) PlayerReady() {
	m.player = m.adapter.State()
	if m.sess == nil {
		return
	}
	m.adapter.Load(m.sess.current().ID)
	if m.sess.Locked {
		m.adapter.Pause()
	}
	m.syncTimer()
}

// PlayerChanged handles a playback state notification from the adapter.
func (m *Machine) PlayerChanged(ps PlayerState) {
	m.player = ps
	if m.sess == nil {
		return
	}
	if m.sess.Locked {
		if ps == PlayerPlaying {
			m.adapter.Pause()
		}
		return
	}
	if ps == PlayerEnded {
		m.advance()
		return
	}
	m.syncTimer()
	m.emit(EventChanged)
}

func (m *Machine) advance() {
	if m.sess.CurrentIndex+1 >= len(m.sess.Videos) {
		m.lock(ReasonPlaylistExhausted)
		return
	}
	m.sess.CurrentIndex++
	m.adapter.Load(m.sess.current().ID)
	m.syncTimer()
	m.emit(EventAdvanced)
}

// Next skips to the following video without touching the budget.
func (m *Machine) Next() error {
	if err := m.requireUnlocked(); err != nil {
		return err
	}
	if m.sess.CurrentIndex+1 >= len(m.sess.Videos) {
		return ErrNoNextVideo
	}
	m.sess.CurrentIndex++
	m.adapter.Load(m.sess.current().ID)
	m.emit(EventAdvanced)
	return nil
}

func (m *Machine) Previous() error {
	if err := m.requireUnlocked(); err != nil {
		return err
	}
	if m.sess.CurrentIndex == 0 {
		return ErrNoPreviousVideo
	}
	m.sess.CurrentIndex--
	m.adapter.Load(m.sess.current().ID)
	m.emit(EventAdvanced)
	return nil
}

func (m *Machine) requireUnlocked() error {
	if m.sess == nil {
		return ErrNoSession
	}
	if m.sess.Locked {
		return ErrLocked
	}
	return nil
}

// Unlock checks the password and resets a locked session. A correct password
// on an unlocked machine changes nothing.
//
// After a time expiry the same session resumes with a fresh budget. After
// the playlist ran out there is nothing left to play, so the machine goes
// back to the picker.
func (m *Machine) Unlock(password string) error {
	if !m.checker.Verify(password) {
		return ErrWrongPassword
	}
	if m.sess == nil || !m.sess.Locked {
		return nil
	}

	reason := m.sess.LockReason
	m.sess.Locked = false
	m.sess.LockReason = ""
	m.sess.WatchedSeconds = 0
	m.sess.WarningFired = false
	slog.Info("session: unlocked", "session_id", m.sess.ID, "reason", reason)
	m.emit(EventUnlocked)

	if reason == ReasonPlaylistExhausted {
		m.teardown()
		m.selecting = true
		m.emit(EventChanged)
		return nil
	}

	m.checkWarning()
	m.adapter.Play()
	m.syncTimer()
	return nil
}

// Logout ends the session and returns to Unstarted. A locked session has to
// be unlocked first.
func (m *Machine) Logout() error {
	if m.sess != nil {
		if m.sess.Locked {
			return ErrLocked
		}
		slog.Info("session: ended", "session_id", m.sess.ID, "watched_seconds", m.sess.TotalWatchedSeconds)
		m.emit(EventEnded)
		m.teardown()
	}
	m.selecting = false
	m.picked = nil
	m.emit(EventChanged)
	return nil
}

func (m *Machine) teardown() {
	m.timer.Stop()
	m.adapter.Stop()
	m.sess = nil
	m.picked = nil
	m.clearSelection()
}

// Shutdown stops the timer without touching the session.
func (m *Machine) Shutdown() {
	m.timer.Stop()
}

// syncTimer runs the timer exactly while the session can accumulate time.
func (m *Machine) syncTimer() {
	if m.sess != nil && !m.sess.Locked && m.player == PlayerPlaying {
		m.timer.Start()
		return
	}
	m.timer.Stop()
}

func (m *Machine) saveSelection(sel Selection) {
	if m.selections == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), selectionWriteTimeout)
	defer cancel()
	if err := m.selections.SaveSelection(ctx, sel); err != nil {
		slog.Error("session: failed to save selection", "error", err)
	}
}

func (m *Machine) clearSelection() {
	if m.selections == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), selectionWriteTimeout)
	defer cancel()
	if err := m.selections.ClearSelection(ctx); err != nil {
		slog.Error("session: failed to clear selection", "error", err)
	}
}

func (m *Machine) Snapshot() Snapshot {
	st := m.settings.Settings()
	snap := Snapshot{
		State:        m.State(),
		LimitSeconds: st.LimitSeconds(),
		Player:       m.player,
	}
	if m.selecting {
		picker := m.Picker()
		snap.Picker = &picker
	}
	if m.sess == nil {
		snap.RemainingSeconds = snap.LimitSeconds
		return snap
	}

	s := m.sess
	current := s.current()
	started := s.StartedAt
	snap.SessionID = s.ID
	snap.User = s.User
	snap.Videos = append([]playlist.VideoEntry(nil), s.Videos...)
	snap.CurrentIndex = s.CurrentIndex
	snap.Current = &current
	snap.WatchedSeconds = s.WatchedSeconds
	snap.TotalWatchedSeconds = s.TotalWatchedSeconds
	snap.RemainingSeconds = max(snap.LimitSeconds-s.WatchedSeconds, 0)
	if snap.LimitSeconds > 0 {
		snap.ProgressPercent = min(float64(s.WatchedSeconds)*100/float64(snap.LimitSeconds), 100)
	}
	snap.WarningFired = s.WarningFired
	snap.Locked = s.Locked
	snap.LockReason = s.LockReason
	snap.StartedAt = &started
	snap.Device = s.Device
	return snap
}

func (m *Machine) emit(t EventType) {
	if len(m.observers) == 0 {
		return
	}
	e := Event{Type: t, At: m.now(), Snapshot: m.Snapshot()}
	for _, o := range m.observers {
		o.Observe(e)
	}
}
