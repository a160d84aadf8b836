package session

import (
	"errors"
	"time"

	"github.com/tubita/tubita/internal/playlist"
)

var (
	ErrLocked          = errors.New("session is locked")
	ErrNoSession       = errors.New("no active session")
	ErrSessionActive   = errors.New("a session is already running")
	ErrNotSelecting    = errors.New("picker is not open")
	ErrUserRequired    = errors.New("user name is required")
	ErrNoVideos        = errors.New("select at least one video")
	ErrSelectionFull   = errors.New("too many videos selected")
	ErrDuplicateVideo  = errors.New("video selected twice")
	ErrUnknownVideo    = errors.New("video is not in the playlist")
	ErrNoNextVideo     = errors.New("already at the last video")
	ErrNoPreviousVideo = errors.New("already at the first video")
	ErrWrongPassword   = errors.New("wrong password")
)

type State string

const (
	StateUnstarted State = "unstarted"
	StateSelecting State = "selecting"
	StatePlaying   State = "playing"
	StateWarning   State = "warning"
	StateLocked    State = "locked"
)

// Reason tells why a session is locked.
type Reason string

const (
	ReasonTimeExpired       Reason = "time_expired"
	ReasonPlaylistExhausted Reason = "playlist_exhausted"
)

// PlayerState is what the playback adapter reports about the embedded widget.
type PlayerState string

const (
	PlayerUnstarted PlayerState = "unstarted"
	PlayerPlaying   PlayerState = "playing"
	PlayerPaused    PlayerState = "paused"
	PlayerEnded     PlayerState = "ended"
)

func ParsePlayerState(s string) (PlayerState, bool) {
	switch ps := PlayerState(s); ps {
	case PlayerUnstarted, PlayerPlaying, PlayerPaused, PlayerEnded:
		return ps, true
	}
	return "", false
}

// Session is the running watch session. It is only touched from the machine's
// event loop.
type Session struct {
	ID           string
	User         string
	Videos       []playlist.VideoEntry
	CurrentIndex int

	// WatchedSeconds is the budget counter and is zeroed by an unlock.
	// TotalWatchedSeconds keeps counting across unlocks.
	WatchedSeconds      int
	TotalWatchedSeconds int

	WarningFired bool
	Locked       bool
	LockReason   Reason
	StartedAt    time.Time
	Device       string
}

func (s *Session) current() playlist.VideoEntry {
	return s.Videos[s.CurrentIndex]
}

func (s *Session) videoIDs() []string {
	ids := make([]string, len(s.Videos))
	for i, v := range s.Videos {
		ids[i] = v.ID
	}
	return ids
}

// Selection is the persisted part of a session: who is watching and what
// they picked. Elapsed time is never persisted.
type Selection struct {
	User     string   `json:"user"`
	VideoIDs []string `json:"videoIds"`
}

type StartRequest struct {
	User     string
	VideoIDs []string
	Device   string
}

type PickerView struct {
	Selected      []string `json:"selected"`
	Max           int      `json:"max"`
	CanSelectMore bool     `json:"canSelectMore"`
	CanStart      bool     `json:"canStart"`
}

// Snapshot is a read-only view of the machine for the UI, history and
// notifications.
type Snapshot struct {
	State               State                 `json:"state"`
	SessionID           string                `json:"sessionId,omitempty"`
	User                string                `json:"user,omitempty"`
	Videos              []playlist.VideoEntry `json:"videos,omitempty"`
	CurrentIndex        int                   `json:"currentIndex"`
	Current             *playlist.VideoEntry  `json:"current,omitempty"`
	WatchedSeconds      int                   `json:"watchedSeconds"`
	TotalWatchedSeconds int                   `json:"totalWatchedSeconds"`
	LimitSeconds        int                   `json:"limitSeconds"`
	RemainingSeconds    int                   `json:"remainingSeconds"`
	ProgressPercent     float64               `json:"progressPercent"`
	WarningFired        bool                  `json:"warningFired"`
	Locked              bool                  `json:"locked"`
	LockReason          Reason                `json:"lockReason,omitempty"`
	Player              PlayerState           `json:"player"`
	StartedAt           *time.Time            `json:"startedAt,omitempty"`
	Device              string                `json:"device,omitempty"`
	Picker              *PickerView           `json:"picker,omitempty"`
}

func (s Snapshot) VideoIDs() []string {
	ids := make([]string, len(s.Videos))
	for i, v := range s.Videos {
		ids[i] = v.ID
	}
	return ids
}

type EventType string

const (
	EventStarted   EventType = "started"
	EventTick      EventType = "tick"
	EventWarning   EventType = "warning"
	EventExpired   EventType = "expired"
	EventExhausted EventType = "exhausted"
	EventUnlocked  EventType = "unlocked"
	EventAdvanced  EventType = "advanced"
	EventEnded     EventType = "ended"
	EventChanged   EventType = "changed"
)

type Event struct {
	Type     EventType `json:"type"`
	At       time.Time `json:"at"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Observer receives machine events on the event loop. Implementations must
// not block.
type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
