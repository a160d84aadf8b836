package appstate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tubita/tubita/internal/kv"
	"github.com/tubita/tubita/internal/playlist"
	"github.com/tubita/tubita/internal/session"
	"github.com/tubita/tubita/internal/settings"
)

const (
	KeyPlaylist   = "playlist"
	KeySettings   = "settings"
	KeySelection  = "session-selection"
	KeyAutoImport = "auto-import"
)

// AutoImport controls the playlist import that runs at startup.
type AutoImport struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Mode    string `json:"mode,omitempty"`
}

// State is the application state shared by the session machine and the
// admin handlers. Every mutation re-serializes the affected document in full
// and only commits it to memory once the store accepted the write.
type State struct {
	store kv.Store

	mu         sync.RWMutex
	settings   settings.Settings
	playlist   playlist.Playlist
	selection  *session.Selection
	autoImport AutoImport
}

// Load reads every document from the store. A document that is missing or
// fails to parse falls back to its defaults; only store errors are returned.
func Load(ctx context.Context, store kv.Store) (*State, error) {
	s := &State{store: store, settings: settings.Defaults()}

	var loaded settings.Settings
	ok, err := s.load(ctx, KeySettings, &loaded)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := loaded.Validate(); err != nil {
			slog.Warn("appstate: stored settings invalid, using defaults", "error", err)
		} else {
			s.settings = loaded
		}
	}

	var pl playlist.Playlist
	ok, err = s.load(ctx, KeyPlaylist, &pl)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := pl.Validate(); err != nil {
			slog.Warn("appstate: stored playlist invalid, starting empty", "error", err)
		} else {
			s.playlist = pl
		}
	}

	var sel session.Selection
	ok, err = s.load(ctx, KeySelection, &sel)
	if err != nil {
		return nil, err
	}
	if ok && sel.User != "" && len(sel.VideoIDs) > 0 {
		s.selection = &sel
	}

	var ai AutoImport
	ok, err = s.load(ctx, KeyAutoImport, &ai)
	if err != nil {
		return nil, err
	}
	if ok {
		s.autoImport = ai
	}

	return s, nil
}

func (s *State) load(ctx context.Context, key string, dst any) (bool, error) {
	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		slog.Warn("appstate: stored document corrupted, using defaults", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *State) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *State) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *State) Settings() settings.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings applies fn to a copy of the current settings, validates and
// persists the result.
func (s *State) UpdateSettings(ctx context.Context, fn func(settings.Settings) (settings.Settings, error)) (settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.settings)
	if err != nil {
		return settings.Settings{}, err
	}
	if err := next.Validate(); err != nil {
		return settings.Settings{}, err
	}
	if err := s.save(ctx, KeySettings, next); err != nil {
		return settings.Settings{}, err
	}
	s.settings = next
	return next, nil
}

// Playlist returns a copy of the approved playlist.
func (s *State) Playlist() playlist.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playlist.Clone()
}

// Lookup finds an approved video by id.
func (s *State) Lookup(id string) (playlist.VideoEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playlist.Find(id)
}

// UpdatePlaylist runs fn against a copy of the playlist and persists it when
// fn succeeds. A failing fn leaves both the store and memory untouched.
func (s *State) UpdatePlaylist(ctx context.Context, fn func(*playlist.Playlist) error) (playlist.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.playlist.Clone()
	if err := fn(&next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if next == nil {
		next = playlist.Playlist{}
	}
	if err := s.save(ctx, KeyPlaylist, next); err != nil {
		return nil, err
	}
	s.playlist = next
	return next.Clone(), nil
}

// Selection returns the persisted session selection, if any.
func (s *State) Selection() (session.Selection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selection == nil {
		return session.Selection{}, false
	}
	sel := *s.selection
	sel.VideoIDs = append([]string(nil), sel.VideoIDs...)
	return sel, true
}

func (s *State) SaveSelection(ctx context.Context, sel session.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel.VideoIDs = append([]string(nil), sel.VideoIDs...)
	if err := s.save(ctx, KeySelection, sel); err != nil {
		return err
	}
	s.selection = &sel
	return nil
}

// ClearSelection stores an empty selection so a restart comes up unstarted.
func (s *State) ClearSelection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(ctx, KeySelection, session.Selection{VideoIDs: []string{}}); err != nil {
		return err
	}
	s.selection = nil
	return nil
}

func (s *State) AutoImport() AutoImport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoImport
}

func (s *State) SaveAutoImport(ctx context.Context, cfg AutoImport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(ctx, KeyAutoImport, cfg); err != nil {
		return err
	}
	s.autoImport = cfg
	return nil
}
