package playlist

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidID  = errors.New("invalid video id or URL")
	ErrDuplicate  = errors.New("video already in playlist")
	ErrNotFound   = errors.New("video not in playlist")
	ErrEmptyTitle = errors.New("video title is required")
	ErrOutOfRange = errors.New("video cannot move further")
)

// VideoEntry is one approved video. Its identity is ID.
type VideoEntry struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	ThumbnailURL    string `json:"thumbnailUrl"`
	ChannelTitle    string `json:"channelTitle,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// Playlist is the ordered list of approved videos. Order defines the default
// playback order and IDs are unique.
type Playlist []VideoEntry

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?(?:[^#\s]*&)?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/shorts/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^([a-zA-Z0-9_-]{11})$`),
}

// ExtractVideoID accepts a bare 11-character id or a watch, short, or embed URL.
func ExtractVideoID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, p := range idPatterns {
		if m := p.FindStringSubmatch(s); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func ThumbnailURL(id string) string {
	return "https://img.youtube.com/vi/" + id + "/hqdefault.jpg"
}

// Placeholder builds the minimal entry used when metadata cannot be fetched.
func Placeholder(id, title string) VideoEntry {
	if title == "" {
		title = id
	}
	return VideoEntry{ID: id, Title: title, ThumbnailURL: ThumbnailURL(id)}
}

func (p Playlist) Index(id string) int {
	for i, v := range p {
		if v.ID == id {
			return i
		}
	}
	return -1
}

func (p Playlist) Find(id string) (VideoEntry, bool) {
	if i := p.Index(id); i >= 0 {
		return p[i], true
	}
	return VideoEntry{}, false
}

func (p Playlist) Clone() Playlist {
	if p == nil {
		return nil
	}
	out := make(Playlist, len(p))
	copy(out, p)
	return out
}

// Validate reports the first entry that breaks the playlist invariants.
func (p Playlist) Validate() error {
	seen := make(map[string]struct{}, len(p))
	for i, v := range p {
		if v.ID == "" {
			return fmt.Errorf("entry %d: %w", i, ErrInvalidID)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("entry %d (%s): %w", i, v.ID, ErrDuplicate)
		}
		seen[v.ID] = struct{}{}
	}
	return nil
}

func (p *Playlist) Add(e VideoEntry) error {
	if e.ID == "" {
		return ErrInvalidID
	}
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if p.Index(e.ID) >= 0 {
		return ErrDuplicate
	}
	*p = append(*p, e)
	return nil
}

func (p *Playlist) Remove(id string) error {
	i := p.Index(id)
	if i < 0 {
		return ErrNotFound
	}
	*p = append((*p)[:i], (*p)[i+1:]...)
	return nil
}

func (p *Playlist) UpdateTitle(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	i := p.Index(id)
	if i < 0 {
		return ErrNotFound
	}
	(*p)[i].Title = title
	return nil
}

// Move swaps the entry with its neighbour in the given direction.
func (p *Playlist) Move(id string, dir Direction) error {
	i := p.Index(id)
	if i < 0 {
		return ErrNotFound
	}
	var j int
	switch dir {
	case Up:
		j = i - 1
	case Down:
		j = i + 1
	default:
		return fmt.Errorf("unknown direction %q", dir)
	}
	if j < 0 || j >= len(*p) {
		return ErrOutOfRange
	}
	(*p)[i], (*p)[j] = (*p)[j], (*p)[i]
	return nil
}

// Merge appends entries whose IDs are not already present and returns how
// many were added.
func (p *Playlist) Merge(entries []VideoEntry) int {
	added := 0
	for _, e := range entries {
		if err := p.Add(e); err == nil {
			added++
		}
	}
	return added
}
