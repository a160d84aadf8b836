package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tubita/tubita/internal/appstate"
	"github.com/tubita/tubita/internal/playlist"
	"github.com/tubita/tubita/internal/validate"
)

const maxBodyBytes = 1 << 20

var (
	ErrInvalidURL  = errors.New("invalid playlist URL")
	ErrInvalidMode = errors.New("mode must be replace or append")
	ErrNoVideos    = errors.New("no valid videos found")
	ErrFetch       = errors.New("failed to fetch playlist")
)

type Mode string

const (
	ModeReplace Mode = "replace"
	ModeAppend  Mode = "append"
)

// ParseMode accepts an empty string as replace.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeReplace:
		return ModeReplace, nil
	case ModeAppend:
		return ModeAppend, nil
	}
	return "", ErrInvalidMode
}

// Line is one parsed import line.
type Line struct {
	ID    string
	Title string
}

// Parse reads the line-oriented import format: an id or URL, optionally
// followed by "|" and a custom title. Blank lines and lines starting with #
// are ignored. Lines without a recognizable id, or with a title over the
// length limit, are counted as skipped.
func Parse(text string) ([]Line, int) {
	var (
		lines   []Line
		skipped int
	)
	for raw := range strings.Lines(text) {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		ref, title, _ := strings.Cut(trimmed, "|")
		id, ok := playlist.ExtractVideoID(ref)
		if !ok {
			skipped++
			continue
		}
		title = strings.TrimSpace(title)
		if validate.Title(title) != "" {
			skipped++
			continue
		}
		lines = append(lines, Line{ID: id, Title: title})
	}
	return lines, skipped
}

// NormalizeURL prepends https:// when the URL has no http(s) scheme.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

type Lookup interface {
	Lookup(ctx context.Context, id string) (playlist.VideoEntry, error)
}

type PlaylistStore interface {
	UpdatePlaylist(ctx context.Context, fn func(*playlist.Playlist) error) (playlist.Playlist, error)
}

type Result struct {
	Mode       Mode                  `json:"mode"`
	Entries    []playlist.VideoEntry `json:"entries"`
	Processed  int                   `json:"processed"`
	Failed     int                   `json:"failed"`
	Skipped    int                   `json:"skipped"`
	Duplicates int                   `json:"duplicates"`
	Added      int                   `json:"added"`
	Total      int                   `json:"total"`
}

type Importer struct {
	store  PlaylistStore
	lookup Lookup
	client *http.Client
}

func New(store PlaylistStore) *Importer {
	return &Importer{
		store:  store,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetLookup enables metadata enrichment. Without it every entry is a
// placeholder.
func (i *Importer) SetLookup(l Lookup) {
	i.lookup = l
}

func (i *Importer) SetHTTPClient(c *http.Client) {
	i.client = c
}

// Fetch downloads the raw playlist text.
func (i *Importer) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w from %s: %w", ErrFetch, u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w from %s: status %d", ErrFetch, u, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w from %s: %w", ErrFetch, u, err)
	}
	return string(body), nil
}

// Resolve turns parsed lines into playlist entries. A failed lookup falls
// back to a placeholder entry and is counted in Failed.
func (i *Importer) Resolve(ctx context.Context, lines []Line) Result {
	var res Result
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, dup := seen[line.ID]; dup {
			res.Duplicates++
			continue
		}
		seen[line.ID] = struct{}{}

		if i.lookup == nil {
			res.Entries = append(res.Entries, playlist.Placeholder(line.ID, line.Title))
			res.Processed++
			continue
		}

		entry, err := i.lookup.Lookup(ctx, line.ID)
		if err != nil {
			slog.Warn("importer: metadata lookup failed", "video_id", line.ID, "error", err)
			res.Entries = append(res.Entries, playlist.Placeholder(line.ID, line.Title))
			res.Failed++
			continue
		}
		if line.Title != "" {
			entry.Title = line.Title
		}
		res.Entries = append(res.Entries, entry)
		res.Processed++
	}
	return res
}

func (i *Importer) ImportText(ctx context.Context, text string, mode Mode) (Result, error) {
	lines, skipped := Parse(text)
	res := i.Resolve(ctx, lines)
	res.Mode = mode
	res.Skipped = skipped

	if mode == ModeReplace && len(res.Entries) == 0 {
		return res, ErrNoVideos
	}

	updated, err := i.store.UpdatePlaylist(ctx, func(p *playlist.Playlist) error {
		if mode == ModeReplace {
			var fresh playlist.Playlist
			res.Added = fresh.Merge(res.Entries)
			if res.Added == 0 {
				return ErrNoVideos
			}
			*p = fresh
			return nil
		}
		res.Added = p.Merge(res.Entries)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("save playlist: %w", err)
	}
	res.Total = len(updated)

	slog.Info("importer: import finished",
		"mode", mode,
		"processed", res.Processed,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"added", res.Added,
	)
	return res, nil
}

func (i *Importer) ImportURL(ctx context.Context, rawURL string, mode Mode) (Result, error) {
	text, err := i.Fetch(ctx, rawURL)
	if err != nil {
		return Result{Mode: mode}, err
	}
	return i.ImportText(ctx, text, mode)
}

// Auto runs the configured startup import. It reports false when auto-import
// is disabled.
func (i *Importer) Auto(ctx context.Context, cfg appstate.AutoImport) (Result, bool, error) {
	if !cfg.Enabled || strings.TrimSpace(cfg.URL) == "" {
		return Result{}, false, nil
	}
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return Result{}, true, err
	}
	res, err := i.ImportURL(ctx, cfg.URL, mode)
	return res, true, err
}
