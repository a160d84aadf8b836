package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tubita/tubita/internal/httputil"
	"github.com/tubita/tubita/internal/playlist"
	"github.com/tubita/tubita/internal/validate"
)

const lookupTimeout = 10 * time.Second

type addVideoRequest struct {
	Video string `json:"video"`
	Title string `json:"title"`
}

type updateVideoRequest struct {
	Title string `json:"title"`
}

type moveVideoRequest struct {
	Direction playlist.Direction `json:"direction"`
}

func playlistStatus(err error) int {
	switch {
	case errors.Is(err, playlist.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, playlist.ErrInvalidID), errors.Is(err, playlist.ErrEmptyTitle), errors.Is(err, playlist.ErrDuplicate),
		errors.Is(err, playlist.ErrOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writePlaylistError(w http.ResponseWriter, err error, action string) {
	status := playlistStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("admin: playlist update failed", "action", action, "error", err)
		httputil.WriteError(w, status, "failed to "+action)
		return
	}
	httputil.WriteError(w, status, err.Error())
}

func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos := h.state.Playlist()
	if videos == nil {
		videos = playlist.Playlist{}
	}
	httputil.WriteJSON(w, http.StatusOK, videos)
}

// resolve fetches metadata for id, falling back to a placeholder entry. The
// bool reports whether the placeholder was used.
func (h *Handler) resolve(ctx context.Context, id, title string) (playlist.VideoEntry, bool) {
	if h.lookup == nil {
		return playlist.Placeholder(id, title), true
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	entry, err := h.lookup.Lookup(ctx, id)
	if err != nil {
		slog.Warn("admin: metadata lookup failed", "video_id", id, "timeout", isTimeout(err), "error", err)
		return playlist.Placeholder(id, title), true
	}
	if title != "" {
		entry.Title = title
	}
	return entry, false
}

func (h *Handler) AddVideo(w http.ResponseWriter, r *http.Request) {
	var req addVideoRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	for _, msg := range []string{validate.VideoInput(req.Video), validate.Title(title)} {
		if msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
	}

	id, ok := playlist.ExtractVideoID(req.Video)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, playlist.ErrInvalidID.Error())
		return
	}
	if _, exists := h.state.Lookup(id); exists {
		httputil.WriteError(w, http.StatusBadRequest, playlist.ErrDuplicate.Error())
		return
	}

	entry, placeholder := h.resolve(r.Context(), id, title)
	if _, err := h.state.UpdatePlaylist(r.Context(), func(p *playlist.Playlist) error {
		return p.Add(entry)
	}); err != nil {
		writePlaylistError(w, err, "add video")
		return
	}

	audit(r, "admin: video added", "video_id", id, "placeholder", placeholder)
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) UpdateVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateVideoRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if msg := validate.Title(title); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	updated, err := h.state.UpdatePlaylist(r.Context(), func(p *playlist.Playlist) error {
		return p.UpdateTitle(id, title)
	})
	if err != nil {
		writePlaylistError(w, err, "update video")
		return
	}

	entry, _ := updated.Find(id)
	audit(r, "admin: video renamed", "video_id", id)
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.state.UpdatePlaylist(r.Context(), func(p *playlist.Playlist) error {
		return p.Remove(id)
	}); err != nil {
		writePlaylistError(w, err, "delete video")
		return
	}

	audit(r, "admin: video deleted", "video_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MoveVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req moveVideoRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	if req.Direction != playlist.Up && req.Direction != playlist.Down {
		httputil.WriteError(w, http.StatusBadRequest, "direction must be up or down")
		return
	}

	updated, err := h.state.UpdatePlaylist(r.Context(), func(p *playlist.Playlist) error {
		return p.Move(id, req.Direction)
	})
	if err != nil {
		writePlaylistError(w, err, "move video")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, updated)
}
