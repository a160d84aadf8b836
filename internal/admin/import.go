package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tubita/tubita/internal/httputil"
	"github.com/tubita/tubita/internal/importer"
	"github.com/tubita/tubita/internal/validate"
)

type importRequest struct {
	URL  string `json:"url"`
	Text string `json:"text"`
	Mode string `json:"mode"`
}

// Import replaces or extends the playlist from a remote URL or pasted text.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	mode, err := importer.ParseMode(req.Mode)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	url := strings.TrimSpace(req.URL)
	switch {
	case url != "" && req.Text != "":
		httputil.WriteError(w, http.StatusBadRequest, "provide either url or text, not both")
		return
	case url == "" && strings.TrimSpace(req.Text) == "":
		httputil.WriteError(w, http.StatusBadRequest, "url or text is required")
		return
	}
	for _, msg := range []string{validate.ImportURL(url), validate.ImportText(req.Text)} {
		if msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
	}

	var res importer.Result
	if url != "" {
		res, err = h.importer.ImportURL(r.Context(), url, mode)
	} else {
		res, err = h.importer.ImportText(r.Context(), req.Text, mode)
	}
	switch {
	case err == nil:
	case errors.Is(err, importer.ErrInvalidURL), errors.Is(err, importer.ErrNoVideos):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, importer.ErrFetch):
		slog.Warn("admin: import fetch failed", "error", err)
		httputil.WriteError(w, http.StatusBadGateway, "failed to fetch playlist")
		return
	default:
		slog.Error("admin: import failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to import playlist")
		return
	}

	audit(r, "admin: playlist imported", "mode", mode, "added", res.Added, "failed", res.Failed)
	httputil.WriteJSON(w, http.StatusOK, res)
}
