package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tubita/tubita/internal/appstate"
	"github.com/tubita/tubita/internal/gate"
	"github.com/tubita/tubita/internal/httputil"
	"github.com/tubita/tubita/internal/importer"
	"github.com/tubita/tubita/internal/settings"
	"github.com/tubita/tubita/internal/slack"
	"github.com/tubita/tubita/internal/validate"
)

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.state.Settings().Redacted())
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.Update
	if !httputil.ReadJSON(w, r, &req) {
		return
	}

	updated, err := h.state.UpdateSettings(r.Context(), req.Apply)
	if errors.Is(err, settings.ErrInvalid) {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("admin: failed to save settings", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	audit(r, "admin: settings updated",
		"time_limit_minutes", updated.TimeLimitMinutes,
		"warning_lead_minutes", updated.WarningLeadMinutes,
		"max_videos_per_session", updated.MaxVideosPerSession,
	)
	httputil.WriteJSON(w, http.StatusOK, updated.Redacted())
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	if msg := validate.Password(req.NewPassword); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	err := h.gate.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, gate.ErrWrongPassword):
		httputil.WriteError(w, http.StatusForbidden, "current password is incorrect")
		return
	case errors.Is(err, gate.ErrPasswordTooShort), errors.Is(err, gate.ErrPasswordTooLong):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	default:
		slog.Error("admin: failed to change password", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to change password")
		return
	}

	audit(r, "admin: password changed")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetAutoImport(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.state.AutoImport())
}

func (h *Handler) PutAutoImport(w http.ResponseWriter, r *http.Request) {
	var req appstate.AutoImport
	if !httputil.ReadJSON(w, r, &req) {
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if msg := validate.ImportURL(req.URL); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	mode, err := importer.ParseMode(req.Mode)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Mode = string(mode)
	if req.Enabled {
		if _, err := importer.NormalizeURL(req.URL); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.state.SaveAutoImport(r.Context(), req); err != nil {
		slog.Error("admin: failed to save auto-import", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to save auto-import")
		return
	}
	audit(r, "admin: auto-import updated", "enabled", req.Enabled, "mode", req.Mode)
	httputil.WriteJSON(w, http.StatusOK, req)
}

// TestSlack posts a test message to the configured Slack webhook.
func (h *Handler) TestSlack(w http.ResponseWriter, r *http.Request) {
	if h.slackURL == "" {
		httputil.WriteError(w, http.StatusNotFound, "slack notifications are not configured")
		return
	}
	if err := slack.SendTestMessage(r.Context(), h.slackURL); err != nil {
		slog.Warn("admin: slack test failed", "error", err)
		httputil.WriteError(w, http.StatusBadGateway, "slack test message failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
