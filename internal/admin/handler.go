// Package admin serves the password-protected playlist and settings
// management API.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tubita/tubita/internal/appstate"
	"github.com/tubita/tubita/internal/auth"
	"github.com/tubita/tubita/internal/gate"
	"github.com/tubita/tubita/internal/history"
	"github.com/tubita/tubita/internal/httputil"
	"github.com/tubita/tubita/internal/importer"
	"github.com/tubita/tubita/internal/validate"
)

const defaultHistoryLimit = 20

type Handler struct {
	state     *appstate.State
	gate      *gate.Gate
	importer  *importer.Importer
	history   *history.Log
	lookup    importer.Lookup
	jwtSecret string
	slackURL  string
	now       func() time.Time
}

func NewHandler(state *appstate.State, g *gate.Gate, imp *importer.Importer, hist *history.Log, jwtSecret string) *Handler {
	return &Handler{
		state:     state,
		gate:      g,
		importer:  imp,
		history:   hist,
		jwtSecret: jwtSecret,
		now:       time.Now,
	}
}

// SetLookup enables metadata enrichment for added videos.
func (h *Handler) SetLookup(l importer.Lookup) {
	h.lookup = l
}

// SetSlackWebhookURL enables the Slack connection test endpoint.
func (h *Handler) SetSlackWebhookURL(url string) {
	h.slackURL = url
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// Login re-verifies the admin password and issues a short-lived token for
// this admin visit.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	if msg := validate.Password(req.Password); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.gate.Attempt(httputil.ClientIP(r)); err != nil {
		w.Header().Set("Retry-After", strconv.Itoa(h.gate.RetryAfter()))
		httputil.WriteError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	if !h.gate.Verify(req.Password) {
		slog.Warn("admin: login failed", "client", httputil.ClientIP(r))
		httputil.WriteError(w, http.StatusUnauthorized, gate.ErrWrongPassword.Error())
		return
	}

	token, expires, err := auth.GenerateAdminToken(h.jwtSecret, h.now())
	if err != nil {
		slog.Error("admin: failed to issue token", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	slog.Info("admin: login", "client", httputil.ClientIP(r))
	httputil.WriteJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires.UTC().Format(time.RFC3339)})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, http.StatusBadRequest, "limit must be a non-negative number")
			return
		}
		limit = min(n, history.MaxRecords)
	}
	httputil.WriteJSON(w, http.StatusOK, h.history.List(limit))
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func audit(r *http.Request, msg string, args ...any) {
	args = append(args, "token_id", auth.TokenIDFromContext(r.Context()))
	slog.Info(msg, args...)
}
