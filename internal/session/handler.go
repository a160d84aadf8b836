package session

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tubita/tubita/internal/httputil"
	"github.com/tubita/tubita/internal/validate"
)

// Throttle limits unlock attempts per client.
type Throttle interface {
	Attempt(key string) error
	RetryAfter() int
}

// Locator names the network location of a client address.
type Locator interface {
	Location(ip string) string
}

type Handler struct {
	runner   *Runner
	throttle Throttle
	locator  Locator
}

func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

func (h *Handler) SetThrottle(t Throttle) {
	h.throttle = t
}

func (h *Handler) SetLocator(l Locator) {
	h.locator = l
}

func (h *Handler) device(r *http.Request) string {
	label := httputil.DeviceLabel(r)
	if h.locator == nil {
		return label
	}
	if loc := h.locator.Location(httputil.ClientIP(r)); loc != "" {
		return label + " (" + loc + ")"
	}
	return label
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrWrongPassword):
		return http.StatusForbidden
	case errors.Is(err, ErrLocked), errors.Is(err, ErrSessionActive), errors.Is(err, ErrNoSession),
		errors.Is(err, ErrNotSelecting):
		return http.StatusConflict
	case errors.Is(err, ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// apply runs fn on the event loop and writes the resulting snapshot, or the
// error fn returned.
func (h *Handler) apply(w http.ResponseWriter, r *http.Request, fn func(*Machine) error) {
	var (
		opErr error
		snap  Snapshot
	)
	err := h.runner.Do(r.Context(), func(m *Machine) {
		opErr = fn(m)
		snap = m.Snapshot()
	})
	if err != nil {
		slog.Error("session: loop unavailable", "error", err)
		httputil.WriteError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	if opErr != nil {
		httputil.WriteError(w, statusFor(opErr), opErr.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(*Machine) error { return nil })
}

func (h *Handler) OpenPicker(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, (*Machine).OpenPicker)
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.apply(w, r, func(m *Machine) error { return m.Toggle(id) })
}

type startRequest struct {
	User     string   `json:"user"`
	VideoIDs []string `json:"videoIds"`
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	if msg := validate.UserName(strings.TrimSpace(req.User)); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	start := StartRequest{User: req.User, VideoIDs: req.VideoIDs, Device: h.device(r)}
	h.apply(w, r, func(m *Machine) error { return m.Start(start) })
}

func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, (*Machine).Next)
}

func (h *Handler) Previous(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, (*Machine).Previous)
}

type unlockRequest struct {
	Password string `json:"password"`
}

func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	if h.throttle != nil {
		if err := h.throttle.Attempt(httputil.ClientIP(r)); err != nil {
			w.Header().Set("Retry-After", strconv.Itoa(h.throttle.RetryAfter()))
			httputil.WriteError(w, http.StatusTooManyRequests, err.Error())
			return
		}
	}
	h.apply(w, r, func(m *Machine) error { return m.Unlock(req.Password) })
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, (*Machine).Logout)
}
