package server

import (
	"context"
	"io/fs"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tubita/tubita/internal/admin"
	"github.com/tubita/tubita/internal/auth"
	"github.com/tubita/tubita/internal/docs"
	"github.com/tubita/tubita/internal/httputil"
	"github.com/tubita/tubita/internal/playlist"
	"github.com/tubita/tubita/internal/ratelimit"
	"github.com/tubita/tubita/internal/session"
	"github.com/tubita/tubita/internal/validate"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// PlaylistSource serves the approved playlist to the child view.
type PlaylistSource interface {
	Playlist() playlist.Playlist
}

type Config struct {
	Pinger     Pinger
	Playlist   PlaylistSource
	Session    *session.Handler
	Player     http.Handler
	Admin      *admin.Handler
	WebFS      fs.FS
	JWTSecret  string
	BaseURL    string
	EnableDocs bool
}

type Server struct {
	router         chi.Router
	pinger         Pinger
	playlist       PlaylistSource
	sessionHandler *session.Handler
	player         http.Handler
	adminHandler   *admin.Handler
	jwtSecret      string
	webFS          fs.FS
	enableDocs     bool
	limiters       []*ratelimit.Limiter
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{BaseURL: cfg.BaseURL}))

	if cfg.Admin != nil && cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required; set the environment variable")
	}

	s := &Server{
		router:         r,
		pinger:         cfg.Pinger,
		playlist:       cfg.Playlist,
		sessionHandler: cfg.Session,
		player:         cfg.Player,
		adminHandler:   cfg.Admin,
		jwtSecret:      cfg.JWTSecret,
		webFS:          cfg.WebFS,
		enableDocs:     cfg.EnableDocs,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the background cleanup of the rate limiters.
func (s *Server) Close() {
	for _, l := range s.limiters {
		l.Close()
	}
}

func (s *Server) newLimiter(perSecond float64, burst int) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(perSecond, burst)
	s.limiters = append(s.limiters, l)
	return l
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/limits", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, validate.FieldLimits())
	})

	if s.enableDocs {
		s.router.Get("/api/docs", docs.HandleDocs)
		s.router.Get("/api/docs/openapi.yaml", docs.HandleSpec)
	}

	if s.playlist != nil {
		s.router.Get("/api/playlist", s.handlePlaylist)
	}

	if s.sessionHandler != nil {
		sessionLimiter := s.newLimiter(5, 20)
		s.router.Route("/api/session", func(r chi.Router) {
			r.Get("/", s.sessionHandler.Get)
			// Password attempts are governed by the gate alone.
			r.Post("/unlock", s.sessionHandler.Unlock)
			r.Post("/logout", s.sessionHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(sessionLimiter.Middleware)
				r.Post("/picker", s.sessionHandler.OpenPicker)
				r.Post("/picker/{id}", s.sessionHandler.Toggle)
				r.Post("/start", s.sessionHandler.Start)
				r.Post("/next", s.sessionHandler.Next)
				r.Post("/previous", s.sessionHandler.Previous)
			})
		})
	}

	if s.player != nil {
		s.router.Get("/api/player/ws", s.player.ServeHTTP)
	}

	if s.adminHandler != nil {
		importLimiter := s.newLimiter(0.1, 3)
		s.router.Route("/api/admin", func(r chi.Router) {
			r.Post("/login", s.adminHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin(s.jwtSecret))
				r.Get("/settings", s.adminHandler.GetSettings)
				r.Put("/settings", s.adminHandler.UpdateSettings)
				r.Post("/password", s.adminHandler.ChangePassword)
				r.Get("/videos", s.adminHandler.ListVideos)
				r.Post("/videos", s.adminHandler.AddVideo)
				r.Patch("/videos/{id}", s.adminHandler.UpdateVideo)
				r.Delete("/videos/{id}", s.adminHandler.DeleteVideo)
				r.Post("/videos/{id}/move", s.adminHandler.MoveVideo)
				r.With(importLimiter.Middleware).Post("/import", s.adminHandler.Import)
				r.Get("/auto-import", s.adminHandler.GetAutoImport)
				r.Put("/auto-import", s.adminHandler.PutAutoImport)
				r.Get("/history", s.adminHandler.History)
				r.Post("/slack/test", s.adminHandler.TestSlack)
			})
		})
	}

	if s.webFS != nil {
		spa := newSPAFileServer(s.webFS)
		s.router.NotFound(spa.ServeHTTP)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"store unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	videos := s.playlist.Playlist()
	if videos == nil {
		videos = playlist.Playlist{}
	}
	httputil.WriteJSON(w, http.StatusOK, videos)
}
