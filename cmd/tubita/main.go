package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tubita/tubita/internal/admin"
	"github.com/tubita/tubita/internal/appstate"
	"github.com/tubita/tubita/internal/config"
	"github.com/tubita/tubita/internal/database"
	"github.com/tubita/tubita/internal/email"
	"github.com/tubita/tubita/internal/gate"
	"github.com/tubita/tubita/internal/geoip"
	"github.com/tubita/tubita/internal/history"
	"github.com/tubita/tubita/internal/importer"
	"github.com/tubita/tubita/internal/kv"
	"github.com/tubita/tubita/internal/notify"
	"github.com/tubita/tubita/internal/player"
	"github.com/tubita/tubita/internal/ratelimit"
	"github.com/tubita/tubita/internal/server"
	"github.com/tubita/tubita/internal/session"
	slackpkg "github.com/tubita/tubita/internal/slack"
	webhookpkg "github.com/tubita/tubita/internal/webhook"
	"github.com/tubita/tubita/internal/youtube"
	"github.com/tubita/tubita/web"
)

const (
	startupTimeout    = 10 * time.Second
	autoImportTimeout = 2 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration invalid: %v", err)
	}
	slog.SetDefault(newLogger(cfg, os.Stderr))

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store initialization failed: %v", err)
	}
	defer closeStore()
	slog.Info("store ready", "backend", cfg.Store)

	state, err := appstate.Load(ctx, store)
	if err != nil {
		log.Fatalf("loading state failed: %v", err)
	}
	hist, err := history.Load(ctx, store)
	if err != nil {
		log.Fatalf("loading history failed: %v", err)
	}

	g := gate.New(state, cfg.MinPasswordLength)
	g.SetPolicy(cfg.PasswordPolicy)
	var gateThrottle *ratelimit.Limiter
	if cfg.GateAttemptsPerMinute > 0 {
		gateThrottle = ratelimit.PerMinute(cfg.GateAttemptsPerMinute)
		defer gateThrottle.Close()
		g.SetThrottle(gateThrottle)
	}

	imp := importer.New(state)
	adminHandler := admin.NewHandler(state, g, imp, hist, cfg.JWTSecret)
	if cfg.YouTubeAPIKey != "" {
		yt, err := youtube.NewClient(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			log.Fatalf("youtube client initialization failed: %v", err)
		}
		imp.SetLookup(yt)
		adminHandler.SetLookup(yt)
		slog.Info("video metadata lookup enabled")
	}
	if cfg.SlackURL != "" {
		adminHandler.SetSlackWebhookURL(cfg.SlackURL)
	}

	hub := player.NewHub()
	timer := session.NewIntervalTimer(cfg.TickInterval)
	machine := session.NewMachine(hub, state, state, g, timer)
	machine.SetSelectionStore(state)
	machine.AddObserver(hub)
	machine.AddObserver(hist)

	notifiers := newNotifiers(cfg)
	if notifiers.Len() > 0 {
		machine.AddObserver(notifiers)
		slog.Info("parent notifications enabled", "channels", notifiers.Len())
	}

	runner := session.NewRunner(machine, timer.C())
	hub.SetInbound(runner)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go runner.Run(loopCtx)

	if sel, ok := state.Selection(); ok {
		var restoreErr error
		err := runner.Do(ctx, func(m *session.Machine) { restoreErr = m.Restore(sel) })
		switch {
		case err != nil:
			slog.Error("restoring session failed", "error", err)
		case restoreErr != nil:
			slog.Warn("stored selection could not be restored", "user", sel.User, "error", restoreErr)
		default:
			slog.Info("session restored", "user", sel.User, "videos", len(sel.VideoIDs))
		}
	}

	go runAutoImport(loopCtx, imp, state.AutoImport())

	sessionHandler := session.NewHandler(runner)
	sessionHandler.SetThrottle(g)
	geo, err := geoip.New(cfg.GeoIPPath)
	if err != nil {
		log.Fatalf("geoip initialization failed: %v", err)
	}
	defer func() { _ = geo.Close() }()
	if geo.Enabled() {
		sessionHandler.SetLocator(geo)
	}

	var webFS fs.FS
	if sub, err := fs.Sub(web.DistFS, "dist"); err == nil {
		webFS = sub
	} else {
		slog.Warn("no embedded frontend found, page serving disabled")
	}

	srv := server.New(server.Config{
		Pinger:     state,
		Playlist:   state,
		Session:    sessionHandler,
		Player:     hub,
		Admin:      adminHandler,
		WebFS:      webFS,
		JWTSecret:  cfg.JWTSecret,
		BaseURL:    cfg.BaseURL,
		EnableDocs: cfg.EnableDocs,
	})
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("tubita listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	slog.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}
	stopLoop()
	notifiers.Wait()
	hist.Wait()
	slog.Info("shutdown complete")
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg config.Config) (kv.Store, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		slog.Warn("using the in-memory store, state is lost on restart")
		return kv.NewMemory(), func() {}, nil
	case config.StoreSQLite:
		s, err := kv.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StorePostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("database migration failed: %w", err)
		}
		slog.Info("database migrations applied")
		return kv.NewPostgres(db.Pool), db.Close, nil
	case config.StoreS3:
		s, err := kv.NewS3(ctx, kv.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("storage bucket check failed: %w", err)
		}
		return s, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func newNotifiers(cfg config.Config) *notify.Multi {
	var notifiers []notify.Notifier
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, webhookpkg.New(cfg.WebhookURL, cfg.WebhookSecret))
	}
	if cfg.SlackURL != "" {
		notifiers = append(notifiers, slackpkg.New(cfg.SlackURL))
	}
	if cfg.Listmonk.URL != "" && cfg.ParentEmail != "" {
		notifiers = append(notifiers, email.New(email.Config{
			BaseURL:    cfg.Listmonk.URL,
			Username:   cfg.Listmonk.User,
			Password:   cfg.Listmonk.Password,
			TemplateID: cfg.Listmonk.TemplateID,
			To:         cfg.ParentEmail,
		}))
	}
	return notify.NewMulti(notifiers...)
}

func runAutoImport(ctx context.Context, imp *importer.Importer, cfg appstate.AutoImport) {
	ctx, cancel := context.WithTimeout(ctx, autoImportTimeout)
	defer cancel()

	res, ran, err := imp.Auto(ctx, cfg)
	if !ran {
		return
	}
	if err != nil {
		slog.Error("auto-import failed", "url", cfg.URL, "error", err)
		return
	}
	slog.Info("auto-import finished", "url", cfg.URL, "added", res.Added, "duplicates", res.Duplicates, "failed", res.Failed)
}
