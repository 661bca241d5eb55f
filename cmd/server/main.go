package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/inamate/compositor/internal/asset"
	"github.com/inamate/compositor/internal/auth"
	"github.com/inamate/compositor/internal/config"
	"github.com/inamate/compositor/internal/db"
	"github.com/inamate/compositor/internal/export"
	mw "github.com/inamate/compositor/internal/middleware"
	"github.com/inamate/compositor/internal/scene"
	"github.com/inamate/compositor/internal/session"
	"github.com/inamate/compositor/internal/stream"
)

// publisher breaks the construction cycle between the session manager,
// which publishes frames, and the hub, which drives the manager.
type publisher struct{ hub *stream.Hub }

func (p *publisher) PublishFrame(sceneID string, f session.FrameInfo) {
	if p.hub != nil {
		p.hub.PublishFrame(sceneID, f)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}
	queries := db.New(pool)

	authService := auth.NewService(queries, cfg.JWTSecret)
	authHandler := auth.NewHandler(authService)

	sceneService := scene.NewService(queries)
	sceneHandler := scene.NewHandler(sceneService)

	scenes, err := loadFixtures(cfg.SceneDir, sceneService)
	if err != nil {
		slog.Error("load scene dir", "dir", cfg.SceneDir, "error", err)
		os.Exit(1)
	}

	assetHandler := asset.NewHandler(cfg.AssetDir)

	sessionCfg := session.Config{
		PulseRate:  cfg.PulseRate,
		StatsEvery: cfg.StatsEvery,
		Padding:    cfg.DamagePadding,
		RegionCap:  cfg.DirtyRegionCap,
		PoolSize:   cfg.DirtyPoolSize,
	}
	frames := &publisher{}
	manager := session.NewManager(sessionCfg, scenes.Load,
		session.WithSaver(scenes.Save),
		session.WithStats(queries),
		session.WithPublisher(frames),
		session.WithAssets(assetHandler),
		session.WithLogger(logger.With("component", "session")),
	)
	sceneService.SetListener(manager)

	hub := stream.NewHub(manager)
	frames.hub = hub
	go hub.Run(ctx)

	exportHandler := export.NewHandler(manager, scenes)
	streamHandler := stream.NewHandler(hub, authService, scenes, cfg.Origins())

	r := mux.NewRouter()

	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS(cfg.Origins()))

	r.HandleFunc("/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	r.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		auth.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	r.HandleFunc("/assets/upload", assetHandler.Upload).Methods("POST", "OPTIONS")
	r.PathPrefix("/assets/").Handler(assetHandler.Serve()).Methods("GET")

	// Fixture and public scenes render without a login.
	r.Handle("/scenes/{sceneId}/frame.png", authService.OptionalAuth(http.HandlerFunc(exportHandler.Frame))).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authService.AuthMiddleware)

	api.HandleFunc("/me", authHandler.Me).Methods("GET")
	api.HandleFunc("/scenes", sceneHandler.List).Methods("GET")
	api.HandleFunc("/scenes", sceneHandler.Create).Methods("POST")
	api.HandleFunc("/scenes/{sceneId}", sceneHandler.Get).Methods("GET")
	api.HandleFunc("/scenes/{sceneId}", sceneHandler.Delete).Methods("DELETE")
	api.HandleFunc("/scenes/{sceneId}/snapshots/latest", sceneHandler.GetLatestSnapshot).Methods("GET")
	api.HandleFunc("/scenes/{sceneId}/snapshots", sceneHandler.SaveSnapshot).Methods("PUT")
	api.HandleFunc("/scenes/{sceneId}/stats", sceneHandler.Stats).Methods("GET")
	api.HandleFunc("/scenes/{sceneId}/frame.png", exportHandler.Frame).Methods("GET")

	r.Handle("/ws/scene/{sceneId}", streamHandler)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("server starting", "addr", addr, "pulse_rate", cfg.PulseRate)
	if err := run(sigCtx, srv, manager); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// run serves until ctx is done. It returns only after the listener has
// drained and every open scene has been saved.
func run(ctx context.Context, srv server, sessions interface{ Close() }) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		sessions.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	<-errc

	// Stops every render loop and saves dirty documents.
	slog.Info("saving open scenes")
	sessions.Close()
	return nil
}
