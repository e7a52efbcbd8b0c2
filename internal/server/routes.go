package server

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"impostor/internal/config"
	"impostor/internal/db"
	"impostor/internal/game"
	"impostor/internal/maintenance"
	"impostor/internal/metrics"
	"impostor/internal/rooms"
	"impostor/internal/stream"
	"impostor/internal/words"
)

func Run() error {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	dict := words.Load(cfg.WordFile, logger)

	var repo rooms.Repository
	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = db.Connect(cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		repo = rooms.NewPostgresRepository(database)
	} else {
		logger.Info("DATABASE_URL not set, using in-memory store")
		repo = rooms.NewMemoryRepository()
	}

	retention := time.Duration(cfg.RetentionHours) * time.Hour
	sweeper := maintenance.NewSweeper(repo, logger)
	cronJobs := sweeper.Schedule(retention)
	defer cronJobs.Stop()

	srv := &Server{
		Repo:      repo,
		Lifecycle: game.NewLifecycle(repo, dict, logger),
		Reveal:    game.NewReveal(repo, logger),
		Sweeper:   sweeper,
		Hub:       stream.NewHub(repo, logger),
		DB:        database,
		Retention: retention,
		Log:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rooms", srv.handleCreateRoom)
	mux.HandleFunc("GET /api/rooms/{code}", srv.handleGetRoom)
	mux.HandleFunc("POST /api/rooms/{code}/join", srv.handleJoinRoom)
	mux.HandleFunc("POST /api/rooms/{code}/start", srv.handleStartRound)
	mux.HandleFunc("POST /api/rooms/{code}/restart", srv.handleRestartRound)
	mux.HandleFunc("POST /api/rooms/{code}/allow-join", srv.handleAllowJoin)
	mux.HandleFunc("POST /api/rooms/{code}/reset", srv.handleResetToLobby)
	mux.HandleFunc("POST /api/rooms/{code}/seen", srv.handleMarkSeen)
	mux.HandleFunc("GET /api/rooms/{code}/ws", srv.handleStream)
	mux.HandleFunc("POST /admin/cleanup", srv.handleCleanup)
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	addr := "0.0.0.0:" + cfg.Port
	logger.Info("server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}
