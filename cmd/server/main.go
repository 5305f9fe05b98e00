package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/remaimber-it/drivetheory/internal/api"
	"github.com/remaimber-it/drivetheory/internal/auth"
	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/infrastructure/config"
	"github.com/remaimber-it/drivetheory/internal/queue"
	"github.com/remaimber-it/drivetheory/internal/remote"
	"github.com/remaimber-it/drivetheory/internal/service"
	"github.com/remaimber-it/drivetheory/internal/store"
)

func main() {
	cfg := config.LoadServer()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Dependencies ────────────────────────────────────────────────
	db, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	banks := questionbank.NewRegistry(
		questionbank.FileSource{Dir: cfg.QuestionDataDir},
		questionbank.BuildOptions{ResolveImage: questionbank.URLImageResolver(cfg.ImageBaseURL)},
	)

	deps := service.LocalDeps(db, banks, logger, time.Now)
	if cfg.RemoteEnabled() {
		pusher, err := remote.OpenPostgres(ctx, cfg.RemoteDatabaseURL, cfg.RemoteOptions(), logger)
		if err != nil {
			logger.Error("failed to connect to remote database", "error", err)
			os.Exit(1)
		}
		defer pusher.Close()
		deps.Remote = pusher
	} else {
		logger.Info("remote sync disabled")
	}

	engine := service.NewEngine(deps)
	q := queue.New(db, queue.WithLogger(logger))
	finalizer := service.NewFinalizer(engine, q, cfg.SyncWorkers, logger)

	syncer := service.NewSyncRunner(engine, q, cfg.SyncInterval, logger)
	if cfg.RemoteEnabled() {
		go syncer.Run(ctx)
	}

	// Warm the default bank so the first request does not pay for parsing.
	if _, err := banks.Bank(ctx, cfg.DefaultLanguage); err != nil {
		logger.Warn("failed to preload question bank", "language", cfg.DefaultLanguage, "error", err)
	}

	// ── Routes ──────────────────────────────────────────────────────
	handler := api.NewHandler(engine, finalizer, syncer, cfg.DefaultLanguage, logger)
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	router := api.NewRouter(handler, verifier, api.RouterOptions{CORSOrigins: cfg.CORSOrigins})

	// ── Server ──────────────────────────────────────────────────────
	server := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	idle := make(chan struct{})
	go func() {
		defer close(idle)
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}
		if err := finalizer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("background pushes cancelled, left for sync", "error", err)
		}
	}()

	logger.Info("starting server", "address", cfg.ServerAddress, "remote_sync", cfg.RemoteEnabled())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed to start", "error", err)
		os.Exit(1)
	}
	<-idle
	deps.Cache.Wait()
}
