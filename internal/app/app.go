package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"lectern/backend/internal/api"
	"lectern/backend/internal/config"
	"lectern/backend/internal/database"
	"lectern/backend/internal/llm"
	"lectern/backend/internal/repository"
	"lectern/backend/internal/service"
	"lectern/backend/internal/session"
)

func Run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger for this critical error.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogger(cfg.LogLevel)
	logConfigSource()

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}()
	slog.Info("Successfully connected to SQLite database.", "path", cfg.DatabasePath)

	repo := repository.NewSQLiteRepository(db)
	registry := llm.NewRegistry(cfg)

	sessions := session.NewManager(session.Limits{
		FlushInterval: cfg.FlushInterval(),
		FlushSize:     cfg.FlushSizeChars,
		IdleTimeout:   cfg.StreamIdleTimeout(),
		MaxBytes:      cfg.StreamMaxBytes,
		MaxAge:        cfg.SessionMaxAge(),
	})

	completionService := service.NewCompletionService(repo, registry, sessions, cfg)
	conversationService := service.NewConversationService(repo)

	completionHandler := api.NewCompletionHandler(completionService)
	conversationHandler := api.NewConversationHandler(conversationService)
	providerHandler := api.NewProviderHandler(registry, func() error {
		fresh, err := config.LoadConfig()
		if err != nil {
			return err
		}
		registry.Refresh(fresh)
		return nil
	})

	router := api.NewRouter(completionHandler, conversationHandler, providerHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled for streaming endpoints
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", cfg.AppPort)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			return 1
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	// Abort every in-flight stream before tearing down the listener so
	// no orphaned backend request survives process exit.
	sessions.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
		return 1
	}

	slog.Info("Server stopped cleanly")
	return 0
}

func logConfigSource() {
	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		slog.Info("Successfully loaded configuration from file.", "file", configFileUsed)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

func setupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
