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

	"github.com/spf13/cobra"

	"github.com/dukerupert/taskcal/internal/config"
	"github.com/dukerupert/taskcal/internal/database"
	"github.com/dukerupert/taskcal/internal/llm"
	"github.com/dukerupert/taskcal/internal/logging"
	"github.com/dukerupert/taskcal/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

// newRouter builds the model router. A backend without credentials is left
// out and its requests go to the fallback.
func newRouter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*llm.Router, error) {
	httpClient := &http.Client{Timeout: cfg.AI.Timeout}

	var chat, generative llm.Completer
	if cfg.AI.GitHubToken != "" {
		chat = llm.NewChatClient(cfg.AI.GitHubToken, cfg.AI.ChatBaseURL, httpClient)
	} else {
		logger.Warn("no chat backend token configured, chat models will use the fallback")
	}
	if cfg.AI.GeminiAPIKey != "" {
		gc, err := llm.NewGenerativeClient(ctx, cfg.AI.GeminiAPIKey, cfg.AI.GeminiBaseURL, httpClient)
		if err != nil {
			return nil, err
		}
		generative = gc
	} else {
		logger.Warn("no generative backend key configured, suggestions will use the fixed fallback")
	}

	return llm.NewRouter(cfg.RouterConfig(), chat, generative, logger.With("component", "llm"))
}

func runServe(cfg *config.Config) error {
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	router, err := newRouter(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build model router: %w", err)
	}

	srv := server.New(db, cfg, router, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Model calls can take most of a minute.
		WriteTimeout: cfg.AI.Timeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	srv.BackupManager().Start(ctx)
	if sched := srv.PushScheduler(); sched != nil {
		sched.Start(ctx)
	}

	// Background cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					logger.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up expired sessions", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("taskcal starting", "addr", cfg.Addr(), "base_url", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down")
	stop()
	if sched := srv.PushScheduler(); sched != nil {
		sched.Stop()
	}
	srv.BackupManager().Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
