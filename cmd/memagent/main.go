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

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gibbonas/MemAgent/internal/budget"
	"github.com/gibbonas/MemAgent/internal/config"
	"github.com/gibbonas/MemAgent/internal/guardrail"
	"github.com/gibbonas/MemAgent/internal/httpapi"
	"github.com/gibbonas/MemAgent/internal/observability"
	"github.com/gibbonas/MemAgent/internal/team"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "memagent",
		Short: "Conversational memory image agent",
		Long:  "memagent turns a described memory into a generated image, using the user's own photo library for reference.",
		RunE:  run,
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.Init(cfg.LogLevel)
	log := observability.Logger()

	var usageStore budget.UsageStore
	if cfg.UsageDBPath != "" {
		sqlStore, err := budget.OpenSQLite(cfg.UsageDBPath)
		if err != nil {
			return fmt.Errorf("open usage database: %w", err)
		}
		defer sqlStore.Close()
		usageStore = sqlStore
		log.Info("usage store opened", slog.String("path", cfg.UsageDBPath))
	} else {
		usageStore = budget.NewMemStore()
		log.Warn("no usage database configured, token usage is in-memory only")
	}

	tracker := budget.NewTracker(usageStore, cfg.Budget)
	guardrails := guardrail.NewChain(
		guardrail.NewRateLimit(cfg.UserRatePerMinute, cfg.UserRateBurst),
		guardrail.NewContentPolicy(),
		guardrail.NewTokenBudget(tracker),
	)

	sessions := team.NewStore(cfg.SessionTTL, cfg.MaxSessions)
	orch := team.New(sessions, cfg)
	server := httpapi.NewServer(cfg, orch, tracker, guardrails)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sessions.StartCleanup(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", slog.String("addr", cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
