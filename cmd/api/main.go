package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/babysteps/progression/internal/app"
	"github.com/babysteps/progression/internal/auth"
	"github.com/babysteps/progression/internal/guard"
	"github.com/babysteps/progression/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	rt, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.UserTokenExpiry(), cfg.AdminTokenExpiry(), cfg.ServiceTokenExpiry())

	r := app.NewRouter(app.RouterDeps{
		Engine:          rt.Engine,
		JWTMgr:          jwtMgr,
		Logger:          logger,
		PurchaseLimiter: guard.NewRateLimiter(cfg.PurchaseRateLimit, cfg.PurchaseRateWindow),
		Health:          rt.HealthChecks(),
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RankingLimit:    cfg.RankingLimit,
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
