package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/babysteps/progression/internal/app"
	"github.com/babysteps/progression/internal/infra"
	"github.com/babysteps/progression/internal/repository"
	"github.com/babysteps/progression/internal/service"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("scheduler failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runJobs(ctx, rt.Engine.Jobs, cfg.SchedulerInterval, logger)
	})

	// relay the outbox in-process when Kafka is on
	if cfg.KafkaEnabled {
		producer := infra.NewKafkaProducer(cfg.KafkaBrokers, true, logger)
		defer producer.Close()
		relay := infra.NewOutboxRelay(rt.Runner, repository.NewOutboxRepository(), producer,
			cfg.KafkaTopicPrefix, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)
		g.Go(func() error { return relay.Run(ctx) })
	}

	return g.Wait()
}

func runJobs(ctx context.Context, jobs *service.Jobs, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		interval = time.Minute
	}
	logger.Info("scheduler started", "interval", interval, "jobs", jobs.Names())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			// each job logs its own result
			if _, err := jobs.RunAll(ctx); err != nil {
				logger.Error("scheduled jobs failed", "error", err)
			}
		}
	}
}
