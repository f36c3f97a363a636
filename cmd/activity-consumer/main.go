package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/babysteps/progression/internal/app"
	"github.com/babysteps/progression/internal/guard"
	"github.com/babysteps/progression/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("activity consumer failed", "error", err)
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
	if !cfg.KafkaEnabled {
		return fmt.Errorf("KAFKA_ENABLED must be true to consume activity")
	}

	rt, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	reader := infra.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaActivityTopic, cfg.KafkaGroupID)
	defer reader.Close()

	consumer := infra.NewActivityConsumer(reader, rt.Engine.Progression, guard.NewIdempotencyGuard(guard.DefaultSeenSize), logger)
	logger.Info("activity-consumer starting", "topic", cfg.KafkaActivityTopic, "group", cfg.KafkaGroupID)
	return consumer.Run(ctx)
}
