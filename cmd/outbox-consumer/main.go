package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/babysteps/progression/internal/infra"
	"github.com/babysteps/progression/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
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
	// a disabled producer would drop every row it drains
	if !cfg.KafkaEnabled {
		return fmt.Errorf("KAFKA_ENABLED must be true to relay the outbox")
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-consumer connected to postgres")

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	relay := infra.NewOutboxRelay(
		infra.NewTxRunner(pool, logger),
		repository.NewOutboxRepository(),
		producer,
		cfg.KafkaTopicPrefix,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		logger,
	)
	return relay.Run(ctx)
}
