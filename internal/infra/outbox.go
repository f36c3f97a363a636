package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/repository"
	"github.com/jackc/pgx/v5"
)

// Publisher sends a single message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboxRelay drains event_outbox and publishes each row to Kafka. Rows are
// claimed with SKIP LOCKED and deleted in the same transaction once published,
// so concurrent relays never double-send a committed batch.
type OutboxRelay struct {
	runner      repository.TxRunner
	outbox      repository.OutboxRepository
	publisher   Publisher
	logger      *slog.Logger
	topicPrefix string
	interval    time.Duration
	batchSize   int
}

// NewOutboxRelay creates a relay publishing to "<topicPrefix>.<eventType>".
func NewOutboxRelay(runner repository.TxRunner, outbox repository.OutboxRepository, publisher Publisher, topicPrefix string, interval time.Duration, batchSize int, logger *slog.Logger) *OutboxRelay {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		runner:      runner,
		outbox:      outbox,
		publisher:   publisher,
		logger:      logger,
		topicPrefix: topicPrefix,
		interval:    interval,
		batchSize:   batchSize,
	}
}

// Run polls until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay started", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			for {
				n, err := r.Poll(ctx)
				if err != nil {
					r.logger.Error("outbox poll error", "error", err)
					break
				}
				// a full batch means more rows are probably waiting
				if n < r.batchSize {
					break
				}
			}
		}
	}
}

// Poll publishes one batch and returns how many rows were published. A publish
// failure stops the batch; rows published before it are still removed.
func (r *OutboxRelay) Poll(ctx context.Context) (int, error) {
	var published int
	err := r.runner.InTx(ctx, func(tx pgx.Tx) error {
		published = 0
		records, err := r.outbox.FetchUnpublished(ctx, tx, r.batchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox: %w", err)
		}
		if len(records) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(records))
		var pubErr error
		for _, rec := range records {
			if err := r.publish(ctx, rec); err != nil {
				r.logger.Error("kafka publish failed", "event_id", rec.EventID, "event_type", rec.EventType, "error", err)
				pubErr = err
				break
			}
			ids = append(ids, rec.ID)
		}

		if len(ids) > 0 {
			if err := r.outbox.MarkPublished(ctx, tx, ids); err != nil {
				return fmt.Errorf("mark published: %w", err)
			}
		}
		published = len(ids)
		if pubErr != nil && published == 0 {
			return fmt.Errorf("publish: %w", pubErr)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if published > 0 {
		r.logger.Debug("outbox poll complete", "published", published)
	}
	return published, nil
}

// Topic returns the Kafka topic for an outbound event type.
func (r *OutboxRelay) Topic(t domain.EventType) string {
	if r.topicPrefix == "" {
		return string(t)
	}
	return r.topicPrefix + "." + string(t)
}

func (r *OutboxRelay) publish(ctx context.Context, rec domain.OutboxRecord) error {
	key := []byte(rec.PartitionKey)
	if len(key) == 0 {
		key = []byte(rec.AggregateID)
	}

	msg, err := json.Marshal(map[string]interface{}{
		"event_id":       rec.EventID,
		"aggregate_type": rec.AggregateType,
		"aggregate_id":   rec.AggregateID,
		"event_type":     rec.EventType,
		"payload":        rec.Payload,
		"occurred_at":    rec.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return r.publisher.Publish(ctx, r.Topic(rec.EventType), key, msg)
}
