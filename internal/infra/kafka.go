package infra

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/guard"
	"github.com/segmentio/kafka-go"
)

// KafkaProducer wraps a kafka-go writer for publishing messages.
type KafkaProducer struct {
	writer  *kafka.Writer
	logger  *slog.Logger
	enabled bool
}

// NewKafkaProducer creates a Kafka producer. If brokers is empty or disabled, writes are no-ops.
func NewKafkaProducer(brokers string, enabled bool, logger *slog.Logger) *KafkaProducer {
	if !enabled || brokers == "" {
		logger.Info("kafka producer disabled")
		return &KafkaProducer{enabled: false, logger: logger}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	logger.Info("kafka producer initialized", "brokers", brokers)
	return &KafkaProducer{writer: w, logger: logger, enabled: true}
}

// Publish sends a message to the given topic. No-op if disabled.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if !p.enabled {
		return nil
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
}

// Close shuts down the Kafka writer.
func (p *KafkaProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// MessageReader is the subset of *kafka.Reader the activity consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader creates a consumer-group reader for topic. Offsets are
// committed explicitly after each message is handled.
func NewKafkaReader(brokers, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
}

// ActivityProcessor applies one inbound event.
type ActivityProcessor interface {
	ProcessActivity(ctx context.Context, evt domain.ActivityEvent) (*domain.GamificationSnapshot, error)
}

// ActivityConsumer feeds inbound collaborator events to the progression
// engine. Recently seen event ids are dropped before touching the database.
type ActivityConsumer struct {
	reader    MessageReader
	processor ActivityProcessor
	seen      *guard.IdempotencyGuard
	logger    *slog.Logger
	attempts  int
	backoff   time.Duration
}

// NewActivityConsumer creates a consumer over reader.
func NewActivityConsumer(reader MessageReader, processor ActivityProcessor, seen *guard.IdempotencyGuard, logger *slog.Logger) *ActivityConsumer {
	if seen == nil {
		seen = guard.NewIdempotencyGuard(guard.DefaultSeenSize)
	}
	return &ActivityConsumer{
		reader:    reader,
		processor: processor,
		seen:      seen,
		logger:    logger,
		attempts:  3,
		backoff:   200 * time.Millisecond,
	}
}

// Run consumes until ctx is cancelled. Applied, duplicate and invalid
// messages are committed. A message that still fails after the retries is
// left uncommitted and Run returns, so the group redelivers it from the last
// committed offset once the consumer restarts.
func (c *ActivityConsumer) Run(ctx context.Context) error {
	c.logger.Info("activity consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("activity consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if _, err := c.Handle(ctx, msg.Value); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("offset %d left uncommitted: %w", msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// Handle decodes and applies a single message. It reports whether the event
// was applied by the engine. Undecodable, duplicate and invalid events are
// dropped with a nil error; an error means the event must be redelivered.
func (c *ActivityConsumer) Handle(ctx context.Context, value []byte) (bool, error) {
	evt, err := domain.DecodeActivity(value)
	if err != nil {
		c.logger.Warn("dropping undecodable activity", "error", err)
		return false, nil
	}

	if res := c.seen.Check(ctx, evt.EventID); !res.Allowed {
		c.logger.Debug("duplicate activity skipped", "event_id", evt.EventID, "reason", res.Reason)
		return false, nil
	}

	for attempt := 1; ; attempt++ {
		_, err = c.processor.ProcessActivity(ctx, evt)
		if err == nil {
			return true, nil
		}
		if domain.IsCode(err, domain.CodeValidation) || attempt >= c.attempts || ctx.Err() != nil {
			break
		}
		c.logger.Warn("activity processing failed, retrying", "event_id", evt.EventID, "attempt", attempt, "error", err)
		if err := sleepWithContext(ctx, time.Duration(attempt)*c.backoff); err != nil {
			break
		}
	}

	// the id was never applied; a later delivery must not be short-circuited
	c.seen.Remove(evt.EventID)
	if domain.IsCode(err, domain.CodeValidation) {
		c.logger.Warn("dropping invalid activity", "event_id", evt.EventID, "kind", evt.Kind, "error", err)
		return false, nil
	}
	c.logger.Error("activity processing failed", "event_id", evt.EventID, "kind", evt.Kind, "user_id", evt.UserID, "error", err)
	return false, fmt.Errorf("process activity %s: %w", evt.EventID, err)
}
