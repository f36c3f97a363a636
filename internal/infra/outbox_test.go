package infra_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/infra"
	"github.com/babysteps/progression/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sent struct {
	topic string
	key   string
	value []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	sent   []sent
	failAt int // 1-based call number that fails; 0 never fails
	calls  int
}

func (p *fakePublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failAt > 0 && p.calls == p.failAt {
		return errors.New("broker down")
	}
	p.sent = append(p.sent, sent{topic: topic, key: string(key), value: value})
	return nil
}

func seedOutbox(t *testing.T, s *memstore.Store, n int) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	repos := s.Repositories()
	for i := 0; i < n; i++ {
		tx := &domain.PointTransaction{
			ID:            uuid.New(),
			UserID:        userID,
			Amount:        10,
			Reason:        domain.ReasonActivity,
			SourceEventID: uuid.NewString(),
			BalanceAfter:  int64(10 * (i + 1)),
			CreatedAt:     time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC),
		}
		require.NoError(t, repos.Outbox.Insert(context.Background(), nil, domain.NewPointsAwardedEvent(tx)))
	}
	return userID
}

func TestOutboxRelay_PublishesAndDrains(t *testing.T) {
	s := memstore.New()
	userID := seedOutbox(t, s, 3)
	pub := &fakePublisher{}
	relay := infra.NewOutboxRelay(s, s.Repositories().Outbox, pub, "babysteps", time.Second, 10, discard())

	n, err := relay.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, s.OutboxEvents())

	require.Len(t, pub.sent, 3)
	for _, m := range pub.sent {
		assert.Equal(t, "babysteps.progression.points.awarded", m.topic)
		assert.Equal(t, userID.String(), m.key)

		var body map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(m.value, &body))
		assert.Contains(t, body, "payload")
		assert.JSONEq(t, `"progression.points.awarded"`, string(body["event_type"]))
	}

	n, err = relay.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxRelay_BatchSize(t *testing.T) {
	s := memstore.New()
	seedOutbox(t, s, 5)
	relay := infra.NewOutboxRelay(s, s.Repositories().Outbox, &fakePublisher{}, "babysteps", time.Second, 2, discard())

	n, err := relay.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, s.OutboxEvents(), 3)
}

func TestOutboxRelay_PublishFailureKeepsRemainder(t *testing.T) {
	s := memstore.New()
	seedOutbox(t, s, 3)
	pub := &fakePublisher{failAt: 2}
	relay := infra.NewOutboxRelay(s, s.Repositories().Outbox, pub, "babysteps", time.Second, 10, discard())

	n, err := relay.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, s.OutboxEvents(), 2)

	n, err = relay.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, s.OutboxEvents())
}

func TestOutboxRelay_FirstPublishFails(t *testing.T) {
	s := memstore.New()
	seedOutbox(t, s, 2)
	relay := infra.NewOutboxRelay(s, s.Repositories().Outbox, &fakePublisher{failAt: 1}, "babysteps", time.Second, 10, discard())

	_, err := relay.Poll(context.Background())
	require.Error(t, err)
	assert.Len(t, s.OutboxEvents(), 2)
}

func TestOutboxRelay_Topic(t *testing.T) {
	withPrefix := infra.NewOutboxRelay(nil, nil, nil, "babysteps", 0, 0, discard())
	assert.Equal(t, "babysteps.progression.level.up", withPrefix.Topic(domain.EventLevelUp))

	bare := infra.NewOutboxRelay(nil, nil, nil, "", 0, 0, discard())
	assert.Equal(t, "progression.level.up", bare.Topic(domain.EventLevelUp))
}
