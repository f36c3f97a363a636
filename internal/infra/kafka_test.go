package infra_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/guard"
	"github.com/babysteps/progression/internal/infra"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	mu    sync.Mutex
	seen  []string
	errs  []error
	calls int
}

func (p *fakeProcessor) ProcessActivity(_ context.Context, evt domain.ActivityEvent) (*domain.GamificationSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	p.seen = append(p.seen, evt.EventID)
	return &domain.GamificationSnapshot{}, nil
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func memoryEnvelope(userID uuid.UUID, eventID string) []byte {
	return []byte(fmt.Sprintf(`{"type":"MemoryCreated","payload":{"user_id":%q,"baby_id":%q,"event_id":%q}}`,
		userID, uuid.New(), eventID))
}

func TestActivityConsumer_Handle(t *testing.T) {
	userID := uuid.New()
	proc := &fakeProcessor{}
	c := infra.NewActivityConsumer(nil, proc, guard.NewIdempotencyGuard(16), discard())
	ctx := context.Background()

	tests := []struct {
		name    string
		value   []byte
		applied bool
	}{
		{"first delivery", memoryEnvelope(userID, "m1"), true},
		{"duplicate id", memoryEnvelope(userID, "m1"), false},
		{"unknown type", []byte(`{"type":"Nope","payload":{}}`), false},
		{"not json", []byte("garbage"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applied, err := c.Handle(ctx, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.applied, applied)
		})
	}
	assert.Equal(t, []string{"m1"}, proc.seen)
	assert.Equal(t, 1, proc.calls)
}

func TestActivityConsumer_RetriesTransientErrors(t *testing.T) {
	proc := &fakeProcessor{errs: []error{errors.New("deadlock"), nil}}
	c := infra.NewActivityConsumer(nil, proc, nil, discard())

	applied, err := c.Handle(context.Background(), memoryEnvelope(uuid.New(), "m2"))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 2, proc.calls)
}

func TestActivityConsumer_ValidationNotRetried(t *testing.T) {
	proc := &fakeProcessor{errs: []error{domain.ErrValidation("user_id is required"), nil}}
	c := infra.NewActivityConsumer(nil, proc, guard.NewIdempotencyGuard(16), discard())
	ctx := context.Background()

	applied, err := c.Handle(ctx, memoryEnvelope(uuid.New(), "m3"))
	require.NoError(t, err, "invalid events are dropped, not redelivered")
	assert.False(t, applied)
	assert.Equal(t, 1, proc.calls)

	// the failed id was forgotten, so a redelivery is processed
	applied, err = c.Handle(ctx, memoryEnvelope(uuid.New(), "m3"))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 2, proc.calls)
}

func TestActivityConsumer_RunCommitsEveryMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userID := uuid.New()
	reader := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 1, Value: memoryEnvelope(userID, "a")},
			{Offset: 2, Value: []byte("garbage")},
			{Offset: 3, Value: memoryEnvelope(userID, "a")},
			{Offset: 4, Value: memoryEnvelope(userID, "b")},
		},
	}
	proc := &fakeProcessor{}
	c := infra.NewActivityConsumer(reader, proc, nil, discard())

	require.NoError(t, c.Run(ctx))
	assert.Equal(t, []int64{1, 2, 3, 4}, reader.committed)
	assert.Equal(t, []string{"a", "b"}, proc.seen)
}

func TestActivityConsumer_RunLeavesFailedOffsetUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userID := uuid.New()
	outage := errors.New("connection refused")
	reader := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 6, Value: memoryEnvelope(userID, "ok")},
			{Offset: 7, Value: memoryEnvelope(userID, "lost")},
			{Offset: 8, Value: memoryEnvelope(userID, "after")},
		},
	}
	proc := &fakeProcessor{errs: []error{nil, outage, outage, outage}}
	seen := guard.NewIdempotencyGuard(16)
	c := infra.NewActivityConsumer(reader, proc, seen, discard())

	err := c.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, outage)
	assert.Equal(t, []int64{6}, reader.committed, "offset 7 must be redelivered")
	assert.Equal(t, []string{"ok"}, proc.seen)
	assert.Equal(t, 4, proc.calls)
	require.Len(t, reader.msgs, 1, "consumer stops at the failed message")

	// after restart the redelivered event is processed
	applied, err := c.Handle(context.Background(), memoryEnvelope(userID, "lost"))
	require.NoError(t, err)
	assert.True(t, applied)
}
