package badge

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/ledger"
	"github.com/babysteps/progression/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() *domain.ProgressionState {
	s := domain.NewProgressionState(uuid.New())
	s.Balance = 420
	s.Level = 3
	s.TotalMemories = 12
	s.TotalActivities = 4
	s.TotalLogins = 30
	s.Streaks[domain.CategoryLogin] = 7
	s.LongestStreaks[domain.CategoryLogin] = 9
	s.Badges["first_memory"] = time.Now()
	return s
}

func TestParse_Evaluates(t *testing.T) {
	tests := []struct {
		cond string
		want bool
	}{
		{"totalMemories >= 10", true},
		{"totalMemories > 12", false},
		{"total_memories == 12", true},
		{"streaks.login >= 7", true},
		{"streaks.memory >= 1", false},
		{"longestStreaks.login >= 9", true},
		{"balance >= 400 AND level >= 3", true},
		{"balance >= 400 && level >= 4", false},
		{"totalActivities >= 100 OR totalLogins >= 30", true},
		{"totalActivities >= 100 || totalMilestones > 0", false},
		{"NOT totalMilestones >= 1", true},
		{"!(totalMemories >= 10)", false},
		{"(totalMemories >= 10 OR totalActivities >= 10) AND badgeCount >= 1", true},
		{"badgeCount != 1", false},
		{"10 <= totalMemories", true},
		{"balance < -1", false},
		{"totalMemories >= 10 and streaks.login >= 7", true},
	}

	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			expr, err := Parse(tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr.Eval(sampleState()))
		})
	}
}

func TestParse_Precedence(t *testing.T) {
	// AND binds tighter than OR.
	expr, err := Parse("level >= 1 OR level >= 99 AND balance >= 99999")
	require.NoError(t, err)
	assert.True(t, expr.Eval(sampleState()))
	assert.Equal(t, "(level >= 1 OR (level >= 99 AND balance >= 99999))", expr.String())
}

func TestParse_Rejects(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"totalMemories",
		"totalMemories >=",
		"unknownField >= 1",
		"streaks.milestone >= 1",
		"totalMemories = 10",
		"totalMemories >= 10 AND",
		"(totalMemories >= 10",
		"totalMemories >= 10)",
		"totalMemories >= 10 & level > 1",
		"os.Exit(1)",
		"totalMemories >= 'ten'",
		"99999999999999999999 > 1",
	}

	for _, cond := range tests {
		t.Run(cond, func(t *testing.T) {
			_, err := Parse(cond)
			assert.Error(t, err)
		})
	}
}

func TestParse_DepthLimit(t *testing.T) {
	cond := ""
	for i := 0; i < maxDepth+1; i++ {
		cond += "NOT "
	}
	cond += "level >= 1"
	_, err := Parse(cond)
	assert.Error(t, err)
}

func TestValidateCondition(t *testing.T) {
	err := ValidateCondition(&domain.GamificationRule{ID: "r1", Condition: "level >= 2"})
	assert.NoError(t, err)

	err = ValidateCondition(&domain.GamificationRule{ID: "r2", Condition: "level >>= 2"})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidRuleCondition))
}

type fixture struct {
	store     *memstore.Store
	evaluator *Evaluator
	logs      *bytes.Buffer
}

func newFixture(t *testing.T, rules ...domain.GamificationRule) *fixture {
	t.Helper()
	s := memstore.New()
	r := s.Repositories()
	for i := range rules {
		rules[i].Active = true
		require.NoError(t, r.Rules.Upsert(context.Background(), nil, &rules[i]))
	}
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	engine := ledger.NewEngine(r.Progression, r.Transactions, r.Outbox)
	return &fixture{
		store:     s,
		evaluator: NewEvaluator(r.Rules, r.Badges, engine, r.Outbox, logger, 16),
		logs:      logs,
	}
}

func (f *fixture) evaluate(t *testing.T, state *domain.ProgressionState) ([]string, *domain.UserProgression) {
	t.Helper()
	var (
		awarded []string
		user    *domain.UserProgression
	)
	err := f.store.InTx(context.Background(), func(tx pgx.Tx) error {
		locked, err := f.store.Repositories().Progression.LockForUpdate(context.Background(), tx, state.UserID)
		if err != nil {
			return err
		}
		state.Balance = locked.Balance
		awarded, user, err = f.evaluator.Evaluate(context.Background(), tx, locked, state, time.Now())
		return err
	})
	require.NoError(t, err)
	return awarded, user
}

func TestEvaluate_AwardsOnceWithPoints(t *testing.T) {
	f := newFixture(t,
		domain.GamificationRule{ID: "memory_keeper", Condition: "totalMemories >= 10", PointsReward: 25},
		domain.GamificationRule{ID: "week_streak", Condition: "streaks.login >= 7"},
		domain.GamificationRule{ID: "unreached", Condition: "totalMilestones >= 5", PointsReward: 100},
	)
	state := domain.NewProgressionState(uuid.New())
	state.TotalMemories = 10
	state.Streaks[domain.CategoryLogin] = 7

	awarded, user := f.evaluate(t, state)
	assert.ElementsMatch(t, []string{"memory_keeper", "week_streak"}, awarded)
	assert.Equal(t, int64(25), user.Balance)
	assert.True(t, state.HasBadge("memory_keeper"))

	awarded, user = f.evaluate(t, state)
	assert.Empty(t, awarded)
	assert.Equal(t, int64(25), user.Balance)

	txs := f.store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "badge:memory_keeper", txs[0].SourceEventID)
	assert.Equal(t, domain.ReasonBadge, txs[0].Reason)
	assert.Contains(t, f.store.OutboxEvents(), domain.EventBadgeEarned)
}

func TestEvaluate_SkipsHeldBadgeAfterStateReload(t *testing.T) {
	f := newFixture(t, domain.GamificationRule{ID: "b", Condition: "level >= 1", PointsReward: 10})
	userID := uuid.New()

	awarded, _ := f.evaluate(t, domain.NewProgressionState(userID))
	assert.Equal(t, []string{"b"}, awarded)

	// A fresh state without the held set still cannot double-award: the badge
	// insert and the ledger key both reject the repeat.
	awarded, user := f.evaluate(t, domain.NewProgressionState(userID))
	assert.Empty(t, awarded)
	assert.Equal(t, int64(10), user.Balance)
}

func TestEvaluate_ChainsDependentRules(t *testing.T) {
	f := newFixture(t,
		domain.GamificationRule{ID: "a_collector", Condition: "badgeCount >= 2"},
		domain.GamificationRule{ID: "b_rich", Condition: "balance >= 100"},
		domain.GamificationRule{ID: "c_login", Condition: "totalLogins >= 1", PointsReward: 100},
	)
	state := domain.NewProgressionState(uuid.New())
	state.TotalLogins = 1

	awarded, user := f.evaluate(t, state)
	assert.Equal(t, []string{"c_login", "b_rich", "a_collector"}, awarded)
	assert.Equal(t, int64(100), user.Balance)
	assert.Equal(t, 2, state.Level)
}

func TestEvaluate_MalformedRuleFailsClosed(t *testing.T) {
	f := newFixture(t,
		domain.GamificationRule{ID: "broken", Condition: "require('fs')"},
		domain.GamificationRule{ID: "ok", Condition: "level >= 1"},
	)

	awarded, _ := f.evaluate(t, domain.NewProgressionState(uuid.New()))
	assert.Equal(t, []string{"ok"}, awarded)
	assert.Contains(t, f.logs.String(), "invalid rule condition")
	assert.Contains(t, f.logs.String(), "rule_id=broken")
}

func TestCompile_CachesResult(t *testing.T) {
	e := NewEvaluator(nil, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), 2)

	first, err := e.Compile("level >= 2")
	require.NoError(t, err)
	second, err := e.Compile("level >= 2")
	require.NoError(t, err)
	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, 1, e.cache.Len())

	_, err = e.Compile("level >")
	require.Error(t, err)
	_, err = e.Compile("level >")
	require.Error(t, err)
	assert.Equal(t, 2, e.cache.Len())
}
