package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/babysteps/progression/internal/challenge"
	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/mission"
	"github.com/babysteps/progression/internal/repository"
	"github.com/babysteps/progression/internal/specialevent"
	"github.com/jackc/pgx/v5"
)

// Scheduled job names.
const (
	JobMissionExpiry     = "mission-expiry"
	JobChallengeRollover = "challenge-rollover"
	JobEventFinalize     = "event-finalize"
)

// JobResult reports one job run.
type JobResult struct {
	Name      string        `json:"name"`
	Detail    interface{}   `json:"detail"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

type jobFunc func(ctx context.Context, now time.Time) (interface{}, error)

// Jobs runs the calendar-driven maintenance jobs. Every job is idempotent, so
// a run retried after a crash is safe.
type Jobs struct {
	jobs   map[string]jobFunc
	logger *slog.Logger
	now    func() time.Time
}

// NewJobs creates the job registry.
func NewJobs(
	runner repository.TxRunner,
	missions *mission.Scheduler,
	challenges *challenge.Engine,
	events *specialevent.Engine,
	logger *slog.Logger,
) *Jobs {
	j := &Jobs{logger: logger, now: time.Now}
	j.jobs = map[string]jobFunc{
		JobMissionExpiry: func(ctx context.Context, now time.Time) (interface{}, error) {
			var n int64
			err := runner.InTx(ctx, func(tx pgx.Tx) error {
				var err error
				n, err = missions.ExpireSweep(ctx, tx, now)
				return err
			})
			return map[string]int64{"expired": n}, err
		},
		JobChallengeRollover: func(ctx context.Context, now time.Time) (interface{}, error) {
			var weeks []string
			err := runner.InTx(ctx, func(tx pgx.Tx) error {
				var err error
				weeks, err = challenges.Rollover(ctx, tx, now)
				return err
			})
			return map[string][]string{"weeks": weeks}, err
		},
		JobEventFinalize: func(ctx context.Context, now time.Time) (interface{}, error) {
			results, err := events.FinalizeEnded(ctx, now)
			return results, err
		},
	}
	return j
}

// WithClock replaces the time source passed to every job.
func (j *Jobs) WithClock(now func() time.Time) *Jobs {
	if now != nil {
		j.now = now
	}
	return j
}

// Names returns the registered job names, sorted.
func (j *Jobs) Names() []string {
	names := make([]string, 0, len(j.jobs))
	for name := range j.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one job by name.
func (j *Jobs) Run(ctx context.Context, name string) (*JobResult, error) {
	fn, ok := j.jobs[name]
	if !ok {
		return nil, domain.ErrNotFound("job", name)
	}

	started := j.now()
	detail, err := fn(ctx, started)
	res := &JobResult{Name: name, Detail: detail, StartedAt: started, Duration: time.Since(started)}
	if err != nil {
		j.logger.Error("job failed", "job", name, "error", err)
		return res, fmt.Errorf("job %s: %w", name, err)
	}
	j.logger.Info("job completed", "job", name, "duration_ms", res.Duration.Milliseconds(), "detail", detail)
	return res, nil
}

// RunAll executes every job once. A failing job does not stop the others;
// the first error is returned.
func (j *Jobs) RunAll(ctx context.Context) ([]JobResult, error) {
	var (
		out      []JobResult
		firstErr error
	)
	for _, name := range j.Names() {
		res, err := j.Run(ctx, name)
		if res != nil {
			out = append(out, *res)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return out, firstErr
}
