// Package ranker periodically recomputes urgency scores for ACTIVE tasks and
// broadcasts the ones that moved, so dashboards re-sort without polling
// Postgres.
package ranker

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/auratask/auratask/internal/kafka"
	"github.com/auratask/auratask/internal/postgres"
	redisstore "github.com/auratask/auratask/internal/redis"
	"github.com/auratask/auratask/internal/urgency"
	"github.com/auratask/auratask/pkg/telemetry"
)

// scoreEpsilon is the minimum score movement worth persisting and
// broadcasting. Anything smaller is clock drift noise.
const scoreEpsilon = 0.01

// Report summarizes one completed re-rank pass.
type Report struct {
	Tasks   int
	Changed int
	Failed  int
}

// ScoreUpdate is one entry of a re-rank broadcast batch.
type ScoreUpdate struct {
	TaskID   string  `json:"task_id"`
	NewScore float64 `json:"new_score"`
}

// scoreBatch is the message published to the scores topic: every task whose
// score moved in one pass, in a single message.
type scoreBatch struct {
	ComputedAt time.Time     `json:"computed_at"`
	Updates    []ScoreUpdate `json:"updates"`
}

// Ranker owns the re-rank loop. Like the sweeper it runs behind a leader
// lock; unlike the sweeper nothing it writes is load-bearing, so any failure
// mode degrades to stale scores rather than lost reminders.
type Ranker struct {
	repo     postgres.TaskRepository
	producer kafka.Producer
	cache    redisstore.ScoreCache
	lock     *redisstore.LeaderLock
	schedule cron.Schedule
	logger   *slog.Logger
}

var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewRanker constructs a Ranker with the given cron schedule expression.
func NewRanker(
	repo postgres.TaskRepository,
	producer kafka.Producer,
	cache redisstore.ScoreCache,
	lock *redisstore.LeaderLock,
	scheduleExpr string,
	logger *slog.Logger,
) (*Ranker, error) {
	schedule, err := scheduleParser.Parse(scheduleExpr)
	if err != nil {
		return nil, err
	}
	return &Ranker{
		repo:     repo,
		producer: producer,
		cache:    cache,
		lock:     lock,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Run executes re-rank passes on the configured schedule until ctx is
// cancelled. Passes are sequential; an overrun skips missed fire instants.
func (r *Ranker) Run(ctx context.Context) {
	for {
		next := r.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.tick(ctx)
		}
	}
}

func (r *Ranker) tick(ctx context.Context) {
	leader, err := r.lock.TryAcquire(ctx)
	if err != nil {
		r.logger.Error("leader election failed", slog.String("error", err.Error()))
		telemetry.RankTicksTotal.WithLabelValues("error").Inc()
		return
	}
	if !leader {
		telemetry.RankTicksTotal.WithLabelValues("not_leader").Inc()
		return
	}

	start := time.Now()
	report, err := r.RunOnce(ctx, start.UTC())
	if err != nil {
		r.logger.Error("re-rank aborted", slog.String("error", err.Error()))
		telemetry.RankTicksTotal.WithLabelValues("error").Inc()
		return
	}
	telemetry.RankTicksTotal.WithLabelValues("ok").Inc()
	r.logger.Info("re-rank completed",
		slog.Int("tasks", report.Tasks),
		slog.Int("changed", report.Changed),
		slog.Int("failed", report.Failed),
		slog.Duration("took", time.Since(start)),
	)
}

// RunOnce recomputes every ACTIVE task's urgency score at now, persists the
// scores that moved by more than the epsilon and publishes them as one batch.
//
// A store outage aborts the pass. A single task failing to persist is logged
// and skipped. A publish or cache failure is logged and swallowed: the
// persisted scores are already correct and the next pass re-broadcasts.
func (r *Ranker) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	ctx, span := otel.Tracer("ranker").Start(ctx, "ranker.run_once")
	defer span.End()

	tasks, err := r.repo.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "task load failed")
		return Report{}, err
	}

	report := Report{Tasks: len(tasks)}
	var updates []ScoreUpdate
	changed := make(map[string]float64)

	for _, task := range tasks {
		score, err := urgency.Score(task.Priority, task.DueAt, now)
		if err != nil {
			// A priority outside the enum means a corrupted row; skip it.
			r.logger.Error("score computation failed",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()),
			)
			report.Failed++
			continue
		}
		if math.Abs(score-task.UrgencyScore) <= scoreEpsilon {
			continue
		}

		if err := r.repo.UpdateScore(ctx, task.ID, score); err != nil {
			r.logger.Error("score persist failed",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()),
			)
			report.Failed++
			continue
		}
		updates = append(updates, ScoreUpdate{TaskID: task.ID, NewScore: score})
		changed[task.ID] = score
		report.Changed++
		telemetry.ScoresChanged.Inc()
	}

	if len(updates) > 0 {
		r.broadcast(ctx, now, updates, changed)
	}

	span.SetAttributes(
		attribute.Int("rank.tasks", report.Tasks),
		attribute.Int("rank.changed", report.Changed),
	)
	return report, nil
}

func (r *Ranker) broadcast(ctx context.Context, now time.Time, updates []ScoreUpdate, changed map[string]float64) {
	payload, err := json.Marshal(scoreBatch{ComputedAt: now, Updates: updates})
	if err != nil {
		r.logger.Error("score batch marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := r.producer.Publish(ctx, kafka.TopicScores, now.Format(time.RFC3339), payload); err != nil {
		r.logger.Error("score batch publish failed",
			slog.Int("updates", len(updates)),
			slog.String("error", err.Error()),
		)
	}
	if err := r.cache.SetScores(ctx, changed); err != nil {
		r.logger.Error("score cache write failed", slog.String("error", err.Error()))
	}
}
