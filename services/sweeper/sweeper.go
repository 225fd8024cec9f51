// Package sweeper hosts the periodic scheduling sweep: it walks every ACTIVE
// task, asks the notification policy which reminders are owed, hands each one
// to the outbound topic and records a durable marker so the same reminder is
// not dispatched twice for one due-date epoch.
package sweeper

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/auratask/auratask/internal/domain"
	"github.com/auratask/auratask/internal/kafka"
	"github.com/auratask/auratask/internal/notify"
	"github.com/auratask/auratask/internal/postgres"
	redisstore "github.com/auratask/auratask/internal/redis"
	"github.com/auratask/auratask/pkg/telemetry"
)

// Report summarizes one completed sweep.
type Report struct {
	Tasks      int
	Dispatched int
	Failed     int
	// NextFire is the earliest upcoming fire instant across all tasks, when
	// one exists. Informational only.
	NextFire time.Time
}

// Sweeper runs the reminder sweep on a cron schedule with Redis leader
// election, so a fleet of instances dispatches each reminder once in the
// happy path. Delivery is at-least-once: a crash between the publish and the
// marker write re-sends that reminder on the next sweep.
type Sweeper struct {
	repo     postgres.TaskRepository
	producer kafka.Producer
	lock     *redisstore.LeaderLock
	schedule cron.Schedule
	logger   *slog.Logger
}

// scheduleParser accepts standard five-field cron expressions plus an
// optional leading seconds field, so sub-minute sweep intervals work.
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewSweeper constructs a Sweeper. scheduleExpr is a cron expression
// (optionally with a seconds field, e.g. "*/30 * * * * *").
func NewSweeper(
	repo postgres.TaskRepository,
	producer kafka.Producer,
	lock *redisstore.LeaderLock,
	scheduleExpr string,
	logger *slog.Logger,
) (*Sweeper, error) {
	schedule, err := scheduleParser.Parse(scheduleExpr)
	if err != nil {
		return nil, err
	}
	return &Sweeper{
		repo:     repo,
		producer: producer,
		lock:     lock,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Run executes sweeps on the configured schedule until ctx is cancelled.
// Ticks are strictly sequential: the next fire instant is computed after a
// sweep finishes, so an overrunning sweep skips the instants it covered
// instead of queueing them.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	leader, err := s.lock.TryAcquire(ctx)
	if err != nil {
		s.logger.Error("leader election failed", slog.String("error", err.Error()))
		telemetry.SweepTicksTotal.WithLabelValues("error").Inc()
		return
	}
	if !leader {
		telemetry.SweepTicksTotal.WithLabelValues("not_leader").Inc()
		return
	}

	start := time.Now()
	report, err := s.RunOnce(ctx, start.UTC())
	telemetry.SweepDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("sweep aborted", slog.String("error", err.Error()))
		telemetry.SweepTicksTotal.WithLabelValues("error").Inc()
		return
	}
	telemetry.SweepTicksTotal.WithLabelValues("ok").Inc()

	attrs := []any{
		slog.Int("tasks", report.Tasks),
		slog.Int("dispatched", report.Dispatched),
		slog.Int("failed", report.Failed),
		slog.Duration("took", time.Since(start)),
	}
	if !report.NextFire.IsZero() {
		attrs = append(attrs, slog.Time("next_fire", report.NextFire))
	}
	s.logger.Info("sweep completed", attrs...)
}

// RunOnce performs a single sweep over all ACTIVE tasks evaluated at now.
//
// A store outage aborts the whole tick with an error. A publish failure for
// one task is isolated: it is logged and counted, the marker stays unwritten
// so the reminder remains eligible, and the sweep moves on to the next task.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	ctx, span := otel.Tracer("sweeper").Start(ctx, "sweeper.run_once")
	defer span.End()

	tasks, err := s.repo.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "task load failed")
		return Report{}, err
	}

	report := Report{Tasks: len(tasks)}
	for _, task := range tasks {
		for _, kind := range notify.DueReminders(task, now) {
			if err := s.dispatch(ctx, task, kind, now); err != nil {
				s.logger.Error("reminder dispatch failed",
					slog.String("task_id", task.ID),
					slog.String("kind", string(kind)),
					slog.String("error", err.Error()),
				)
				telemetry.ReminderDispatchFailures.WithLabelValues(string(kind)).Inc()
				report.Failed++
				// Marker not written: this kind stays eligible next sweep.
				break
			}
			telemetry.RemindersDispatched.WithLabelValues(string(kind)).Inc()
			report.Dispatched++
		}

		if next, ok := notify.NextFire(task, now); ok {
			if report.NextFire.IsZero() || next.Before(report.NextFire) {
				report.NextFire = next
			}
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.tasks", report.Tasks),
		attribute.Int("sweep.dispatched", report.Dispatched),
		attribute.Int("sweep.failed", report.Failed),
	)
	return report, nil
}

// dispatch publishes one reminder and then records its fired marker. The
// marker write happens only after the publish is acknowledged; if the marker
// write itself fails the reminder may be re-sent, which the notifier side
// tolerates.
func (s *Sweeper) dispatch(ctx context.Context, task *domain.Task, kind domain.ReminderKind, now time.Time) error {
	delivery := domain.Delivery{
		ID:       uuid.New().String(),
		TaskID:   task.ID,
		OwnerID:  task.OwnerID,
		Kind:     kind,
		Title:    task.Title,
		Priority: task.Priority,
		DueAt:    task.DueAt,
		Timezone: task.Timezone,
		QueuedAt: now,
	}
	payload, err := json.Marshal(delivery)
	if err != nil {
		return err
	}

	if err := s.producer.Publish(ctx, kafka.TopicOutbound, task.ID, payload); err != nil {
		return err
	}

	if err := s.repo.MarkReminderSent(ctx, task.ID, task.DueAt, kind); err != nil {
		// Published but unmarked: the next sweep re-sends this kind.
		s.logger.Warn("reminder published but marker write failed",
			slog.String("task_id", task.ID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	task.Sent = task.Sent.Mark(kind)
	return nil
}
