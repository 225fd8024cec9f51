package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auratask/auratask/internal/domain"
)

// TaskRepository abstracts all database access for tasks and their
// reminder markers. Every write is upsert-shaped so a retried or duplicated
// sweep invocation is wasteful but never corrupting.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	ListActive(ctx context.Context) ([]*domain.Task, error)
	UpdateDetails(ctx context.Context, id, title, notes string, priority domain.Priority) error
	UpdateDue(ctx context.Context, id string, due time.Time) error
	Snooze(ctx context.Context, id string, until *time.Time) error
	Complete(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	UpdateScore(ctx context.Context, id string, score float64) error
	MarkReminderSent(ctx context.Context, taskID string, dueAt time.Time, kind domain.ReminderKind) error
	RecordDelivery(ctx context.Context, outcome *domain.DeliveryOutcome) error
	PruneDeliveries(ctx context.Context, olderThan time.Duration) (int64, error)
	GetChannelSettings(ctx context.Context, ownerID string) (*domain.ChannelSettings, error)
	UpsertChannelSettings(ctx context.Context, s *domain.ChannelSettings) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool with the TaskRepository interface.
func NewRepository(pool *pgxpool.Pool) TaskRepository {
	return &repository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

const taskColumns = `id, owner_id, title, notes, priority, status, due_at,
       timezone, snoozed_until, urgency_score, created_at, updated_at`

func (r *repository) Create(ctx context.Context, task *domain.Task) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks
			(id, owner_id, title, notes, priority, status, due_at, timezone,
			 snoozed_until, urgency_score, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		task.ID, task.OwnerID, task.Title, task.Notes,
		string(task.Priority), string(task.Status),
		task.DueAt, task.Timezone, task.SnoozedUntil,
		task.UrgencyScore, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.TaskNotFoundError{TaskID: id}
		}
		return nil, err
	}

	if err := r.hydrateSent(ctx, []*domain.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

// ListActive loads every ACTIVE task with its reminder state for the current
// due-instant epoch hydrated.
func (r *repository) ListActive(ctx context.Context) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = $1 ORDER BY due_at ASC`,
		string(domain.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}

	if err := r.hydrateSent(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// hydrateSent fills Task.Sent with the markers recorded for each task's
// current due_at. Markers from superseded due instants are ignored.
func (r *repository) hydrateSent(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Task, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT tr.task_id, tr.kind
		FROM task_reminders tr
		JOIN tasks t ON t.id = tr.task_id AND t.due_at = tr.due_at
		WHERE tr.task_id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("load reminder markers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, kind string
		if err := rows.Scan(&taskID, &kind); err != nil {
			return fmt.Errorf("scan reminder marker: %w", err)
		}
		if t, ok := byID[taskID]; ok {
			t.Sent = t.Sent.Mark(domain.ReminderKind(kind))
		}
	}
	return rows.Err()
}

func (r *repository) UpdateDetails(ctx context.Context, id, title, notes string, priority domain.Priority) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET title = $1, notes = $2, priority = $3, updated_at = $4
		WHERE id = $5
	`, title, notes, string(priority), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	return nil
}

// UpdateDue moves the due instant and deletes markers from superseded epochs
// in the same transaction, so the new epoch starts with every reminder kind
// eligible and the markers table stays bounded.
func (r *repository) UpdateDue(ctx context.Context, id string, due time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update due for %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE tasks SET due_at = $1, updated_at = $2 WHERE id = $3
	`, due, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update due for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: id}
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM task_reminders WHERE task_id = $1 AND due_at <> $2
	`, id, due); err != nil {
		return fmt.Errorf("clear reminder markers for %s: %w", id, err)
	}

	return tx.Commit(ctx)
}

func (r *repository) Snooze(ctx context.Context, id string, until *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET snoozed_until = $1, updated_at = $2 WHERE id = $3
	`, until, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("snooze task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	return nil
}

func (r *repository) Complete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3
	`, string(domain.StatusCompleted), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	return nil
}

// UpdateScore writes the cached urgency score. Last write wins: the score is
// derived state and any sweep's value is as good as another's.
func (r *repository) UpdateScore(ctx context.Context, id string, score float64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tasks SET urgency_score = $1 WHERE id = $2
	`, score, id)
	if err != nil {
		return fmt.Errorf("update score for %s: %w", id, err)
	}
	return nil
}

// MarkReminderSent records that kind fired for the given due-instant epoch.
// ON CONFLICT DO NOTHING gives the marker set-union semantics: a concurrent
// or retried sweep re-marking the same kind is a no-op.
func (r *repository) MarkReminderSent(ctx context.Context, taskID string, dueAt time.Time, kind domain.ReminderKind) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO task_reminders (task_id, due_at, kind, sent_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (task_id, due_at, kind) DO NOTHING
	`, taskID, dueAt, string(kind), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark reminder %s/%s: %w", taskID, kind, err)
	}
	return nil
}

func (r *repository) RecordDelivery(ctx context.Context, outcome *domain.DeliveryOutcome) error {
	if outcome.ID == "" {
		outcome.ID = uuid.New().String()
	}
	if outcome.DeliveredAt.IsZero() {
		outcome.DeliveredAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deliveries (id, task_id, kind, channel, sent, error, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		outcome.ID, outcome.TaskID, string(outcome.Kind),
		outcome.Channel, outcome.Sent, outcome.Error, outcome.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("record delivery for %s: %w", outcome.TaskID, err)
	}
	return nil
}

// PruneDeliveries removes delivery log rows older than the retention window.
func (r *repository) PruneDeliveries(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := r.pool.Exec(ctx, `DELETE FROM deliveries WHERE delivered_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repository) GetChannelSettings(ctx context.Context, ownerID string) (*domain.ChannelSettings, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT owner_id, email_enabled, email_address, telegram_enabled,
		       telegram_chat_id, webhook_enabled, webhook_url,
		       remind_24h_before, remind_1h_before
		FROM channel_settings WHERE owner_id = $1
	`, ownerID)

	var s domain.ChannelSettings
	err := row.Scan(
		&s.OwnerID, &s.EmailEnabled, &s.EmailAddress, &s.TelegramEnabled,
		&s.TelegramChatID, &s.WebhookEnabled, &s.WebhookURL,
		&s.Remind24hBefore, &s.Remind1hBefore,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No row means defaults: email on, everything else off.
			return &domain.ChannelSettings{
				OwnerID:         ownerID,
				EmailEnabled:    true,
				Remind24hBefore: true,
				Remind1hBefore:  true,
			}, nil
		}
		return nil, fmt.Errorf("load channel settings for %s: %w", ownerID, err)
	}
	return &s, nil
}

func (r *repository) UpsertChannelSettings(ctx context.Context, s *domain.ChannelSettings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO channel_settings
			(owner_id, email_enabled, email_address, telegram_enabled,
			 telegram_chat_id, webhook_enabled, webhook_url,
			 remind_24h_before, remind_1h_before)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (owner_id) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			email_address = EXCLUDED.email_address,
			telegram_enabled = EXCLUDED.telegram_enabled,
			telegram_chat_id = EXCLUDED.telegram_chat_id,
			webhook_enabled = EXCLUDED.webhook_enabled,
			webhook_url = EXCLUDED.webhook_url,
			remind_24h_before = EXCLUDED.remind_24h_before,
			remind_1h_before = EXCLUDED.remind_1h_before
	`,
		s.OwnerID, s.EmailEnabled, s.EmailAddress, s.TelegramEnabled,
		s.TelegramChatID, s.WebhookEnabled, s.WebhookURL,
		s.Remind24hBefore, s.Remind1hBefore,
	)
	if err != nil {
		return fmt.Errorf("upsert channel settings for %s: %w", s.OwnerID, err)
	}
	return nil
}

// scanTask reads a task row from any pgx row type.
func scanTask(row interface {
	Scan(...any) error
}) (*domain.Task, error) {
	var (
		task        domain.Task
		priorityStr string
		statusStr   string
	)
	err := row.Scan(
		&task.ID, &task.OwnerID, &task.Title, &task.Notes,
		&priorityStr, &statusStr, &task.DueAt, &task.Timezone,
		&task.SnoozedUntil, &task.UrgencyScore, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Priority = domain.Priority(priorityStr)
	task.Status = domain.Status(statusStr)
	return &task, nil
}
