//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auratask/auratask/internal/domain"
	"github.com/auratask/auratask/internal/postgres"
)

// newRepo creates a repository connected to the test Postgres container
// and truncates the tables on cleanup.
func newRepo(t *testing.T) postgres.TaskRepository {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE deliveries, task_reminders, channel_settings, tasks CASCADE") //nolint:errcheck
		pool.Close()
	})
	return postgres.NewRepository(pool)
}

func makeTask(title string, due time.Time) *domain.Task {
	now := time.Now().UTC()
	return &domain.Task{
		ID:        uuid.New().String(),
		OwnerID:   "owner-1",
		Title:     title,
		Priority:  domain.PriorityMedium,
		Status:    domain.StatusActive,
		DueAt:     due,
		Timezone:  "UTC",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostgres_Create_GetByID(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	due := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Microsecond)
	task := makeTask("file taxes", due)
	require.NoError(t, repo.Create(ctx, task))

	got, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, "file taxes", got.Title)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.True(t, got.DueAt.Equal(due), "due_at should round-trip: %s vs %s", got.DueAt, due)
	assert.False(t, got.Sent.Has(domain.ReminderDue24h), "fresh task has no markers")
}

func TestPostgres_GetByID_NotFound(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.GetByID(context.Background(), uuid.New().String())
	require.Error(t, err)

	var notFound *domain.TaskNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestPostgres_MarkReminderSent_Idempotent(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	task := makeTask("call dentist", time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, task))

	// Marking the same (task, due, kind) twice is a no-op, not an error.
	require.NoError(t, repo.MarkReminderSent(ctx, task.ID, task.DueAt, domain.ReminderDue24h))
	require.NoError(t, repo.MarkReminderSent(ctx, task.ID, task.DueAt, domain.ReminderDue24h))
	require.NoError(t, repo.MarkReminderSent(ctx, task.ID, task.DueAt, domain.ReminderDue1h))

	got, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.Sent.Has(domain.ReminderDue24h))
	assert.True(t, got.Sent.Has(domain.ReminderDue1h))
	assert.False(t, got.Sent.Has(domain.ReminderDueNow))
}

func TestPostgres_UpdateDue_ResetsReminderState(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	task := makeTask("submit report", time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.MarkReminderSent(ctx, task.ID, task.DueAt, domain.ReminderDue24h))
	require.NoError(t, repo.MarkReminderSent(ctx, task.ID, task.DueAt, domain.ReminderDue1h))

	// Moving the due date starts a fresh epoch: old markers disappear.
	newDue := task.DueAt.Add(72 * time.Hour)
	require.NoError(t, repo.UpdateDue(ctx, task.ID, newDue))

	got, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.DueAt.Equal(newDue))
	assert.False(t, got.Sent.Has(domain.ReminderDue24h), "markers from the old due instant should be gone")
	assert.False(t, got.Sent.Has(domain.ReminderDue1h))
}

func TestPostgres_ListActive_ExcludesCompleted(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	active := makeTask("water plants", time.Now().UTC().Add(2*time.Hour).Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, active))

	done := makeTask("buy groceries", time.Now().UTC().Add(3*time.Hour).Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.Complete(ctx, done.ID))

	tasks, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, active.ID, tasks[0].ID)
}

func TestPostgres_Snooze_SetAndClear(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	task := makeTask("renew passport", time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, task))

	until := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Microsecond)
	require.NoError(t, repo.Snooze(ctx, task.ID, &until))

	got, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SnoozedUntil)
	assert.True(t, got.SnoozedUntil.Equal(until))

	require.NoError(t, repo.Snooze(ctx, task.ID, nil))
	got, err = repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SnoozedUntil)
}

func TestPostgres_RecordAndPruneDeliveries(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	task := makeTask("pay rent", time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, task))

	outcome := &domain.DeliveryOutcome{
		TaskID:      task.ID,
		Kind:        domain.ReminderDue1h,
		Channel:     "email",
		Sent:        true,
		DeliveredAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, repo.RecordDelivery(ctx, outcome))
	assert.NotEmpty(t, outcome.ID, "RecordDelivery should populate the ID field")

	pruned, err := repo.PruneDeliveries(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestPostgres_ChannelSettings_DefaultsAndUpsert(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	// No row yet: email on, reminders on, everything else off.
	got, err := repo.GetChannelSettings(ctx, "owner-1")
	require.NoError(t, err)
	assert.True(t, got.EmailEnabled)
	assert.True(t, got.Remind24hBefore)
	assert.True(t, got.Remind1hBefore)
	assert.False(t, got.TelegramEnabled)

	settings := &domain.ChannelSettings{
		OwnerID:         "owner-1",
		EmailEnabled:    false,
		TelegramEnabled: true,
		TelegramChatID:  12345,
		Remind24hBefore: true,
		Remind1hBefore:  false,
	}
	require.NoError(t, repo.UpsertChannelSettings(ctx, settings))
	// Second upsert overwrites in place.
	settings.TelegramChatID = 67890
	require.NoError(t, repo.UpsertChannelSettings(ctx, settings))

	got, err = repo.GetChannelSettings(ctx, "owner-1")
	require.NoError(t, err)
	assert.False(t, got.EmailEnabled)
	assert.True(t, got.TelegramEnabled)
	assert.Equal(t, int64(67890), got.TelegramChatID)
	assert.False(t, got.Remind1hBefore)
}
