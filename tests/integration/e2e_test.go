//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auratask/auratask/internal/channels"
	"github.com/auratask/auratask/internal/domain"
	"github.com/auratask/auratask/internal/kafka"
	"github.com/auratask/auratask/internal/postgres"
	redisstore "github.com/auratask/auratask/internal/redis"
	"github.com/auratask/auratask/services/notifier"
	"github.com/auratask/auratask/services/ranker"
	"github.com/auratask/auratask/services/sweeper"
)

// TestE2E_ReminderPipeline exercises the full reminder path against real
// infrastructure: sweep → Kafka publish → notifier consume → webhook send →
// durable markers and delivery log.
func TestE2E_ReminderPipeline(t *testing.T) {
	ctx := context.Background()

	// ── Infrastructure setup ─────────────────────────────────────────────────
	pool, err := pgxpool.New(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE deliveries, task_reminders, channel_settings, tasks CASCADE") //nolint:errcheck
		pool.Close()
	})
	repo := postgres.NewRepository(pool)

	producer := kafka.NewProducer(testKafkaBrokers)
	t.Cleanup(func() { producer.Close() }) //nolint:errcheck
	createTopic(t, kafka.TopicOutbound)

	// Webhook endpoint standing in for the user's external integration.
	hits := make(chan []byte, 4)
	webhookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		hits <- body
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(webhookSrv.Close)

	// ── Step 1: preferences — webhook only ───────────────────────────────────
	require.NoError(t, repo.UpsertChannelSettings(ctx, &domain.ChannelSettings{
		OwnerID:         "owner-1",
		WebhookEnabled:  true,
		WebhookURL:      webhookSrv.URL,
		Remind24hBefore: true,
		Remind1hBefore:  true,
	}))

	// ── Step 2: a task 30 minutes out is past the 24h and 1h fire instants ───
	task := makeTask("ship the release", time.Now().UTC().Add(30*time.Minute).Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, task))

	// ── Step 3: sweep once, as the leader would ──────────────────────────────
	sw, err := sweeper.NewSweeper(repo, producer, nil, "@every 1m", slog.Default())
	require.NoError(t, err)

	report, err := sw.RunOnce(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Tasks)
	assert.Equal(t, 2, report.Dispatched, "DUE_24H and DUE_1H should both fire")
	assert.Equal(t, 0, report.Failed)

	got, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.Sent.Has(domain.ReminderDue24h))
	assert.True(t, got.Sent.Has(domain.ReminderDue1h))
	assert.False(t, got.Sent.Has(domain.ReminderDueNow), "DUE_NOW only fires once the deadline passes")

	// ── Step 4: notifier consumes and fans out to the webhook ────────────────
	consumer := kafka.NewConsumer(testKafkaBrokers, kafka.TopicOutbound, "e2e-notifier", slog.Default())
	t.Cleanup(func() { consumer.Close() }) //nolint:errcheck

	registry := channels.NewRegistry()
	registry.Register(channels.NewWebhookChannel())

	n := notifier.NewNotifier(consumer, producer, repo, registry,
		notifier.WithRetries(1),
		notifier.WithBaseDelay(10*time.Millisecond),
	)

	notifierCtx, stopNotifier := context.WithTimeout(ctx, 30*time.Second)
	defer stopNotifier()
	go n.Run(notifierCtx) //nolint:errcheck

	subjects := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case body := <-hits:
			var payload struct {
				Subject string `json:"subject"`
				Body    string `json:"body"`
			}
			require.NoError(t, json.Unmarshal(body, &payload))
			assert.Contains(t, payload.Body, "ship the release")
			subjects[payload.Subject] = true
		case <-notifierCtx.Done():
			t.Fatal("timed out waiting for webhook deliveries")
		}
	}
	assert.True(t, subjects["Due in 24 hours: ship the release"], "webhook should receive the 24h reminder")
	assert.True(t, subjects["Due in 1 hour: ship the release"], "webhook should receive the 1h reminder")

	// ── Step 5: delivery log and sweep idempotency ───────────────────────────
	require.Eventually(t, func() bool {
		var sent int
		err := pool.QueryRow(ctx,
			"SELECT count(*) FROM deliveries WHERE task_id = $1 AND sent", task.ID).Scan(&sent)
		return err == nil && sent == 2
	}, 10*time.Second, 100*time.Millisecond, "both sends should be recorded in the delivery log")

	report, err = sw.RunOnce(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Dispatched, "a second sweep must not re-send fired reminders")
}

// TestE2E_RankerScoresFlow verifies a re-rank pass persists scores, warms the
// Redis cache and publishes one batch on the scores topic.
func TestE2E_RankerScoresFlow(t *testing.T) {
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE deliveries, task_reminders, channel_settings, tasks CASCADE") //nolint:errcheck
		pool.Close()
	})
	repo := postgres.NewRepository(pool)

	redisClient := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	t.Cleanup(func() {
		redisClient.FlushDB(ctx) //nolint:errcheck
		redisClient.Close()      //nolint:errcheck
	})
	cache := redisstore.NewScoreCache(redisClient)

	producer := kafka.NewProducer(testKafkaBrokers)
	t.Cleanup(func() { producer.Close() }) //nolint:errcheck
	createTopic(t, kafka.TopicScores)

	soon := makeTask("prepare slides", time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond))
	far := makeTask("rotate credentials", time.Now().UTC().Add(96*time.Hour).Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, soon))
	require.NoError(t, repo.Create(ctx, far))

	rk, err := ranker.NewRanker(repo, producer, cache, nil, "@every 5m", slog.Default())
	require.NoError(t, err)

	report, err := rk.RunOnce(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Tasks)
	assert.Equal(t, 2, report.Changed, "fresh tasks start at score zero, so both change")

	// Persisted scores: the closer deadline must rank higher.
	gotSoon, err := repo.GetByID(ctx, soon.ID)
	require.NoError(t, err)
	gotFar, err := repo.GetByID(ctx, far.ID)
	require.NoError(t, err)
	assert.Greater(t, gotSoon.UrgencyScore, gotFar.UrgencyScore)

	// Cache agrees with the store.
	cached, err := cache.GetScore(ctx, soon.ID)
	require.NoError(t, err)
	assert.InDelta(t, gotSoon.UrgencyScore, cached, 1e-9)

	// One batch lands on the scores topic.
	consumer := kafka.NewConsumer(testKafkaBrokers, kafka.TopicScores, "e2e-scores", slog.Default())
	t.Cleanup(func() { consumer.Close() }) //nolint:errcheck

	batches := make(chan []byte, 1)
	consumerCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	go func() {
		consumer.Subscribe(consumerCtx, func(_ context.Context, m kafka.Message) error { //nolint:errcheck
			batches <- m.Value
			cancel()
			return nil
		})
	}()

	select {
	case raw := <-batches:
		var batch struct {
			ComputedAt time.Time `json:"computed_at"`
			Updates    []struct {
				TaskID   string  `json:"task_id"`
				NewScore float64 `json:"new_score"`
			} `json:"updates"`
		}
		require.NoError(t, json.Unmarshal(raw, &batch))
		assert.Len(t, batch.Updates, 2, "one batch carries the whole pass")
		assert.False(t, batch.ComputedAt.IsZero())
	case <-consumerCtx.Done():
		t.Fatal("timed out waiting for scores batch")
	}
}
