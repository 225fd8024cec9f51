// Package notifier consumes reminder deliveries from the outbound topic and
// sends them through every channel the task's owner enabled. It is the only
// component that talks to the outside world, so it carries the rate limiter,
// the retry policy and the dead-letter queue.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/auratask/auratask/internal/channels"
	"github.com/auratask/auratask/internal/domain"
	"github.com/auratask/auratask/internal/kafka"
	"github.com/auratask/auratask/internal/postgres"
	redisstore "github.com/auratask/auratask/internal/redis"
	"github.com/auratask/auratask/pkg/retry"
	"github.com/auratask/auratask/pkg/telemetry"
)

// errThrottled marks a send refused by the rate limiter. Throttling is
// transient: the channel itself is healthy and accepts again once the window
// passes, unlike a send that died after retries.
var errThrottled = errors.New("channel rate limited")

// Notifier consumes the outbound topic, re-verifies each delivery against the
// store and fans it out to the owner's enabled channels.
type Notifier struct {
	consumer   kafka.Consumer
	producer   kafka.Producer
	repo       postgres.TaskRepository
	registry   *channels.Registry
	limiter    redisstore.RateLimiter // nil = disabled
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

func WithRetries(n int) Option             { return func(nf *Notifier) { nf.maxRetries = n } }
func WithBaseDelay(d time.Duration) Option { return func(nf *Notifier) { nf.baseDelay = d } }
func WithLogger(l *slog.Logger) Option     { return func(nf *Notifier) { nf.logger = l } }

func WithRateLimiter(r redisstore.RateLimiter) Option {
	return func(nf *Notifier) { nf.limiter = r }
}

// NewNotifier constructs a Notifier with the given dependencies and options.
func NewNotifier(
	consumer kafka.Consumer,
	producer kafka.Producer,
	repo postgres.TaskRepository,
	registry *channels.Registry,
	opts ...Option,
) *Notifier {
	n := &Notifier{
		consumer:   consumer,
		producer:   producer,
		repo:       repo,
		registry:   registry,
		maxRetries: 3,
		baseDelay:  time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run starts consuming. Blocks until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	return n.consumer.Subscribe(ctx, n.handle)
}

// RunRetention prunes delivery log rows older than retention once per
// interval, until ctx is cancelled. Failures are logged and retried on the
// next interval.
func (n *Notifier) RunRetention(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := n.repo.PruneDeliveries(ctx, retention)
			if err != nil {
				n.logger.Error("delivery log prune failed", slog.String("error", err.Error()))
				continue
			}
			if pruned > 0 {
				n.logger.Info("pruned delivery log", slog.Int64("rows", pruned))
			}
		}
	}
}

// handle processes one delivery message. It returns an error only for
// transient conditions (store hiccups, every channel rate limited), so the
// offset stays uncommitted and the message is re-delivered; every terminal
// outcome (sent, suppressed, dead-lettered) commits.
func (n *Notifier) handle(ctx context.Context, msg kafka.Message) error {
	ctx, span := otel.Tracer("notifier").Start(ctx, "notifier.handle_delivery")
	defer span.End()

	var delivery domain.Delivery
	if err := json.Unmarshal(msg.Value, &delivery); err != nil {
		n.logger.Error("malformed delivery, sending to DLQ", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed delivery")
		telemetry.NotifierDLQTotal.Inc()
		return n.toDLQ(ctx, msg.Value)
	}

	span.SetAttributes(
		attribute.String("task.id", delivery.TaskID),
		attribute.String("reminder.kind", string(delivery.Kind)),
	)
	log := n.logger.With(
		slog.String("task_id", delivery.TaskID),
		slog.String("kind", string(delivery.Kind)),
	)

	// Re-verify against the store: the task may have been completed, deleted
	// or snoozed between the sweep and this consumption. The sweep is the
	// eligibility check; this is the last-moment suppression check.
	task, err := n.repo.GetByID(ctx, delivery.TaskID)
	if err != nil {
		var notFound *domain.TaskNotFoundError
		if errors.As(err, &notFound) {
			log.Info("task gone, dropping reminder")
			return nil
		}
		// Store hiccup: leave the offset uncommitted and retry later.
		return fmt.Errorf("load task %s: %w", delivery.TaskID, err)
	}
	if task.Status != domain.StatusActive {
		log.Info("task no longer active, dropping reminder")
		return nil
	}
	if task.Snoozed(time.Now().UTC()) {
		log.Info("task snoozed, dropping reminder")
		return nil
	}
	if !task.DueAt.Equal(delivery.DueAt) {
		// The due date moved after the sweep: this delivery belongs to a
		// superseded epoch and the new epoch will produce its own reminders.
		log.Info("due date changed since sweep, dropping stale reminder")
		return nil
	}

	settings, err := n.repo.GetChannelSettings(ctx, delivery.OwnerID)
	if err != nil {
		return fmt.Errorf("load channel settings for %s: %w", delivery.OwnerID, err)
	}
	if suppressedByPreferences(delivery.Kind, settings) {
		log.Info("reminder kind disabled by owner preferences")
		return nil
	}

	enabled := n.registry.EnabledFor(settings)
	if len(enabled) == 0 {
		log.Info("no channels enabled, dropping reminder")
		return nil
	}

	msgBody := channels.Render(&delivery)
	failed, throttled := 0, 0
	for _, ch := range enabled {
		if err := n.sendOne(ctx, ch, settings, msgBody, &delivery, log); err != nil {
			if errors.Is(err, errThrottled) {
				throttled++
			} else {
				failed++
			}
		}
	}

	if failed+throttled == len(enabled) {
		if throttled > 0 {
			// A throttled channel recovers once its window passes. Leave the
			// offset uncommitted so the delivery is retried, not dead-lettered.
			log.Warn("every channel unavailable, retrying delivery",
				slog.Int("rate_limited", throttled))
			return fmt.Errorf("delivery throttled on %d of %d channels", throttled, len(enabled))
		}
		// Nothing got through on any channel: dead-letter for inspection.
		log.Error("delivery failed on every channel, sending to DLQ")
		span.SetStatus(codes.Error, "all channels failed")
		telemetry.NotifierDLQTotal.Inc()
		return n.toDLQ(ctx, msg.Value)
	}
	return nil
}

// sendOne pushes the rendered message through one channel with rate limiting
// and retries, and records the outcome either way.
func (n *Notifier) sendOne(
	ctx context.Context,
	ch channels.Channel,
	settings *domain.ChannelSettings,
	msg channels.Message,
	delivery *domain.Delivery,
	log *slog.Logger,
) error {
	if n.limiter != nil {
		allowed, err := n.limiter.Allow(ctx, ch.Name())
		if err != nil {
			// Limiter outage must not drop reminders; send anyway.
			log.Error("rate limiter error", slog.String("error", err.Error()))
		} else if !allowed {
			log.Warn("channel rate limit exceeded", slog.String("channel", ch.Name()))
			telemetry.NotifierRateLimited.WithLabelValues(ch.Name()).Inc()
			n.record(ctx, delivery, ch.Name(), false, "rate limited")
			telemetry.DeliveriesTotal.WithLabelValues(ch.Name(), "rate_limited").Inc()
			return fmt.Errorf("send on %s: %w", ch.Name(), errThrottled)
		}
	}

	sendErr := retry.Do(ctx, retry.Config{
		MaxAttempts: n.maxRetries + 1,
		BaseDelay:   n.baseDelay,
		MaxDelay:    30 * time.Second,
		OnRetry: func(attempt int, err error) {
			telemetry.DeliveryRetries.WithLabelValues(ch.Name()).Inc()
			log.Warn("channel send failed, retrying",
				slog.String("channel", ch.Name()),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		},
	}, func() error {
		return ch.Send(ctx, settings, msg)
	})

	if sendErr != nil {
		log.Error("channel send dead after all retries",
			slog.String("channel", ch.Name()),
			slog.String("error", sendErr.Error()),
		)
		n.record(ctx, delivery, ch.Name(), false, sendErr.Error())
		telemetry.DeliveriesTotal.WithLabelValues(ch.Name(), "failed").Inc()
		return &domain.ChannelSendError{Channel: ch.Name(), TaskID: delivery.TaskID, Err: sendErr}
	}

	n.record(ctx, delivery, ch.Name(), true, "")
	telemetry.DeliveriesTotal.WithLabelValues(ch.Name(), "sent").Inc()
	log.Info("reminder delivered", slog.String("channel", ch.Name()))
	return nil
}

// record writes the delivery outcome log row. Best effort: a logging failure
// never turns a delivered reminder into an error.
func (n *Notifier) record(ctx context.Context, d *domain.Delivery, channel string, sent bool, errMsg string) {
	outcome := &domain.DeliveryOutcome{
		TaskID:  d.TaskID,
		Kind:    d.Kind,
		Channel: channel,
		Sent:    sent,
		Error:   errMsg,
	}
	if err := n.repo.RecordDelivery(ctx, outcome); err != nil {
		n.logger.Error("failed to record delivery outcome",
			slog.String("task_id", d.TaskID),
			slog.String("error", err.Error()),
		)
	}
}

func (n *Notifier) toDLQ(ctx context.Context, payload []byte) error {
	if err := n.producer.Publish(ctx, kafka.TopicDLQ, "", payload); err != nil {
		n.logger.Error("failed to publish to DLQ", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// suppressedByPreferences applies the owner's per-kind toggles. DUE_NOW is
// never suppressible: a task hitting its deadline always notifies.
func suppressedByPreferences(kind domain.ReminderKind, s *domain.ChannelSettings) bool {
	switch kind {
	case domain.ReminderDue24h:
		return !s.Remind24hBefore
	case domain.ReminderDue1h:
		return !s.Remind1hBefore
	}
	return false
}
