package domain

import "time"

// Priority is the user-assigned importance of a task.
type Priority string

const (
	PriorityUrgent Priority = "URGENT"
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Valid reports whether p is a member of the priority enum.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Status represents the lifecycle states of a task.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
)

// IsTerminal returns true if no further state transitions are possible.
// Completed tasks are never revisited by the sweeper or the ranker.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// Task is the core domain entity: a user task with a deadline.
//
// DueAt and SnoozedUntil are absolute UTC instants. Timezone is the owner's
// IANA zone identifier and is used only for rendering civil times; it never
// participates in ordering or urgency math.
type Task struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"owner_id"`
	Title        string        `json:"title"`
	Notes        string        `json:"notes,omitempty"`
	Priority     Priority      `json:"priority"`
	Status       Status        `json:"status"`
	DueAt        time.Time     `json:"due_at"`
	Timezone     string        `json:"timezone"`
	SnoozedUntil *time.Time    `json:"snoozed_until,omitempty"`
	UrgencyScore float64       `json:"urgency_score"`
	Sent         ReminderState `json:"sent"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Snoozed reports whether reminder evaluation is suspended at now.
func (t *Task) Snoozed(now time.Time) bool {
	return t.SnoozedUntil != nil && now.Before(*t.SnoozedUntil)
}

// Delivery is one reminder send request, produced by the sweeper and consumed
// by the notifier. The DueAt it carries pins the reminder to the due-date
// epoch it was evaluated against.
type Delivery struct {
	ID       string       `json:"id"`
	TaskID   string       `json:"task_id"`
	OwnerID  string       `json:"owner_id"`
	Kind     ReminderKind `json:"kind"`
	Title    string       `json:"title"`
	Priority Priority     `json:"priority"`
	DueAt    time.Time    `json:"due_at"`
	Timezone string       `json:"timezone"`
	QueuedAt time.Time    `json:"queued_at"`
}

// DeliveryOutcome records a single send attempt on one channel.
type DeliveryOutcome struct {
	ID          string       `json:"id"`
	TaskID      string       `json:"task_id"`
	Kind        ReminderKind `json:"kind"`
	Channel     string       `json:"channel"`
	Sent        bool         `json:"sent"`
	Error       string       `json:"error,omitempty"`
	DeliveredAt time.Time    `json:"delivered_at"`
}

// ChannelSettings holds a user's per-channel notification preferences,
// one row per user.
type ChannelSettings struct {
	OwnerID         string `json:"owner_id"`
	EmailEnabled    bool   `json:"email_enabled"`
	EmailAddress    string `json:"email_address,omitempty"`
	TelegramEnabled bool   `json:"telegram_enabled"`
	TelegramChatID  int64  `json:"telegram_chat_id,omitempty"`
	WebhookEnabled  bool   `json:"webhook_enabled"`
	WebhookURL      string `json:"webhook_url,omitempty"`
	Remind24hBefore bool   `json:"remind_24h_before"`
	Remind1hBefore  bool   `json:"remind_1h_before"`
}
