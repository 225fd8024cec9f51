// Package notify decides which reminders a task is owed at a given instant.
// The policy is pure: it inspects a task and "now" and returns the kinds
// that should fire, leaving all mutation of fired-state to the caller so a
// failed dispatch stays eligible for the next sweep.
package notify

import (
	"time"

	"github.com/auratask/auratask/internal/domain"
)

// DueReminders returns the reminder kinds that are due for task at now and
// not yet recorded as fired for the task's current due-instant epoch.
//
// Non-ACTIVE tasks and tasks snoozed into the future yield nothing. A task
// whose due instant is already deep in the past (imported or edited) can
// yield several kinds at once; the result is ordered DUE_24H, DUE_1H,
// DUE_NOW so catch-up dispatches read chronologically.
func DueReminders(task *domain.Task, now time.Time) []domain.ReminderKind {
	if task.Status != domain.StatusActive {
		return nil
	}
	if task.Snoozed(now) {
		return nil
	}

	var due []domain.ReminderKind
	for _, kind := range domain.AllReminderKinds {
		if task.Sent.Has(kind) {
			continue
		}
		fireAt := task.DueAt.Add(-kind.Offset())
		if !now.Before(fireAt) {
			due = append(due, kind)
		}
	}
	return due
}

// NextFire returns the earliest future fire instant across the kinds not yet
// fired, and false if every kind has fired or is already due. The sweeper
// reports it for observability; correctness never depends on it.
func NextFire(task *domain.Task, now time.Time) (time.Time, bool) {
	var next time.Time
	for _, kind := range domain.AllReminderKinds {
		if task.Sent.Has(kind) {
			continue
		}
		fireAt := task.DueAt.Add(-kind.Offset())
		if fireAt.After(now) && (next.IsZero() || fireAt.Before(next)) {
			next = fireAt
		}
	}
	return next, !next.IsZero()
}
