package domain

import "fmt"

// TaskNotFoundError is returned when a task ID does not exist.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// InvalidZoneError is returned when a zone identifier is not in the IANA
// database.
type InvalidZoneError struct {
	Zone string
}

func (e *InvalidZoneError) Error() string {
	return fmt.Sprintf("unknown timezone %q", e.Zone)
}

// InvalidPriorityError is returned when a priority value is outside the enum.
// It signals a caller contract violation, never a default.
type InvalidPriorityError struct {
	Priority Priority
}

func (e *InvalidPriorityError) Error() string {
	return fmt.Sprintf("invalid priority %q", string(e.Priority))
}

// ChannelSendError is returned when a notification channel fails to accept
// a delivery.
type ChannelSendError struct {
	Channel string
	TaskID  string
	Err     error
}

func (e *ChannelSendError) Error() string {
	return fmt.Sprintf("channel %s failed for task %s: %v", e.Channel, e.TaskID, e.Err)
}

func (e *ChannelSendError) Unwrap() error { return e.Err }
