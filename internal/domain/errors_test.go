package domain_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/auratask/auratask/internal/domain"
)

func TestTaskNotFoundError(t *testing.T) {
	err := &domain.TaskNotFoundError{TaskID: "abc-123"}
	if !strings.Contains(err.Error(), "abc-123") {
		t.Errorf("error message should contain task ID, got: %q", err.Error())
	}
}

func TestInvalidZoneError(t *testing.T) {
	err := &domain.InvalidZoneError{Zone: "Mars/Olympus"}
	if !strings.Contains(err.Error(), "Mars/Olympus") {
		t.Errorf("error message should contain the zone, got: %q", err.Error())
	}
}

func TestInvalidPriorityError(t *testing.T) {
	err := &domain.InvalidPriorityError{Priority: "WHENEVER"}
	if !strings.Contains(err.Error(), "WHENEVER") {
		t.Errorf("error message should contain the priority, got: %q", err.Error())
	}
}

func TestChannelSendErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &domain.ChannelSendError{Channel: "email", TaskID: "t-1", Err: cause}

	msg := err.Error()
	if !strings.Contains(msg, "email") || !strings.Contains(msg, "t-1") {
		t.Errorf("error message missing channel or task ID: %q", msg)
	}
	if !errors.Is(err, cause) {
		t.Error("ChannelSendError should unwrap to its cause")
	}
}

func TestAllErrorTypesImplementError(t *testing.T) {
	var _ error = &domain.TaskNotFoundError{}
	var _ error = &domain.InvalidZoneError{}
	var _ error = &domain.InvalidPriorityError{}
	var _ error = &domain.ChannelSendError{}
}
