package domain_test

import (
	"testing"
	"time"

	"github.com/auratask/auratask/internal/domain"
)

func TestPriorityValid(t *testing.T) {
	tests := []struct {
		priority domain.Priority
		want     bool
	}{
		{domain.PriorityUrgent, true},
		{domain.PriorityHigh, true},
		{domain.PriorityMedium, true},
		{domain.PriorityLow, true},
		{domain.Priority("CRITICAL"), false},
		{domain.Priority(""), false},
		{domain.Priority("urgent"), false}, // enum is case-sensitive
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			if got := tt.priority.Valid(); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.priority, got, tt.want)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	if domain.StatusActive.IsTerminal() {
		t.Error("ACTIVE must not be terminal")
	}
	if !domain.StatusCompleted.IsTerminal() {
		t.Error("COMPLETED must be terminal")
	}
}

func TestTaskSnoozed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name         string
		snoozedUntil *time.Time
		want         bool
	}{
		{"nil", nil, false},
		{"future", &future, true},
		{"past", &past, false},
		{"exactly now", &now, false}, // snooze expires at the boundary
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &domain.Task{SnoozedUntil: tt.snoozedUntil}
			if got := task.Snoozed(now); got != tt.want {
				t.Errorf("Snoozed() = %v, want %v", got, tt.want)
			}
		})
	}
}
