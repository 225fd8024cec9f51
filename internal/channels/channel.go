// Package channels delivers rendered reminders to the outside world. Each
// channel is one transport (email, telegram, webhook); the notifier fans a
// delivery out to every channel the owner enabled.
package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/auratask/auratask/internal/domain"
	"github.com/auratask/auratask/internal/timeutil"
)

// Message is a rendered reminder ready for any transport.
type Message struct {
	Subject string
	Body    string
}

// Channel sends a rendered reminder over one transport.
type Channel interface {
	Name() string
	Enabled(s *domain.ChannelSettings) bool
	Send(ctx context.Context, s *domain.ChannelSettings, msg Message) error
}

// Registry maps channel names to implementations.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	order    []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register adds a channel. Safe to call concurrently; registration order is
// preserved for fan-out.
func (r *Registry) Register(c Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[c.Name()]; !ok {
		r.order = append(r.order, c.Name())
	}
	r.channels[c.Name()] = c
}

// EnabledFor returns the registered channels the given settings enable, in
// registration order.
func (r *Registry) EnabledFor(s *domain.ChannelSettings) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Channel
	for _, name := range r.order {
		if c := r.channels[name]; c.Enabled(s) {
			out = append(out, c)
		}
	}
	return out
}

// Render builds the subject and body for a delivery, with the due instant
// shown in the owner's zone.
func Render(d *domain.Delivery) Message {
	var lead string
	switch d.Kind {
	case domain.ReminderDue24h:
		lead = "Due in 24 hours"
	case domain.ReminderDue1h:
		lead = "Due in 1 hour"
	case domain.ReminderDueNow:
		lead = "Due now"
	default:
		lead = "Reminder"
	}

	subject := fmt.Sprintf("%s: %s", lead, truncate(d.Title, 80))
	body := fmt.Sprintf(
		"Task reminder from AuraTask\n\nTask: %s\nDue: %s\nPriority: %s\n",
		d.Title,
		timeutil.FormatForUser(d.DueAt, d.Timezone),
		d.Priority,
	)
	return Message{Subject: subject, Body: body}
}

// truncate shortens s to at most n runes, never splitting a multi-byte rune.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
