package channels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auratask/auratask/internal/domain"
)

type stubChannel struct {
	name string
	on   bool
}

func (c *stubChannel) Name() string                            { return c.name }
func (c *stubChannel) Enabled(_ *domain.ChannelSettings) bool  { return c.on }
func (c *stubChannel) Send(_ context.Context, _ *domain.ChannelSettings, _ Message) error {
	return nil
}

func TestRegistryEnabledForPreservesOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubChannel{name: "email", on: true})
	r.Register(&stubChannel{name: "telegram", on: false})
	r.Register(&stubChannel{name: "webhook", on: true})

	got := r.EnabledFor(&domain.ChannelSettings{})
	require.Len(t, got, 2)
	assert.Equal(t, "email", got[0].Name())
	assert.Equal(t, "webhook", got[1].Name())
}

func TestRegistryReRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubChannel{name: "email", on: false})
	r.Register(&stubChannel{name: "email", on: true})

	got := r.EnabledFor(&domain.ChannelSettings{})
	require.Len(t, got, 1)
}

func TestRenderSubjectPerKind(t *testing.T) {
	due := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		kind domain.ReminderKind
		want string
	}{
		{domain.ReminderDue24h, "Due in 24 hours"},
		{domain.ReminderDue1h, "Due in 1 hour"},
		{domain.ReminderDueNow, "Due now"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			msg := Render(&domain.Delivery{
				Kind:     tt.kind,
				Title:    "File the report",
				Priority: domain.PriorityHigh,
				DueAt:    due,
				Timezone: "UTC",
			})
			assert.True(t, strings.HasPrefix(msg.Subject, tt.want), "subject %q", msg.Subject)
			assert.Contains(t, msg.Body, "File the report")
			assert.Contains(t, msg.Body, "HIGH")
		})
	}
}

func TestRenderShowsDueInOwnerZone(t *testing.T) {
	// 13:30 UTC is 19:00 in Asia/Kolkata (+05:30).
	due := time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC)
	msg := Render(&domain.Delivery{
		Kind:     domain.ReminderDue1h,
		Title:    "Call home",
		Priority: domain.PriorityLow,
		DueAt:    due,
		Timezone: "Asia/Kolkata",
	})
	assert.Contains(t, msg.Body, "7:00 PM")
}

func TestRenderTruncatesLongTitles(t *testing.T) {
	msg := Render(&domain.Delivery{
		Kind:     domain.ReminderDueNow,
		Title:    strings.Repeat("x", 200),
		Priority: domain.PriorityLow,
		DueAt:    time.Now(),
		Timezone: "UTC",
	})
	assert.Less(t, len(msg.Subject), 120)
}

func TestRenderTruncatesOnRuneBoundary(t *testing.T) {
	msg := Render(&domain.Delivery{
		Kind:     domain.ReminderDueNow,
		Title:    strings.Repeat("ö", 100), // 200 bytes, 100 runes
		Priority: domain.PriorityLow,
		DueAt:    time.Now(),
		Timezone: "UTC",
	})
	assert.True(t, utf8.ValidString(msg.Subject), "subject must stay valid UTF-8: %q", msg.Subject)
	assert.True(t, strings.HasSuffix(msg.Subject, "ö…"), "subject %q", msg.Subject)
}

func TestWebhookChannelSend(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewWebhookChannel()
	settings := &domain.ChannelSettings{WebhookEnabled: true, WebhookURL: srv.URL}
	err := c.Send(context.Background(), settings, Message{Subject: "Due now: x", Body: "b"})
	require.NoError(t, err)
	assert.Contains(t, gotBody, "Due now: x")
}

func TestWebhookChannelBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewWebhookChannel()
	settings := &domain.ChannelSettings{WebhookEnabled: true, WebhookURL: srv.URL}
	err := c.Send(context.Background(), settings, Message{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestChannelEnabledRules(t *testing.T) {
	email := NewEmailChannel(EmailConfig{})
	webhook := NewWebhookChannel()

	assert.False(t, email.Enabled(&domain.ChannelSettings{EmailEnabled: true}), "enabled without address")
	assert.True(t, email.Enabled(&domain.ChannelSettings{EmailEnabled: true, EmailAddress: "a@b.c"}))
	assert.False(t, webhook.Enabled(&domain.ChannelSettings{WebhookURL: "https://x"}), "URL set but disabled")
}
