package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/auratask/auratask/internal/domain"
)

// webhookBody is the JSON document POSTed to the user's webhook URL.
type webhookBody struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// WebhookChannel POSTs reminders to a user-configured URL (Discord, Slack,
// or anything that accepts JSON).
type WebhookChannel struct {
	client *http.Client
}

// NewWebhookChannel creates a WebhookChannel.
func NewWebhookChannel() *WebhookChannel {
	return &WebhookChannel{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Enabled(s *domain.ChannelSettings) bool {
	return s.WebhookEnabled && s.WebhookURL != ""
}

func (c *WebhookChannel) Send(ctx context.Context, s *domain.ChannelSettings, msg Message) error {
	payload, err := json.Marshal(webhookBody{Subject: msg.Subject, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook call to %s: %w", s.WebhookURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook %s returned status %d", s.WebhookURL, resp.StatusCode)
	}
	return nil
}
