package channels

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/auratask/auratask/internal/domain"
)

// EmailConfig holds SMTP connection details.
type EmailConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// EmailChannel sends reminders over SMTP.
type EmailChannel struct {
	dialer *gomail.Dialer
	from   string
}

// NewEmailChannel creates an EmailChannel from config.
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	return &EmailChannel{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Enabled(s *domain.ChannelSettings) bool {
	return s.EmailEnabled && s.EmailAddress != ""
}

func (c *EmailChannel) Send(ctx context.Context, s *domain.ChannelSettings, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", s.EmailAddress)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	// DialAndSend blocks with no context support; run it aside so the
	// notifier's per-delivery timeout still applies.
	done := make(chan error, 1)
	go func() { done <- c.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", s.EmailAddress, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email send cancelled: %w", ctx.Err())
	}
}
