package channels

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/auratask/auratask/internal/domain"
)

// TelegramChannel sends reminders through a Telegram bot.
type TelegramChannel struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramChannel creates a TelegramChannel. Fails if the bot token is
// rejected by the Telegram API.
func NewTelegramChannel(token string) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramChannel{bot: bot}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Enabled(s *domain.ChannelSettings) bool {
	return s.TelegramEnabled && s.TelegramChatID != 0
}

func (c *TelegramChannel) Send(ctx context.Context, s *domain.ChannelSettings, msg Message) error {
	text := fmt.Sprintf("*%s*\n\n%s", msg.Subject, msg.Body)
	out := tgbotapi.NewMessage(s.TelegramChatID, text)
	out.ParseMode = tgbotapi.ModeMarkdown

	// The bot API client has no context support; check for cancellation
	// before the blocking call at least.
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Send(out); err != nil {
		return fmt.Errorf("telegram send to chat %d: %w", s.TelegramChatID, err)
	}
	return nil
}
