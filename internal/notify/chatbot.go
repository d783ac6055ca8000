package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lighthouse/internal/domain"
)

// ChatBotChannel delivers alerts through a Telegram bot, authenticated by
// bot token (spec.md §4.5).
type ChatBotChannel struct {
	bot *tgbotapi.BotAPI
}

// NewChatBotChannel builds a chat-bot adapter from a bot token.
func NewChatBotChannel(token string) (*ChatBotChannel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("chatbot: init: %w", err)
	}
	return &ChatBotChannel{bot: bot}, nil
}

func (c *ChatBotChannel) Kind() domain.ChannelKind { return domain.ChannelChat }

func (c *ChatBotChannel) Available() bool { return c.bot != nil }

func (c *ChatBotChannel) Send(ctx context.Context, payload domain.NotificationPayload, target string) SendResult {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return SendResult{Target: target, Err: fmt.Errorf("chatbot: invalid chat id %q: %w", target, err)}
	}

	icon, _ := affordances(payload.Severity)
	text := fmt.Sprintf("%s *%s*\n%s", icon, payload.Title, payload.Body)

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := c.bot.Send(msg); err != nil {
		if isChatGone(err) {
			return SendResult{Target: target, Gone: true}
		}
		return SendResult{Target: target, Err: fmt.Errorf("chatbot: send: %w", err)}
	}
	return SendResult{Target: target, OK: true}
}

func isChatGone(err error) bool {
	apiErr, ok := err.(*tgbotapi.Error)
	if !ok {
		return false
	}
	return apiErr.Code == 403
}
