package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tb "gopkg.in/telebot.v3"

	"github.com/mpetrenko/concert-notifier/internal/service"
)

// Client adapts the telebot API to the mailing service: send returns the new
// message reference, delete removes a previously delivered message by its
// reference. Blocked or deactivated recipients surface as
// service.ErrRecipientUnreachable.
type Client struct {
	bot *tb.Bot
}

func NewClient(bot *tb.Bot) *Client {
	return &Client{bot: bot}
}

func (c *Client) SendMessage(_ context.Context, chatID int64, text string) (int, error) {
	msg, err := c.bot.Send(tb.ChatID(chatID), text)
	if err != nil {
		if isUnreachable(err) {
			return 0, fmt.Errorf("%w: %w", service.ErrRecipientUnreachable, err)
		}
		return 0, fmt.Errorf("send message to chatID=%d: %w", chatID, err)
	}
	return msg.ID, nil
}

func (c *Client) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	err := c.bot.Delete(&tb.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	})
	if err != nil {
		return fmt.Errorf("delete message=%d in chatID=%d: %w", messageID, chatID, err)
	}
	return nil
}

func isUnreachable(err error) bool {
	return errors.Is(err, tb.ErrBlockedByUser) ||
		errors.Is(err, tb.ErrUserIsDeactivated) ||
		errors.Is(err, tb.ErrNotStartedByUser)
}
