// Package telegram is the bot surface: command handlers and the thin client
// used by the mailing cycle.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tb "gopkg.in/telebot.v3"
)

type Bot struct {
	bot *tb.Bot

	log *slog.Logger
}

func NewBot(token string, log *slog.Logger) (*Bot, error) {
	bot, err := tb.NewBot(tb.Settings{
		Token:  token,
		Poller: &tb.LongPoller{Timeout: 5 * time.Second}, //nolint:mnd // it's ok
		// last-resort handler: log the full context and leave the update
		// unacknowledged instead of crashing the poller
		OnError: func(err error, c tb.Context) {
			if c != nil && c.Sender() != nil {
				log.Error("Unhandled bot error", "error", err, "chatID", c.Sender().ID)
				return
			}
			log.Error("Unhandled bot error", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Bot{
		bot: bot,

		log: log.With("component", "bot"),
	}, nil
}

// Client returns the sender used by the mailing cycle; it shares the bot's
// underlying API connection.
func (b *Bot) Client() *Client {
	return NewClient(b.bot)
}

func (b *Bot) Start(ctx context.Context, handler *Handler) error {
	b.bot.Handle("/start", handler.Start)
	b.bot.Handle("/stop", handler.Stop)
	b.bot.Handle("/show", handler.Show)

	go func() {
		<-ctx.Done()
		b.log.Info("Stopping bot")
		b.bot.Stop()
	}()

	b.bot.Start()

	return nil
}
