package telegram

import (
	"context"
	"errors"
	"log/slog"

	tb "gopkg.in/telebot.v3"

	"github.com/mpetrenko/concert-notifier/internal/service"
)

const (
	msgSubscribed = "Подключена ежедневная рассылка с обновлением информации о планируемых концертах Miyagi!\n\n" +
		"Чтобы отписаться, вызови команду /stop."
	msgUnsubscribed  = "Рассылка остановлена! Для возобновления вызови команду /start."
	msgNotSubscribed = "Ты ещё не подписан на рассылку. Чтобы подписаться, вызови команду /start."
	msgJobRegistered = "👌"
	msgErrorGeneric  = "Что-то пошло не так. Пожалуйста, попробуй позже."
	cmdStartDesc     = "Подписаться на рассылку обновлений о концертах Miyagi"
	cmdStopDesc      = "Отписаться от рассылки обновлений о концертах Miyagi"
	cmdShowDesc      = "Показать список подписчиков"
	deniedStickerID  = "CAACAgIAAxkBAAEBDJpnoouzjO3c6VAxcVdmifaNCXLqlgACXWEAAmGoKEglnYDvOQh0azYE"
)

type Subscriptions interface {
	Subscribe(chatID int64, username, firstName, lastName string) error
	Unsubscribe(chatID int64) error
	Report() (string, error)
}

type Mailing interface {
	DeliverTo(ctx context.Context, chatID int64) error
}

type MailingJob interface {
	Register(ctx context.Context) bool
}

type Handler struct {
	subscriptions Subscriptions
	mailing       Mailing
	job           MailingJob

	adminChatID int64

	// base context for work the handler spawns beyond the current update
	appCtx context.Context

	log *slog.Logger
}

func NewHandler(
	appCtx context.Context,
	subscriptions Subscriptions,
	mailing Mailing,
	job MailingJob,
	adminChatID int64,
	log *slog.Logger,
) *Handler {
	return &Handler{
		subscriptions: subscriptions,
		mailing:       mailing,
		job:           job,
		adminChatID:   adminChatID,
		appCtx:        appCtx,
		log:           log.With("component", "handler"),
	}
}

func (h *Handler) Start(c tb.Context) error {
	sender := c.Sender()
	chatID := sender.ID

	if chatID == h.adminChatID {
		h.ensureMailingJob(c)
	}

	if err := h.subscriptions.Subscribe(chatID, sender.Username, sender.FirstName, sender.LastName); err != nil {
		h.log.Error("failed to subscribe", "error", err, "chatID", chatID)
		return c.Send(msgErrorGeneric)
	}

	if err := c.Send(msgSubscribed); err != nil {
		return err
	}

	// greet the new subscriber with the current schedule right away
	if err := h.mailing.DeliverTo(h.appCtx, chatID); err != nil {
		h.log.Error("failed to deliver current schedule", "error", err, "chatID", chatID)
	}
	return nil
}

func (h *Handler) Stop(c tb.Context) error {
	chatID := c.Sender().ID

	if err := h.subscriptions.Unsubscribe(chatID); err != nil {
		if errors.Is(err, service.ErrUnknownSubscriber) {
			return c.Send(msgNotSubscribed)
		}
		h.log.Error("failed to unsubscribe", "error", err, "chatID", chatID)
		return c.Send(msgErrorGeneric)
	}

	return c.Send(msgUnsubscribed)
}

func (h *Handler) Show(c tb.Context) error {
	chatID := c.Sender().ID

	// authorization boundary: non-admins get a sticker, never the listing
	if chatID != h.adminChatID {
		return c.Send(&tb.Sticker{File: tb.File{FileID: deniedStickerID}})
	}

	report, err := h.subscriptions.Report()
	if err != nil {
		h.log.Error("failed to build subscribers report", "error", err, "chatID", chatID)
		return c.Send(msgErrorGeneric)
	}

	return c.Send(report)
}

// ensureMailingJob registers the daily mailing job and publishes the command
// menus. Only the first admin /start does anything; later calls are no-ops.
func (h *Handler) ensureMailingJob(c tb.Context) {
	if !h.job.Register(h.appCtx) {
		return
	}

	h.log.Info("daily mailing job registered", "chatID", h.adminChatID)

	if err := h.publishCommands(c.Bot()); err != nil {
		h.log.Error("failed to publish bot commands", "error", err)
	}
	if err := c.Send(msgJobRegistered); err != nil {
		h.log.Error("failed to acknowledge job registration", "error", err)
	}
}

func (h *Handler) publishCommands(bot *tb.Bot) error {
	userCommands := []tb.Command{
		{Text: "start", Description: cmdStartDesc},
		{Text: "stop", Description: cmdStopDesc},
	}
	adminCommands := append(userCommands[:len(userCommands):len(userCommands)],
		tb.Command{Text: "show", Description: cmdShowDesc})

	if err := bot.SetCommands(userCommands, tb.CommandScope{Type: tb.CommandScopeAllPrivateChats}); err != nil {
		return err
	}
	return bot.SetCommands(adminCommands, tb.CommandScope{Type: tb.CommandScopeChat, ChatID: h.adminChatID})
}
