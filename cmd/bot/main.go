package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mpetrenko/concert-notifier/internal/config"
	"github.com/mpetrenko/concert-notifier/internal/dal"
	"github.com/mpetrenko/concert-notifier/internal/providers"
	"github.com/mpetrenko/concert-notifier/internal/scheduler"
	"github.com/mpetrenko/concert-notifier/internal/service"
	"github.com/mpetrenko/concert-notifier/internal/telegram"
	"github.com/mpetrenko/concert-notifier/pkg/clock"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf, err := config.NewConfig(ctx)
	if err != nil {
		slog.Error("Failed to process config", "error", err)
		os.Exit(1)
	}

	log := mustLogger(conf.Dev)

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		log.Error("Failed to load timezone", "timezone", conf.Timezone, "error", err)
		os.Exit(1)
	}

	mailingAt, err := scheduler.ParseTimeOfDay(conf.MailingTime)
	if err != nil {
		log.Error("Failed to parse mailing time", "mailingTime", conf.MailingTime, "error", err)
		os.Exit(1)
	}

	store, err := dal.NewFileStore(conf.DataFile)
	if err != nil {
		log.Error("Failed to open subscribers file", "error", err)
		os.Exit(1)
	}

	snapshots, err := dal.NewBoltDB(conf.SnapshotDBPath)
	if err != nil {
		log.Error("Failed to open snapshot database", "error", err)
		os.Exit(1)
	}
	defer snapshots.Close()

	bot, err := telegram.NewBot(conf.TelegramToken, log)
	if err != nil {
		log.Error("Failed to create telegram bot", "error", err)
		os.Exit(1)
	}

	cl := clock.NewWithLocation(loc)
	provider := providers.NewMiyagiProvider(conf.ScheduleURL)

	subscriptionsSvc := service.NewSubscriptions(store, log)
	mailingSvc := service.NewMailing(store, snapshots, provider, bot.Client(), cl, conf.FetchTimeout, log)
	sched := scheduler.NewDaily(mailingAt, cl, mailingSvc.Run, log)

	handler := telegram.NewHandler(ctx, subscriptionsSvc, mailingSvc, sched, conf.AdminChatID, log)

	log.Info("Starting bot")
	err = bot.Start(ctx, handler)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error("Failed to start bot", "error", err)
		}
	}
	log.Info("Stopped bot")
}

func mustLogger(dev bool) *slog.Logger {
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	if dev {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	return slog.New(handler)
}
