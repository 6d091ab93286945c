package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mpetrenko/concert-notifier/internal/dal"
)

//go:generate mockgen -package mocks -destination mocks/mailing.go . ScheduleProvider,MessageSender

// ErrRecipientUnreachable marks a send failure that will never succeed until
// the recipient re-initiates contact (blocked the bot, deactivated account).
// Senders wrap platform-specific errors with it; the mailing cycle reacts by
// removing the subscriber.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

type (
	ScheduleProvider interface {
		Schedule(ctx context.Context) (string, error)
	}

	MessageSender interface {
		SendMessage(ctx context.Context, chatID int64, text string) (int, error)
		DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	}

	Clock interface {
		Now() time.Time
	}

	Mailing struct {
		store     SubscriberStore
		snapshots SnapshotStore
		provider  ScheduleProvider
		sender    MessageSender
		clock     Clock

		fetchTimeout time.Duration
		log          *slog.Logger
		mx           *sync.Mutex
	}
)

func NewMailing(
	store SubscriberStore,
	snapshots SnapshotStore,
	provider ScheduleProvider,
	sender MessageSender,
	clock Clock,
	fetchTimeout time.Duration,
	log *slog.Logger,
) *Mailing {
	return &Mailing{
		store:        store,
		snapshots:    snapshots,
		provider:     provider,
		sender:       sender,
		clock:        clock,
		fetchTimeout: fetchTimeout,

		log: log.With("component", "service").With("service", "mailing"),
		mx:  &sync.Mutex{},
	}
}

// Run executes one mailing cycle: fetch the schedule, then for every enabled
// subscriber delete the previously delivered message and send the fresh one.
// A fetch failure aborts the cycle before any store mutation; a single
// subscriber's failure never affects the rest or the final persist.
func (s *Mailing) Run(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.log.InfoContext(ctx, "mailing cycle started")

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	text, err := s.provider.Schedule(fetchCtx)
	if err != nil {
		return fmt.Errorf("fetch schedule: %w", err)
	}

	if err := s.snapshots.PutSnapshot(dal.Snapshot{Text: text, FetchedAt: s.clock.Now()}); err != nil {
		s.log.ErrorContext(ctx, "failed to store schedule snapshot", "error", err)
	}

	delivered := 0
	err = s.store.Update(func(subs map[int64]dal.Subscriber) error {
		for _, sub := range subs {
			if !sub.MailingEnabled {
				continue
			}
			if s.deliver(ctx, subs, sub, text) {
				delivered++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update subscribers: %w", err)
	}

	s.log.InfoContext(ctx, "mailing cycle finished", "delivered", delivered)
	return nil
}

// DeliverTo sends the most recent cached schedule to a single subscriber.
// Used to greet a fresh subscription without waiting for the next cycle.
// No-op when no snapshot has been stored yet.
func (s *Mailing) DeliverTo(ctx context.Context, chatID int64) error {
	snap, ok, err := s.snapshots.GetSnapshot()
	if err != nil {
		return fmt.Errorf("get schedule snapshot: %w", err)
	}
	if !ok {
		return nil
	}

	err = s.store.Update(func(subs map[int64]dal.Subscriber) error {
		sub, found := subs[chatID]
		if !found {
			return ErrUnknownSubscriber
		}
		s.deliver(ctx, subs, sub, snap.Text)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownSubscriber) {
			return err
		}
		return fmt.Errorf("deliver snapshot to chatID=%d: %w", chatID, err)
	}
	return nil
}

// deliver sends text to one subscriber and reconciles the mapping in place:
// a successful send updates the last message reference, a permanently
// unreachable recipient is removed, anything else leaves the record as is.
func (s *Mailing) deliver(ctx context.Context, subs map[int64]dal.Subscriber, sub dal.Subscriber, text string) bool {
	log := s.log.With("chatID", sub.ChatID)

	if sub.HasLastMessage() {
		if err := s.sender.DeleteMessage(ctx, sub.ChatID, sub.LastMessageID); err != nil {
			// stale-reference policy: the previous message may already be
			// gone; deletion is best-effort and never retried
			log.DebugContext(ctx, "failed to delete previous message", "messageID", sub.LastMessageID, "error", err)
		}
	}

	msgID, err := s.sender.SendMessage(ctx, sub.ChatID, text)
	if err != nil {
		if errors.Is(err, ErrRecipientUnreachable) {
			delete(subs, sub.ChatID)
			log.InfoContext(ctx, "recipient unreachable, subscriber removed")
			return false
		}

		log.ErrorContext(ctx, "failed to send schedule", "error", err)
		return false
	}

	sub.LastMessageID = msgID
	subs[sub.ChatID] = sub
	log.InfoContext(ctx, "schedule delivered", "messageID", msgID)
	return true
}
