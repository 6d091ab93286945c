package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mpetrenko/concert-notifier/internal/dal"
)

//go:generate mockgen -package mocks -destination mocks/store.go . SubscriberStore,SnapshotStore

var ErrUnknownSubscriber = errors.New("unknown subscriber")

type (
	// SubscriberStore serializes every load-mutate-save sequence: the
	// callback runs under the store lock and the mutated mapping is
	// persisted in one atomic rewrite when it returns nil.
	SubscriberStore interface {
		View(fn func(subs map[int64]dal.Subscriber) error) error
		Update(fn func(subs map[int64]dal.Subscriber) error) error
	}

	SnapshotStore interface {
		GetSnapshot() (dal.Snapshot, bool, error)
		PutSnapshot(snap dal.Snapshot) error
	}

	Subscriptions struct {
		store SubscriberStore

		log *slog.Logger
		mx  *sync.Mutex
	}
)

func NewSubscriptions(store SubscriberStore, log *slog.Logger) *Subscriptions {
	return &Subscriptions{
		store: store,
		log:   log.With("component", "service").With("service", "subscriptions"),
		mx:    &sync.Mutex{},
	}
}

// Subscribe upserts the subscriber with mailing enabled and any previously
// delivered message reference cleared. Repeated calls leave exactly one record.
func (s *Subscriptions) Subscribe(chatID int64, username, firstName, lastName string) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	err := s.store.Update(func(subs map[int64]dal.Subscriber) error {
		subs[chatID] = dal.Subscriber{
			ChatID:         chatID,
			MailingEnabled: true,
			LastMessageID:  dal.NoMessage,
			Username:       username,
			FirstName:      firstName,
			LastName:       lastName,
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe chatID=%d: %w", chatID, err)
	}

	s.log.Info("subscriber enabled", "chatID", chatID)
	return nil
}

// Unsubscribe disables mailing in place; the record is retained so that a
// later Subscribe re-enables it and Report still lists it.
func (s *Subscriptions) Unsubscribe(chatID int64) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	err := s.store.Update(func(subs map[int64]dal.Subscriber) error {
		sub, ok := subs[chatID]
		if !ok {
			return ErrUnknownSubscriber
		}
		sub.MailingEnabled = false
		subs[chatID] = sub
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownSubscriber) {
			return err
		}
		return fmt.Errorf("unsubscribe chatID=%d: %w", chatID, err)
	}

	s.log.Info("subscriber disabled", "chatID", chatID)
	return nil
}

// Report renders the full subscriber listing for the administrator.
func (s *Subscriptions) Report() (string, error) {
	var res string
	err := s.store.View(func(subs map[int64]dal.Subscriber) error {
		res = renderReport(subs)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("build subscribers report: %w", err)
	}
	return res, nil
}
