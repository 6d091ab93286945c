// Package testutil provides fluent builders for test fixtures.
package testutil

import (
	"github.com/mpetrenko/concert-notifier/internal/dal"
)

// SubscriberBuilder provides a fluent API for building test subscribers.
type SubscriberBuilder struct {
	sub dal.Subscriber
}

// NewSubscriber creates a builder with mailing enabled and no delivered message.
func NewSubscriber(chatID int64) *SubscriberBuilder {
	return &SubscriberBuilder{
		sub: dal.Subscriber{
			ChatID:         chatID,
			MailingEnabled: true,
			LastMessageID:  dal.NoMessage,
		},
	}
}

func (b *SubscriberBuilder) WithMailingDisabled() *SubscriberBuilder {
	b.sub.MailingEnabled = false
	return b
}

func (b *SubscriberBuilder) WithLastMessageID(id int) *SubscriberBuilder {
	b.sub.LastMessageID = id
	return b
}

func (b *SubscriberBuilder) WithProfile(username, firstName, lastName string) *SubscriberBuilder {
	b.sub.Username = username
	b.sub.FirstName = firstName
	b.sub.LastName = lastName
	return b
}

func (b *SubscriberBuilder) Build() dal.Subscriber {
	return b.sub
}
