// Package live carries change notifications between writers and the
// streams that re-read their queries when something changes.
package live

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("broker closed")

// Topic names shared by writers and subscribers.
const TopicEchoes = "echoes"

func JournalTopic(accountId string) string {
	return "journal:" + accountId
}

func ProfileTopic(accountId string) string {
	return "profile:" + accountId
}

type Broker interface {
	// Publish notifies every subscriber of topic that it changed.
	Publish(ctx context.Context, topic string) error
	// Subscribe registers interest in one or more topics. Notifications
	// are coalesced: a subscriber that has not consumed the previous
	// notification receives at most one more.
	Subscribe(topics ...string) *Subscription
	Close() error
}

type Subscription struct {
	topics []string
	ch     chan struct{}
	broker *LocalBroker
}

// Notify returns the notification channel. It is closed when the broker
// shuts down.
func (s *Subscription) Notify() <-chan struct{} {
	return s.ch
}

func (s *Subscription) Unsubscribe() {
	s.broker.remove(s)
}

// LocalBroker delivers notifications within a single process.
type LocalBroker struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

func (b *LocalBroker) Publish(_ context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	for sub := range b.subs[topic] {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}

	return nil
}

func (b *LocalBroker) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{
		topics: topics,
		ch:     make(chan struct{}, 1),
		broker: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}

	for _, topic := range topics {
		if _, ok := b.subs[topic]; !ok {
			b.subs[topic] = make(map[*Subscription]struct{})
		}
		b.subs[topic][sub] = struct{}{}
	}

	return sub
}

func (b *LocalBroker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, topic := range sub.topics {
		if set, ok := b.subs[topic]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, topic)
			}
		}
	}
}

// Close closes every subscription channel. Later publishes fail with
// ErrClosed and later subscriptions are returned already closed.
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	closed := make(map[*Subscription]struct{})
	for _, set := range b.subs {
		for sub := range set {
			if _, ok := closed[sub]; !ok {
				close(sub.ch)
				closed[sub] = struct{}{}
			}
		}
	}
	b.subs = nil

	return nil
}

func (b *LocalBroker) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}
