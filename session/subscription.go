package session

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/happydpc/flowbetween/config"
	"github.com/happydpc/flowbetween/document"
)

// Subscription is one registered observer of the document's change
// stream. Each subscription has its own bounded event queue, so a slow
// consumer cannot stall the others.
type Subscription struct {
	id      string
	ch      chan document.Change
	done    chan struct{}
	dropped atomic.Int64
	once    sync.Once
}

// ID returns the subscription's identity.
func (sub *Subscription) ID() string { return sub.id }

// Events is the change stream. Events arrive in commit order; the
// channel is closed once the subscription or the session is closed and
// any buffered events are delivered.
func (sub *Subscription) Events() <-chan document.Change { return sub.ch }

// Dropped reports how many events this subscriber lost to the
// drop-oldest overflow policy.
func (sub *Subscription) Dropped() int64 { return sub.dropped.Load() }

// Close unregisters the subscription. The session closes the Events
// channel at its next broadcast or on session close.
func (sub *Subscription) Close() {
	sub.once.Do(func() { close(sub.done) })
}

func (sub *Subscription) closedByConsumer() bool {
	select {
	case <-sub.done:
		return true
	default:
		return false
	}
}

// Subscribe registers a new observer. Every edit committed after this
// call is delivered to it exactly once, in commit order.
func (s *Session) Subscribe() *Subscription {
	sub := &Subscription{
		id:   uuid.NewString(),
		ch:   make(chan document.Change, s.opts.SubscriberBuffer),
		done: make(chan struct{}),
	}
	s.subMu.Lock()
	s.subs[sub.id] = sub
	s.subMu.Unlock()
	return sub
}

// broadcast fans one committed change out to every live subscription,
// pruning the ones the consumer has closed. Only the worker calls this,
// so it is the sole sender on (and closer of) subscription channels.
func (s *Session) broadcast(c document.Change) {
	s.subMu.Lock()
	live := make([]*Subscription, 0, len(s.subs))
	for id, sub := range s.subs {
		if sub.closedByConsumer() {
			close(sub.ch)
			delete(s.subs, id)
			continue
		}
		live = append(live, sub)
	}
	s.subMu.Unlock()

	for _, sub := range live {
		s.deliver(sub, c)
	}
}

func (s *Session) deliver(sub *Subscription, c document.Change) {
	if s.opts.Overflow == config.OverflowBlock {
		select {
		case sub.ch <- c:
		case <-sub.done:
		case <-s.quit:
		}
		return
	}

	// Drop-oldest: make room by discarding the subscriber's stalest
	// pending event until the new one fits.
	for {
		select {
		case sub.ch <- c:
			return
		default:
		}
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
		default:
		}
	}
}
