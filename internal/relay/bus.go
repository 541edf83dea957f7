package relay

import (
	"errors"
	"sync"

	"github.com/jthale/attune/backend/internal/model/chat"
)

var ErrTopicClosed = errors.New("relay topic closed")

// EventKind discriminates what a subscription delivers.
type EventKind string

const (
	// EventMessage carries one relayed message.
	EventMessage EventKind = "message"
	// EventOverrun tells a subscriber it fell behind its bounded queue and
	// was disconnected. It is always the final event before the stream ends;
	// re-subscribing recovers.
	EventOverrun EventKind = "overrun"
)

// Event is one item on a subscription stream.
type Event struct {
	Kind    EventKind
	Message chat.Message
}

// Subscription is a live, ordered stream of events for one session topic.
// The channel is closed when the subscriber is removed, the topic closes, or
// the subscriber overruns its queue.
type Subscription struct {
	SubscriberID string
	events       chan Event
}

// Events returns the stream. Reading until close observes every message
// published after Subscribe returned, in publish order, unless an overrun
// event ends the stream early.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Bus is the pub/sub capability the coordinator relays through. Keeping it an
// interface leaves the fan-out mechanism swappable for an external broker
// without touching session rules.
type Bus interface {
	Subscribe(sessionID, subscriberID string) (*Subscription, error)
	Publish(sessionID string, msg chat.Message)
	Unsubscribe(sessionID, subscriberID string)
	CloseTopic(sessionID string)
}

// ChannelBus is the in-process Bus: one topic per session, one bounded
// channel per subscriber. A publish never blocks; a subscriber that fills its
// queue is handed an overrun event and disconnected so it cannot delay the
// other participant.
type ChannelBus struct {
	mu        sync.Mutex
	queueSize int
	topics    map[string]*topic
}

type topic struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// NewChannelBus builds a bus whose subscribers each buffer up to queueSize
// undelivered messages.
func NewChannelBus(queueSize int) *ChannelBus {
	if queueSize < 1 {
		queueSize = 1
	}
	return &ChannelBus{
		queueSize: queueSize,
		topics:    make(map[string]*topic),
	}
}

func (b *ChannelBus) topicFor(sessionID string, create bool) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[sessionID]
	if !ok && create {
		t = &topic{subs: make(map[string]*Subscription)}
		b.topics[sessionID] = t
	}
	return t
}

// Subscribe attaches subscriberID to the session topic. An existing
// subscription under the same ID is replaced.
func (b *ChannelBus) Subscribe(sessionID, subscriberID string) (*Subscription, error) {
	t := b.topicFor(sessionID, true)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTopicClosed
	}

	if prev, ok := t.subs[subscriberID]; ok {
		close(prev.events)
	}

	sub := &Subscription{
		SubscriberID: subscriberID,
		// One extra slot is reserved so the overrun event always fits.
		events: make(chan Event, b.queueSize+1),
	}
	t.subs[subscriberID] = sub
	return sub, nil
}

// Publish fans msg out to every current subscriber in call order. All sends
// happen under the topic lock, so every subscriber observes the same global
// order per session.
func (b *ChannelBus) Publish(sessionID string, msg chat.Message) {
	t := b.topicFor(sessionID, false)
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	for id, sub := range t.subs {
		if len(sub.events) < b.queueSize {
			sub.events <- Event{Kind: EventMessage, Message: msg}
			continue
		}
		// Queue full: this subscriber is too slow. The reserved slot takes
		// the overrun notice, then the stream ends.
		sub.events <- Event{Kind: EventOverrun}
		close(sub.events)
		delete(t.subs, id)
	}
}

// Unsubscribe detaches subscriberID and ends its stream. Unknown subscribers
// are a no-op.
func (b *ChannelBus) Unsubscribe(sessionID, subscriberID string) {
	t := b.topicFor(sessionID, false)
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if sub, ok := t.subs[subscriberID]; ok {
		close(sub.events)
		delete(t.subs, subscriberID)
	}
}

// CloseTopic ends every subscription for the session and rejects future
// subscribes. Idempotent.
func (b *ChannelBus) CloseTopic(sessionID string) {
	t := b.topicFor(sessionID, false)
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, sub := range t.subs {
		close(sub.events)
		delete(t.subs, id)
	}
}
