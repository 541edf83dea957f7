package chat

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/jthale/attune/backend/internal/analysis/impact"
	"github.com/jthale/attune/backend/internal/config"
	"github.com/jthale/attune/backend/internal/model/chat"
	"github.com/jthale/attune/backend/internal/relay"
	"github.com/jthale/attune/backend/internal/service/session"
	"github.com/jthale/attune/backend/internal/service/suggest"
)

var (
	ErrInvalidMessage  = errors.New("invalid message")
	ErrUnknownIdentity = errors.New("identity not part of session")
)

// Coordinator orchestrates session lifecycle, message relay and reply
// suggestions. Every mutation funnels through here; the store owns session
// state, the bus owns delivery, and neither knows about the other.
type Coordinator struct {
	store     *session.Store
	bus       relay.Bus
	suggester suggest.Suggester
	cfg       config.RelayConfig
}

// NewCoordinator wires the store's close hook to topic teardown so idle
// eviction and explicit closes both end live subscriptions.
func NewCoordinator(store *session.Store, bus relay.Bus, suggester suggest.Suggester, cfg config.RelayConfig) *Coordinator {
	store.OnClose(func(sessionID string) {
		bus.CloseTopic(sessionID)
		log.Printf("[relay] closed topic for session=%s", sessionID)
	})
	return &Coordinator{
		store:     store,
		bus:       bus,
		suggester: suggester,
		cfg:       cfg,
	}
}

// JoinResult is everything a joining client needs before live delivery
// starts: its role, the session snapshot, the transcript so far, and the
// stream carrying every message published after the snapshot.
type JoinResult struct {
	Role       chat.Role
	Session    chat.Session
	Transcript []chat.Message
	Stream     *relay.Subscription
}

// CreateSession allocates a fresh waiting session.
func (c *Coordinator) CreateSession(_ context.Context) (chat.Session, error) {
	return c.store.Create()
}

// Session returns a read-only snapshot.
func (c *Coordinator) Session(_ context.Context, sessionID string) (chat.Session, error) {
	return c.store.Get(sessionID)
}

// JoinSession assigns a role and opens a live stream. The transcript snapshot
// and the bus subscription are taken together under the session lock, so
// replayed messages are strictly older than anything the stream delivers.
func (c *Coordinator) JoinSession(_ context.Context, sessionID, identity string) (JoinResult, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return JoinResult{}, ErrUnknownIdentity
	}

	result := JoinResult{}
	role, err := c.store.Join(sessionID, identity, func(sess chat.Session, transcript []chat.Message) error {
		stream, err := c.bus.Subscribe(sessionID, uuid.NewString())
		if err != nil {
			return err
		}
		result.Session = sess
		result.Transcript = transcript
		result.Stream = stream
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}

	result.Role = role
	log.Printf("[relay] %s joined session=%s as %s", identity, sessionID, role)
	return result, nil
}

// Leave drops a live stream without touching session state. Safe to call for
// already-gone subscribers.
func (c *Coordinator) Leave(_ context.Context, sessionID string, stream *relay.Subscription) {
	if stream == nil {
		return
	}
	c.bus.Unsubscribe(sessionID, stream.SubscriberID)
}

// ResolveRole maps a participant identity to its assigned role.
func (c *Coordinator) ResolveRole(_ context.Context, sessionID, identity string) (chat.Role, error) {
	sess, err := c.store.Get(sessionID)
	if err != nil {
		return "", err
	}
	participant, ok := sess.ParticipantByIdentity(strings.TrimSpace(identity))
	if !ok {
		return "", ErrUnknownIdentity
	}
	return participant.Role, nil
}

// SendMessage validates, classifies, stamps and relays one message. The
// returned message is the caller's confirmation copy; the caller receives it
// again on its own stream and deduplicates on sequence.
func (c *Coordinator) SendMessage(_ context.Context, sessionID string, role chat.Role, text string) (chat.Message, error) {
	if role != chat.RoleUser1 && role != chat.RoleUser2 {
		return chat.Message{}, ErrInvalidMessage
	}
	if strings.TrimSpace(text) == "" || len(text) > c.cfg.MessageMaxLength {
		return chat.Message{}, ErrInvalidMessage
	}

	msg := chat.Message{
		Sender: role,
		Text:   text,
		Impact: impact.Classify(text),
	}

	stamped, err := c.store.Append(sessionID, msg, func(m chat.Message) {
		c.bus.Publish(sessionID, m)
	})
	if err != nil {
		return chat.Message{}, err
	}
	return stamped, nil
}

// RequestSuggestion asks the suggester for a candidate reply built from the
// transcript tail. One retry, bounded per attempt; any failure surfaces as
// suggest.ErrUnavailable and never touches the relay path. The session lock
// is never held while the suggester runs.
func (c *Coordinator) RequestSuggestion(ctx context.Context, sessionID string, role chat.Role) (string, error) {
	transcript, err := c.store.Transcript(sessionID)
	if err != nil {
		return "", err
	}

	if limit := c.cfg.SuggestionContextLimit; len(transcript) > limit {
		transcript = transcript[len(transcript)-limit:]
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.SuggestionTimeout)
		text, err := c.suggester.Suggest(attemptCtx, role, transcript)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	log.Printf("[suggest] giving up for session=%s role=%s: %v", sessionID, role, lastErr)
	return "", suggest.ErrUnavailable
}

// CloseSession ends the session; the store's close hook tears down the relay
// topic, ending every live stream.
func (c *Coordinator) CloseSession(_ context.Context, sessionID string) error {
	return c.store.Close(sessionID)
}
