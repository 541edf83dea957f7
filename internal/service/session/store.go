package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jthale/attune/backend/internal/model/chat"
)

var (
	ErrNotFound         = errors.New("session not found")
	ErrSessionFull      = errors.New("session full")
	ErrSessionClosed    = errors.New("session closed")
	ErrNotActive        = errors.New("session not active")
	ErrCapacityExceeded = errors.New("session capacity exceeded")
)

// codeAlphabet omits ambiguous characters so codes survive being read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 8

// Store owns every active session. All mutation of a session happens under
// that session's own lock; operations on different sessions never contend.
type Store struct {
	mu       sync.RWMutex
	capacity int
	live     int
	sessions map[string]*sessionState
	onClose  func(sessionID string)
}

type sessionState struct {
	mu         sync.Mutex
	session    chat.Session
	transcript []chat.Message
	nextSeq    int64
}

// NewStore builds a store that refuses to hold more than capacity open
// sessions at once.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		sessions: make(map[string]*sessionState),
	}
}

// OnClose registers a hook invoked exactly once when a session transitions to
// closed. The coordinator uses it to tear down the relay topic; idle-eviction
// policies hang off the same hook.
func (s *Store) OnClose(fn func(sessionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// Create allocates a fresh session waiting for its first participant.
func (s *Store) Create() (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live >= s.capacity {
		return chat.Session{}, ErrCapacityExceeded
	}

	code, err := newSessionCode()
	if err != nil {
		return chat.Session{}, fmt.Errorf("generate session code: %w", err)
	}
	for {
		if _, taken := s.sessions[code]; !taken {
			break
		}
		if code, err = newSessionCode(); err != nil {
			return chat.Session{}, fmt.Errorf("generate session code: %w", err)
		}
	}

	state := &sessionState{
		session: chat.Session{
			ID:        code,
			State:     chat.StateWaitingForPartner,
			CreatedAt: time.Now().UTC(),
		},
		transcript: make([]chat.Message, 0, 16),
	}
	s.sessions[code] = state
	s.live++
	return snapshot(state), nil
}

// Join assigns identity the next free role slot: first joiner becomes user1,
// second becomes user2 and activates the session. An identity that already
// holds a slot is handed the same role back, which is how a dropped client
// reconnects. The attach callback, when non-nil, runs while the session is
// still locked, so a relay subscription opened inside it is guaranteed to see
// exactly the messages appended after the transcript snapshot it receives.
func (s *Store) Join(sessionID, identity string, attach func(sess chat.Session, transcript []chat.Message) error) (chat.Role, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return "", err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.session.State == chat.StateClosed {
		return "", ErrSessionClosed
	}

	var role chat.Role
	if existing, ok := state.session.ParticipantByIdentity(identity); ok {
		role = existing.Role
	} else {
		if len(state.session.Participants) >= chat.MaxParticipants {
			return "", ErrSessionFull
		}
		role = chat.RoleUser1
		if len(state.session.Participants) == 1 {
			role = chat.RoleUser2
		}
		state.session.Participants = append(state.session.Participants, chat.Participant{
			Role:     role,
			Identity: identity,
			JoinedAt: time.Now().UTC(),
		})
		if len(state.session.Participants) == chat.MaxParticipants {
			state.session.State = chat.StateActive
		}
	}

	if attach != nil {
		if err := attach(snapshot(state), transcriptCopy(state)); err != nil {
			return "", err
		}
	}
	return role, nil
}

// Get returns a read-only snapshot of the session.
func (s *Store) Get(sessionID string) (chat.Session, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return snapshot(state), nil
}

// Transcript returns a copy of the session transcript in sequence order.
func (s *Store) Transcript(sessionID string) ([]chat.Message, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return transcriptCopy(state), nil
}

// Append stamps msg with the next sequence number, an id and a server-side
// timestamp, appends it to the transcript, and invokes publish — still under
// the session lock, so publish order always matches sequence order. publish
// must not block; the relay's bounded queues guarantee that.
func (s *Store) Append(sessionID string, msg chat.Message, publish func(chat.Message)) (chat.Message, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return chat.Message{}, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	switch {
	case state.session.State == chat.StateClosed:
		return chat.Message{}, ErrSessionClosed
	case state.session.State != chat.StateActive:
		return chat.Message{}, ErrNotActive
	}

	state.nextSeq++
	msg.ID = uuid.NewString()
	msg.SessionID = sessionID
	msg.Sequence = state.nextSeq
	msg.CreatedAt = time.Now().UTC()

	state.transcript = append(state.transcript, msg)
	if publish != nil {
		publish(msg)
	}
	return msg, nil
}

// Close transitions the session to closed. Idempotent; the OnClose hook fires
// only on the first call.
func (s *Store) Close(sessionID string) error {
	state, err := s.lookup(sessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	if state.session.State == chat.StateClosed {
		state.mu.Unlock()
		return nil
	}
	state.session.State = chat.StateClosed
	state.mu.Unlock()

	s.mu.Lock()
	s.live--
	hook := s.onClose
	s.mu.Unlock()

	if hook != nil {
		hook(sessionID)
	}
	return nil
}

func (s *Store) lookup(sessionID string) (*sessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return state, nil
}

func snapshot(state *sessionState) chat.Session {
	sess := state.session
	sess.Participants = append([]chat.Participant(nil), state.session.Participants...)
	return sess
}

func transcriptCopy(state *sessionState) []chat.Message {
	copied := make([]chat.Message, len(state.transcript))
	copy(copied, state.transcript)
	return copied
}

func newSessionCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, codeLength)
	for i, b := range buf {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code), nil
}
