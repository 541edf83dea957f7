package chat

import "time"

// Role identifies a participant within a session. Roles are assigned by join
// order, never supplied by clients.
type Role string

const (
	RoleUser1 Role = "user1"
	RoleUser2 Role = "user2"
)

// State tracks the session lifecycle.
type State string

const (
	StateWaitingForPartner State = "waiting_for_partner"
	StateActive            State = "active"
	StateClosed            State = "closed"
)

// MaxParticipants is fixed: couples texting is strictly two-party.
const MaxParticipants = 2

// Participant records one occupied role slot.
type Participant struct {
	Role     Role      `json:"role"`
	Identity string    `json:"identity"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Session captures a transient anonymous two-party conversation.
type Session struct {
	ID           string        `json:"id"`
	State        State         `json:"state"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// ParticipantByIdentity returns the slot occupied by identity, if any.
func (s Session) ParticipantByIdentity(identity string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.Identity == identity {
			return p, true
		}
	}
	return Participant{}, false
}

// HasRole reports whether role is currently assigned.
func (s Session) HasRole(role Role) bool {
	for _, p := range s.Participants {
		if p.Role == role {
			return true
		}
	}
	return false
}
