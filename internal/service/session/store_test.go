package session

import (
	"errors"
	"strings"
	"testing"

	"github.com/jthale/attune/backend/internal/model/chat"
)

func TestCreateGeneratesCode(t *testing.T) {
	store := NewStore(4)
	sess, err := store.Create()
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if len(sess.ID) != codeLength {
		t.Fatalf("unexpected code length: %q", sess.ID)
	}
	for _, r := range sess.ID {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Fatalf("code %q contains %q outside alphabet", sess.ID, r)
		}
	}
	if sess.State != chat.StateWaitingForPartner {
		t.Fatalf("unexpected initial state: %s", sess.State)
	}
}

func TestJoinAssignsRolesInOrder(t *testing.T) {
	store := NewStore(4)
	sess, _ := store.Create()

	role, err := store.Join(sess.ID, "Alice", nil)
	if err != nil {
		t.Fatalf("first join err: %v", err)
	}
	if role != chat.RoleUser1 {
		t.Fatalf("first joiner got %s, want user1", role)
	}

	role, err = store.Join(sess.ID, "Bob", nil)
	if err != nil {
		t.Fatalf("second join err: %v", err)
	}
	if role != chat.RoleUser2 {
		t.Fatalf("second joiner got %s, want user2", role)
	}

	got, _ := store.Get(sess.ID)
	if got.State != chat.StateActive {
		t.Fatalf("expected active after second join, got %s", got.State)
	}

	if _, err := store.Join(sess.ID, "Mallory", nil); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("third join: got %v, want ErrSessionFull", err)
	}
}

func TestJoinSameIdentityRejoins(t *testing.T) {
	store := NewStore(4)
	sess, _ := store.Create()
	store.Join(sess.ID, "Alice", nil)
	store.Join(sess.ID, "Bob", nil)

	role, err := store.Join(sess.ID, "Alice", nil)
	if err != nil {
		t.Fatalf("rejoin err: %v", err)
	}
	if role != chat.RoleUser1 {
		t.Fatalf("rejoin returned %s, want user1", role)
	}

	got, _ := store.Get(sess.ID)
	if len(got.Participants) != 2 {
		t.Fatalf("rejoin duplicated participant: %d slots", len(got.Participants))
	}
}

func TestJoinUnknownSession(t *testing.T) {
	store := NewStore(4)
	if _, err := store.Join("NOPE1234", "Alice", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestJoinAttachSeesSnapshotUnderLock(t *testing.T) {
	store := NewStore(4)
	sess, _ := store.Create()
	store.Join(sess.ID, "Alice", nil)

	var snapLen int
	_, err := store.Join(sess.ID, "Bob", func(s chat.Session, transcript []chat.Message) error {
		if s.State != chat.StateActive {
			t.Fatalf("attach saw state %s, want active", s.State)
		}
		snapLen = len(transcript)
		return nil
	})
	if err != nil {
		t.Fatalf("join err: %v", err)
	}
	if snapLen != 0 {
		t.Fatalf("expected empty transcript snapshot, got %d", snapLen)
	}
}

func TestAppendAssignsGaplessSequences(t *testing.T) {
	store := NewStore(4)
	sess, _ := store.Create()
	store.Join(sess.ID, "Alice", nil)
	store.Join(sess.ID, "Bob", nil)

	var published []int64
	for i := 0; i < 3; i++ {
		msg, err := store.Append(sess.ID, chat.Message{Sender: chat.RoleUser1, Text: "hi"}, func(m chat.Message) {
			published = append(published, m.Sequence)
		})
		if err != nil {
			t.Fatalf("Append err: %v", err)
		}
		if msg.ID == "" || msg.CreatedAt.IsZero() {
			t.Fatal("message not fully stamped")
		}
	}

	for i, seq := range published {
		if seq != int64(i+1) {
			t.Fatalf("publish order broke at %d: seq %d", i, seq)
		}
	}

	transcript, err := store.Transcript(sess.ID)
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if int64(len(transcript)) != transcript[len(transcript)-1].Sequence {
		t.Fatal("transcript length diverged from highest sequence")
	}
}

func TestAppendRequiresActiveSession(t *testing.T) {
	store := NewStore(4)
	sess, _ := store.Create()
	store.Join(sess.ID, "Alice", nil)

	if _, err := store.Append(sess.ID, chat.Message{Sender: chat.RoleUser1, Text: "hi"}, nil); !errors.Is(err, ErrNotActive) {
		t.Fatalf("got %v, want ErrNotActive", err)
	}
}

func TestCloseIsIdempotentAndTerminal(t *testing.T) {
	store := NewStore(4)
	sess, _ := store.Create()
	store.Join(sess.ID, "Alice", nil)
	store.Join(sess.ID, "Bob", nil)

	var hookCalls int
	store.OnClose(func(string) { hookCalls++ })

	if err := store.Close(sess.ID); err != nil {
		t.Fatalf("Close err: %v", err)
	}
	if err := store.Close(sess.ID); err != nil {
		t.Fatalf("second Close err: %v", err)
	}
	if hookCalls != 1 {
		t.Fatalf("close hook fired %d times, want 1", hookCalls)
	}

	if _, err := store.Join(sess.ID, "Carol", nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("join after close: got %v, want ErrSessionClosed", err)
	}
	if _, err := store.Append(sess.ID, chat.Message{Sender: chat.RoleUser1, Text: "hi"}, nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("append after close: got %v, want ErrSessionClosed", err)
	}
}

func TestCapacityCountsOpenSessions(t *testing.T) {
	store := NewStore(2)
	first, _ := store.Create()
	if _, err := store.Create(); err != nil {
		t.Fatalf("second Create err: %v", err)
	}
	if _, err := store.Create(); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("got %v, want ErrCapacityExceeded", err)
	}

	// Closing frees a slot.
	if err := store.Close(first.ID); err != nil {
		t.Fatalf("Close err: %v", err)
	}
	if _, err := store.Create(); err != nil {
		t.Fatalf("Create after close err: %v", err)
	}
}
