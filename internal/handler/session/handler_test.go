package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jthale/attune/backend/internal/config"
	"github.com/jthale/attune/backend/internal/model/chat"
	"github.com/jthale/attune/backend/internal/relay"
	chatservice "github.com/jthale/attune/backend/internal/service/chat"
	sessionservice "github.com/jthale/attune/backend/internal/service/session"
	"github.com/jthale/attune/backend/internal/service/suggest"
)

type failingSuggester struct{}

func (failingSuggester) Suggest(context.Context, chat.Role, []chat.Message) (string, error) {
	return "", errors.New("model unavailable")
}

func setupRouter(suggester suggest.Suggester) (*chi.Mux, *chatservice.Coordinator) {
	if suggester == nil {
		suggester = suggest.NewCoachSuggester()
	}
	coordinator := chatservice.NewCoordinator(
		sessionservice.NewStore(16),
		relay.NewChannelBus(16),
		suggester,
		config.RelayConfig{
			SessionCapacity:        16,
			MessageMaxLength:       200,
			SubscriberQueueSize:    16,
			SuggestionContextLimit: 5,
			SuggestionTimeout:      time.Second,
		},
	)
	handler := New(coordinator)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, coordinator
}

func activeSession(t *testing.T, coordinator *chatservice.Coordinator) chat.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := coordinator.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	for _, identity := range []string{"Alice", "Bob"} {
		join, err := coordinator.JoinSession(ctx, sess.ID, identity)
		if err != nil {
			t.Fatalf("%s join err: %v", identity, err)
		}
		coordinator.Leave(ctx, sess.ID, join.Stream)
	}
	return sess
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateSession(t *testing.T) {
	r, _ := setupRouter(nil)
	resp := postJSON(r, "/create-session", nil)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if payload.SessionID == "" {
		t.Fatal("expected a session id")
	}
}

func TestSendMessage(t *testing.T) {
	r, coordinator := setupRouter(nil)
	sess := activeSession(t, coordinator)

	resp := postJSON(r, "/session/"+sess.ID+"/message", map[string]string{
		"identity": "Alice",
		"text":     "Hello from User 1!",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var msg chat.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if msg.Sender != chat.RoleUser1 || msg.Sequence != 1 {
		t.Fatalf("unexpected stamped message: %+v", msg)
	}
	if msg.Impact.Category == "" {
		t.Fatal("message missing impact classification")
	}
}

func TestSendMessageUnknownIdentity(t *testing.T) {
	r, coordinator := setupRouter(nil)
	sess := activeSession(t, coordinator)

	resp := postJSON(r, "/session/"+sess.ID+"/message", map[string]string{
		"identity": "Mallory",
		"text":     "let me in",
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestSendMessageEmptyText(t *testing.T) {
	r, coordinator := setupRouter(nil)
	sess := activeSession(t, coordinator)

	resp := postJSON(r, "/session/"+sess.ID+"/message", map[string]string{
		"identity": "Alice",
		"text":     "   ",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSendMessageUnknownSession(t *testing.T) {
	r, _ := setupRouter(nil)

	resp := postJSON(r, "/session/NOPE1234/message", map[string]string{
		"identity": "Alice",
		"text":     "hello",
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestSuggestFallsBackToCoach(t *testing.T) {
	r, coordinator := setupRouter(nil)
	sess := activeSession(t, coordinator)
	postJSON(r, "/session/"+sess.ID+"/message", map[string]string{
		"identity": "Bob",
		"text":     "I'm worried about tonight",
	})

	resp := postJSON(r, "/session/"+sess.ID+"/suggest", map[string]string{"identity": "Alice"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Suggestion string `json:"suggestion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if payload.Suggestion == "" {
		t.Fatal("expected a suggestion")
	}
}

func TestSuggestUnavailable(t *testing.T) {
	r, coordinator := setupRouter(failingSuggester{})
	sess := activeSession(t, coordinator)

	resp := postJSON(r, "/session/"+sess.ID+"/suggest", map[string]string{"identity": "Alice"})
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}

	// The relay path is unaffected.
	resp = postJSON(r, "/session/"+sess.ID+"/message", map[string]string{
		"identity": "Alice",
		"text":     "still works",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 after suggestion failure, got %d", resp.Code)
	}
}

func TestCloseSession(t *testing.T) {
	r, coordinator := setupRouter(nil)
	sess := activeSession(t, coordinator)

	resp := postJSON(r, "/session/"+sess.ID+"/close", nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}

	resp = postJSON(r, "/session/"+sess.ID+"/message", map[string]string{
		"identity": "Alice",
		"text":     "hello?",
	})
	if resp.Code != http.StatusGone {
		t.Fatalf("expected 410 after close, got %d", resp.Code)
	}
}
