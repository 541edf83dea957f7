package suggest

import (
	"context"
	"errors"

	"github.com/jthale/attune/backend/internal/analysis/impact"
	"github.com/jthale/attune/backend/internal/model/chat"
)

// ErrUnavailable is the only failure the relay ever sees from this package.
// Suggestions are strictly best-effort; nothing here may destabilize messaging.
var ErrUnavailable = errors.New("suggestion unavailable")

// Suggester produces a candidate reply for forRole given the recent
// transcript tail. Implementations are injected so tests can substitute
// failing or canned capabilities.
type Suggester interface {
	Suggest(ctx context.Context, forRole chat.Role, history []chat.Message) (string, error)
}

// CoachSuggester is the deterministic fallback used when no language model is
// configured. It keys a supportive reply off the impact of the partner's last
// message.
type CoachSuggester struct{}

// NewCoachSuggester returns the heuristic fallback suggester.
func NewCoachSuggester() *CoachSuggester {
	return &CoachSuggester{}
}

// Suggest picks a canned coach reply matching the partner's latest tone.
func (c *CoachSuggester) Suggest(_ context.Context, forRole chat.Role, history []chat.Message) (string, error) {
	var last *chat.Message
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Sender != forRole {
			last = &history[i]
			break
		}
	}
	if last == nil {
		return "I'd like to understand how you're feeling right now. Can you tell me more?", nil
	}

	switch last.Impact.Category {
	case impact.Hostile:
		return "I can see this is really upsetting you. I want to work through it, not fight about it. Can we slow down?", nil
	case impact.Tense:
		return "I hear you. Thank you for telling me. I didn't realize this was weighing on you. What would help right now?", nil
	case impact.Calm:
		return "Thank you for saying that so gently. It means a lot to me that we can talk like this.", nil
	default:
		return "I want to make sure I understood you. Can you tell me a bit more about what you meant?", nil
	}
}
