package chat

import (
	"time"

	"github.com/jthale/attune/backend/internal/analysis/impact"
)

// Message is one relayed turn. Sequence defines the canonical transcript
// order; everything is stamped server-side before publish and never mutated
// afterwards.
type Message struct {
	ID        string        `json:"id"`
	SessionID string        `json:"sessionId"`
	Sender    Role          `json:"sender"`
	Text      string        `json:"text"`
	Impact    impact.Impact `json:"impact"`
	Sequence  int64         `json:"sequence"`
	CreatedAt time.Time     `json:"createdAt"`
}
