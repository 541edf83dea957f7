package impact

import "strings"

// Category labels the emotional impact of a message, ordered by escalation.
type Category string

const (
	Calm    Category = "calm"
	Neutral Category = "neutral"
	Tense   Category = "tense"
	Hostile Category = "hostile"
)

// RGB is the tint applied to message bubbles by the presentation layer.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Impact is the classifier output attached to every relayed message.
type Impact struct {
	Category Category `json:"category"`
	Score    float64  `json:"score"`
	Color    RGB      `json:"color"`
}

// palette maps each category to a fixed tint.
var palette = map[Category]RGB{
	Calm:    {R: 160, G: 210, B: 235},
	Neutral: {R: 224, G: 224, B: 224},
	Tense:   {R: 255, G: 165, B: 0},
	Hostile: {R: 139, G: 0, B: 0},
}

// baseScore anchors each category on the [0,1] severity axis.
var baseScore = map[Category]float64{
	Calm:    0.10,
	Neutral: 0.40,
	Tense:   0.65,
	Hostile: 0.85,
}

var keywordBuckets = map[Category][]string{
	Calm: {
		"calm", "relax", "breathe", "peaceful", "gentle", "understand", "i hear you",
		"thank you", "thanks", "appreciate", "love", "support", "together", "we can",
		"no rush", "take your time", "i'm here", "safe", "okay to feel",
	},
	Tense: {
		"worried", "nervous", "scared", "afraid", "anxious", "what if", "hurry",
		"waiting", "asap", "whatever", "don't care", "so what", "doesn't matter",
		"shouldn't", "you're wrong", "yeah right", "if you say so", "i'm fine",
		"annoyed", "frustrated", "stressed", "fed up",
	},
	Hostile: {
		"hate", "kill", "destroy", "shut up", "stupid", "idiot", "damn", "hell",
		"your fault", "you never", "you always", "you made me", "furious", "rage",
		"screaming", "seriously?", "are you kidding", "what's wrong with you",
	},
}

// Color returns the fixed palette entry for a category.
func Color(category Category) RGB {
	if c, ok := palette[category]; ok {
		return c
	}
	return palette[Neutral]
}

// Classify maps message text to an impact rating. It is deterministic and
// side-effect-free; anything it cannot make sense of degrades to Neutral,
// since impact only affects tinting, never delivery.
func Classify(text string) Impact {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Impact{Category: Neutral, Score: baseScore[Neutral], Color: Color(Neutral)}
	}

	hits := make(map[Category]int)
	for category, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				hits[category]++
			}
		}
	}

	// Repeated exclamation reads as escalation, not enthusiasm, in a
	// conflict-prone conversation.
	if strings.Count(normalized, "!") >= 3 {
		hits[Tense]++
	}

	// Highest-severity bucket with at least one hit wins.
	category := Neutral
	switch {
	case hits[Hostile] > 0:
		category = Hostile
	case hits[Tense] > 0:
		category = Tense
	case hits[Calm] > 0:
		category = Calm
	}

	return Impact{
		Category: category,
		Score:    scoreFor(category, hits[category]),
		Color:    Color(category),
	}
}

// scoreFor nudges the base score up with additional keyword hits while
// keeping categories disjoint on the severity axis.
func scoreFor(category Category, hits int) float64 {
	score := baseScore[category]
	if hits > 1 {
		extra := float64(hits-1) * 0.03
		if extra > 0.09 {
			extra = 0.09
		}
		if category == Calm {
			// Calmer, not more severe: extra calm signals pull the score down.
			score -= extra
			if score < 0 {
				score = 0
			}
			return score
		}
		score += extra
	}
	if score > 1 {
		score = 1
	}
	return score
}
