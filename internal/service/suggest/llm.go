package suggest

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/jthale/attune/backend/internal/config"
	"github.com/jthale/attune/backend/internal/model/chat"
)

const systemPrompt = "You are a compassionate communication coach helping two partners " +
	"text each other through a difficult conversation. Draft one short reply the user " +
	"could send next: empathetic, non-blaming, specific to what their partner just said. " +
	"Respond with the reply text only, no preamble and no quotation marks."

// LLMSuggester generates reply candidates through a chat model chain.
type LLMSuggester struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewLLMSuggester compiles the prompt chain against the configured model.
func NewLLMSuggester(ctx context.Context, cfg config.AIConfig) (*LLMSuggester, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile suggestion chain: %w", err)
	}

	return &LLMSuggester{chain: runnable}, nil
}

// Suggest runs the chain over the transcript tail. The requester's own turns
// become assistant messages so the model completes their side of the exchange.
func (s *LLMSuggester) Suggest(ctx context.Context, forRole chat.Role, history []chat.Message) (string, error) {
	queryIdx := lastPartnerIndex(forRole, history)
	query := "My partner hasn't said anything yet. Help me open the conversation kindly."
	var prior []chat.Message
	if queryIdx >= 0 {
		query = history[queryIdx].Text
		prior = history[:queryIdx]
	}

	input := map[string]any{
		"system":  systemPrompt,
		"history": historyMessages(forRole, prior),
		"query":   query,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run suggestion chain: %w", err)
	}

	text := strings.TrimSpace(response.Content)
	if text == "" {
		return "", fmt.Errorf("model returned an empty suggestion")
	}

	log.Printf("[suggest] generated reply for role=%s, context=%d, length=%d", forRole, len(history), len(text))
	return text, nil
}

func historyMessages(forRole chat.Role, history []chat.Message) []*schema.Message {
	if len(history) == 0 {
		return nil
	}
	msgs := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		if msg.Sender == forRole {
			msgs = append(msgs, schema.AssistantMessage(msg.Text, nil))
		} else {
			msgs = append(msgs, schema.UserMessage(msg.Text))
		}
	}
	return msgs
}

func lastPartnerIndex(forRole chat.Role, history []chat.Message) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Sender != forRole {
			return i
		}
	}
	return -1
}
