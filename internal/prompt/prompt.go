// Package prompt assembles chat completion messages from a bot's
// identity, retrieved context, and conversation history.
package prompt

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/botd/internal/knowledge"
	"github.com/fyrsmithlabs/botd/internal/tenant"
)

// MaxHistory caps how many prior messages accompany a question. Older
// messages are dropped, newest kept.
const MaxHistory = 10

// DefaultBotName is used when a bot has no name of its own.
const DefaultBotName = "Assistant"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// refusal is the grounding instruction's exact fallback sentence. Client
// UIs match on it, so it must not drift.
const refusal = `I don't have that information in my knowledge base. Please contact our support team for assistance.`

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildSystemPrompt renders the system prompt for a bot given its
// retrieved context. With no context the prompt still carries the
// grounding instructions, which steer the model toward the refusal.
func BuildSystemPrompt(bot *tenant.Bot, chunks []knowledge.RetrievedChunk) string {
	name := bot.Name
	if name == "" {
		name = DefaultBotName
	}

	var contextText strings.Builder
	if len(chunks) > 0 {
		contextText.WriteString("Context from knowledge base:\n\n")
		for i, chunk := range chunks {
			fmt.Fprintf(&contextText, "[%d] (relevance: %.2f)\n%s\n\n", i+1, chunk.Score, chunk.Text)
		}
	}

	return fmt.Sprintf(`You are %s, a helpful customer support assistant.

%s

Instructions:
- Answer the user's question using ONLY the context provided above
- Be helpful, concise, and friendly
- If the answer is not in the context, respond: "%s"
- Do not make up information or use knowledge outside the provided context
- If multiple pieces of context are relevant, synthesize them into a coherent answer
`, name, contextText.String(), refusal)
}

// BuildMessages assembles the completion message list: system prompt
// first, then the newest MaxHistory history turns, then the question as
// a user message.
func BuildMessages(systemPrompt string, history []Message, question string) []Message {
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: question})
	return messages
}
