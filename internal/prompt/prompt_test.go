package prompt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/botd/internal/knowledge"
	"github.com/fyrsmithlabs/botd/internal/tenant"
)

func TestBuildSystemPromptWithContext(t *testing.T) {
	bot := &tenant.Bot{ID: "bot-1", Name: "SupportBot"}
	chunks := []knowledge.RetrievedChunk{
		{Text: "Refunds take 5 business days.", Score: 0.91},
		{Text: "Contact billing for invoices.", Score: 0.72},
	}

	got := BuildSystemPrompt(bot, chunks)

	assert.Contains(t, got, "You are SupportBot, a helpful customer support assistant.")
	assert.Contains(t, got, "Context from knowledge base:")
	assert.Contains(t, got, "[1] (relevance: 0.91)\nRefunds take 5 business days.")
	assert.Contains(t, got, "[2] (relevance: 0.72)\nContact billing for invoices.")
	assert.Contains(t, got, "using ONLY the context provided above")
}

func TestBuildSystemPromptDefaultName(t *testing.T) {
	got := BuildSystemPrompt(&tenant.Bot{ID: "bot-1"}, nil)
	assert.Contains(t, got, "You are Assistant, a helpful customer support assistant.")
}

func TestBuildSystemPromptEmptyContext(t *testing.T) {
	got := BuildSystemPrompt(&tenant.Bot{ID: "bot-1", Name: "X"}, nil)

	assert.NotContains(t, got, "Context from knowledge base:")
	assert.Contains(t, got, "Instructions:")
}

func TestBuildSystemPromptRefusalVerbatim(t *testing.T) {
	got := BuildSystemPrompt(&tenant.Bot{ID: "bot-1"}, nil)
	assert.Contains(t, got,
		`respond: "I don't have that information in my knowledge base. Please contact our support team for assistance."`)
}

func TestBuildMessages(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}

	got := BuildMessages("sys", history, "what now?")

	require.Len(t, got, 4)
	assert.Equal(t, Message{Role: RoleSystem, Content: "sys"}, got[0])
	assert.Equal(t, history[0], got[1])
	assert.Equal(t, history[1], got[2])
	assert.Equal(t, Message{Role: RoleUser, Content: "what now?"}, got[3])
}

func TestBuildMessagesTruncatesHistory(t *testing.T) {
	history := make([]Message, MaxHistory+5)
	for i := range history {
		history[i] = Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)}
	}

	got := BuildMessages("sys", history, "q")

	require.Len(t, got, MaxHistory+2)
	// Oldest messages dropped, newest kept in order.
	assert.Equal(t, "m5", got[1].Content)
	assert.Equal(t, fmt.Sprintf("m%d", MaxHistory+4), got[len(got)-2].Content)
	assert.Equal(t, "q", got[len(got)-1].Content)
}

func TestBuildMessagesNoHistory(t *testing.T) {
	got := BuildMessages("sys", nil, "q")
	require.Len(t, got, 2)
	assert.Equal(t, RoleSystem, got[0].Role)
	assert.Equal(t, RoleUser, got[1].Role)
}
