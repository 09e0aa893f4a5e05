package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_llm.go -package=mocks kbassist/internal/llm Embedder,ChatModel

import (
	"context"
	"fmt"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model specifies the model to use. If empty, the client's default model is used.
	Model string

	// MaxTokens specifies the maximum number of tokens to generate.
	// If 0, no limit is applied.
	MaxTokens int

	// Temperature controls the randomness of the output. It is always sent;
	// 0 asks for deterministic output.
	Temperature float32
}

// Embedder produces one embedding vector per input text.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatModel completes a conversation.
type ChatModel interface {
	ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error)
}

// StatusError is returned when a provider answers with a non-200 HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status %d: %s", e.StatusCode, e.Body)
}
