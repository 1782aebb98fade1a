package llm

import (
	"context"
	"fmt"

	"github.com/aris-project/aris/internal/models"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client is a chat-completion provider bound to one model configuration.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	// StreamChat returns immediately with two channels; both are closed
	// when streaming ends.
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
	// Ping sends a trivial prompt to verify the configuration is reachable.
	Ping(ctx context.Context) error
}

// New dispatches on the closed LLMType set. Adding a provider means adding
// a case here; an unknown tag is a configuration error, not a lookup miss.
func New(cfg models.LLMConfig, temperature float64) (Client, error) {
	switch cfg.LLMType {
	case models.LLMTypeOpenAI:
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.LLMName, temperature, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("llm: unknown llm type %q", cfg.LLMType)
	}
}
