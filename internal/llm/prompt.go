package llm

import (
	"fmt"
	"strings"

	"github.com/aris-project/aris/internal/models"
)

const ragContextTemplate = "\nUse the following pieces of context to answer the question at the end. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n" +
	"context:\n%s\n\n\nquestion:\n%s"

// StuffContext interleaves retrieved context before the question.
func StuffContext(contexts []string, userPrompt string) string {
	docs := make([]string, 0, len(contexts))
	for i, c := range contexts {
		docs = append(docs, fmt.Sprintf("document %d:\ncontent: %s", i, c))
	}
	return fmt.Sprintf(ragContextTemplate, strings.Join(docs, "\n---\n"), userPrompt)
}

// BuildPrompt assembles the provider messages for one turn: system
// instruction first, then replayed history, then the user turn. The two
// request styles must keep that ordering semantically identical.
func BuildPrompt(cfg models.LLMConfig, history []Message, userPrompt string) ([]Message, error) {
	switch cfg.RequestType {
	case models.RequestTypeMessage:
		msgs := make([]Message, 0, len(history)+2)
		msgs = append(msgs, Message{Role: RoleSystem, Content: cfg.SysPrompt})
		msgs = append(msgs, history...)
		msgs = append(msgs, Message{Role: RoleUser, Content: userPrompt})
		return msgs, nil

	case models.RequestTypeString:
		// Flat template: the whole conversation is rendered into a single
		// completion-style string and sent as one user message.
		var b strings.Builder
		fmt.Fprintf(&b, "%s:%s\n", cfg.SysName, cfg.SysPrompt)
		for _, m := range history {
			name := cfg.UserName
			switch m.Role {
			case RoleAssistant:
				name = cfg.AIName
			case RoleSystem:
				name = cfg.SysName
			}
			fmt.Fprintf(&b, "%s:%s\n", name, m.Content)
		}
		fmt.Fprintf(&b, "%s:%s\n%s:", cfg.UserName, userPrompt, cfg.AIName)
		return []Message{{Role: RoleUser, Content: b.String()}}, nil

	default:
		return nil, fmt.Errorf("llm: invalid request type %q", cfg.RequestType)
	}
}
