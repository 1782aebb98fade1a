package chat

import (
	"encoding/json"
	"fmt"

	"github.com/aris-project/aris/internal/llm"
)

// Stored payloads keep the historical wire shape
// {"type":"system|human|ai","data":{"content":...}} so existing message rows
// stay readable.
type storedMessage struct {
	Type string `json:"type"`
	Data struct {
		Content string `json:"content"`
	} `json:"data"`
}

const (
	storedTypeSystem = "system"
	storedTypeHuman  = "human"
	storedTypeAI     = "ai"
)

func encodeMessage(role llm.Role, content string) (string, error) {
	var m storedMessage
	switch role {
	case llm.RoleSystem:
		m.Type = storedTypeSystem
	case llm.RoleUser:
		m.Type = storedTypeHuman
	case llm.RoleAssistant:
		m.Type = storedTypeAI
	default:
		return "", fmt.Errorf("chat: unknown role %q", role)
	}
	m.Data.Content = content
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMessage(payload string) (llm.Message, error) {
	var m storedMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return llm.Message{}, err
	}
	switch m.Type {
	case storedTypeSystem:
		return llm.Message{Role: llm.RoleSystem, Content: m.Data.Content}, nil
	case storedTypeHuman:
		return llm.Message{Role: llm.RoleUser, Content: m.Data.Content}, nil
	case storedTypeAI:
		return llm.Message{Role: llm.RoleAssistant, Content: m.Data.Content}, nil
	default:
		return llm.Message{}, fmt.Errorf("chat: unknown stored message type %q", m.Type)
	}
}
