package llm

import (
	"strings"
	"testing"

	"github.com/aris-project/aris/internal/models"
)

func testCfg(rt models.RequestType) models.LLMConfig {
	return models.LLMConfig{
		LLMName:     "gpt-test",
		LLMType:     models.LLMTypeOpenAI,
		RequestType: rt,
		SysName:     "system",
		SysPrompt:   "You are helpful.",
		UserName:    "user",
		AIName:      "assistant",
	}
}

func TestBuildPrompt_MessageStyle(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}

	msgs, err := BuildPrompt(testCfg(models.RequestTypeMessage), history, "how are you")
	if err != nil {
		t.Fatalf("build prompt: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].Content != "You are helpful." {
		t.Fatalf("expected system message first, got %+v", msgs[0])
	}
	if msgs[1].Content != "hi" || msgs[2].Content != "hello" {
		t.Fatalf("history out of order: %+v", msgs[1:3])
	}
	if msgs[3].Role != RoleUser || msgs[3].Content != "how are you" {
		t.Fatalf("expected user turn last, got %+v", msgs[3])
	}
}

func TestBuildPrompt_StringStyle(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}

	msgs, err := BuildPrompt(testCfg(models.RequestTypeString), history, "how are you")
	if err != nil {
		t.Fatalf("build prompt: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected single flattened message, got %d", len(msgs))
	}
	flat := msgs[0].Content

	// Ordering: system prompt, history, new user turn, then the model cue.
	sysIdx := strings.Index(flat, "system:You are helpful.")
	hiIdx := strings.Index(flat, "user:hi")
	helloIdx := strings.Index(flat, "assistant:hello")
	turnIdx := strings.Index(flat, "user:how are you")
	if sysIdx < 0 || hiIdx < 0 || helloIdx < 0 || turnIdx < 0 {
		t.Fatalf("missing sections in flattened prompt:\n%s", flat)
	}
	if !(sysIdx < hiIdx && hiIdx < helloIdx && helloIdx < turnIdx) {
		t.Fatalf("sections out of order:\n%s", flat)
	}
	if !strings.HasSuffix(flat, "assistant:") {
		t.Fatalf("expected trailing model cue, got %q", flat)
	}
}

func TestBuildPrompt_UnknownRequestType(t *testing.T) {
	if _, err := BuildPrompt(testCfg("bogus"), nil, "x"); err == nil {
		t.Fatalf("expected error for unknown request type")
	}
}

func TestStuffContext(t *testing.T) {
	out := StuffContext([]string{"alpha", "beta"}, "what is alpha?")
	for _, want := range []string{"document 0:", "alpha", "document 1:", "beta", "question:\nwhat is alpha?"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in stuffed context:\n%s", want, out)
		}
	}
}
