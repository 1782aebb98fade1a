package chat

import (
	"testing"

	"github.com/aris-project/aris/internal/llm"
)

func TestMessageCodecRoles(t *testing.T) {
	cases := []struct {
		role       llm.Role
		storedType string
	}{
		{llm.RoleSystem, "system"},
		{llm.RoleUser, "human"},
		{llm.RoleAssistant, "ai"},
	}
	for _, tc := range cases {
		payload, err := encodeMessage(tc.role, "hello")
		if err != nil {
			t.Fatalf("encode %s: %v", tc.role, err)
		}
		want := `{"type":"` + tc.storedType + `","data":{"content":"hello"}}`
		if payload != want {
			t.Fatalf("payload = %s, want %s", payload, want)
		}
		decoded, err := decodeMessage(payload)
		if err != nil {
			t.Fatalf("decode %s: %v", tc.role, err)
		}
		if decoded.Role != tc.role || decoded.Content != "hello" {
			t.Fatalf("decoded = %+v", decoded)
		}
	}
}

func TestMessageCodecRejectsUnknown(t *testing.T) {
	if _, err := encodeMessage(llm.Role("tool"), "x"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if _, err := decodeMessage(`{"type":"tool","data":{"content":"x"}}`); err == nil {
		t.Fatal("expected error for unknown stored type")
	}
	if _, err := decodeMessage("not json"); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
