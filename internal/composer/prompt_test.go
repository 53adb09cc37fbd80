package composer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/personabot/internal/engine"
	"github.com/kalambet/personabot/internal/session"
)

func TestSystemPrompt(t *testing.T) {
	got := SystemPrompt("AdaBot", "Ada Example", []string{"answer questions", "share background"})
	want := "You are AdaBot, an AI persona inspired by Ada Example.\n" +
		"RULES:\n" +
		"• Stay within the information provided in your profile.\n" +
		"• Only claim capabilities explicitly listed: answer questions, share background\n" +
		"• If a user asks for actions you can't perform, say you can’t do that.\n" +
		"• If asked about a skill/preference not in your profile, say you don’t have that info.\n" +
		"• Be concise, warm, and practical. No impersonation disclaimers; write as AdaBot.\n" +
		"• If asked to create or write code, or to help with either, refuse.\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SystemPrompt mismatch (-want +got):\n%s", diff)
	}
}

func TestSystemPrompt_NoCapabilities(t *testing.T) {
	got := SystemPrompt("PersonaBot", "", nil)
	if !strings.HasPrefix(got, "You are PersonaBot, an AI persona.\n") {
		t.Errorf("header = %q", strings.SplitN(got, "\n", 2)[0])
	}
	if !strings.Contains(got, "explicitly listed: (none)\n") {
		t.Error("empty capabilities not rendered as (none)")
	}
}

func TestCompose_Order(t *testing.T) {
	c := New("AdaBot", "Ada", nil, 0)
	history := []session.Turn{
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "hello!"},
	}

	got := c.Compose(`[{"education":[]}]`, history, "tell me about your WGU degree")
	want := []engine.Message{
		{Role: engine.RoleSystem, Content: c.System()},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello!"},
		{Role: engine.RoleUser, Content: "BACKGROUND (selected sections from the profile):\n[{\"education\":[]}]\n\nUSER MESSAGE:\ntell me about your WGU degree"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Compose mismatch (-want +got):\n%s", diff)
	}
}

func TestCompose_NoHistory(t *testing.T) {
	got := New("AdaBot", "", nil, 0).Compose("ctx", nil, "msg")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestCompose_HistoryBudgetDropsOldest(t *testing.T) {
	c := New("AdaBot", "", nil, 10)
	history := []session.Turn{
		{Role: session.RoleUser, Content: strings.Repeat("a", 40)},      // 10 tokens
		{Role: session.RoleAssistant, Content: strings.Repeat("b", 20)}, // 5 tokens
		{Role: session.RoleUser, Content: strings.Repeat("c", 20)},      // 5 tokens
	}

	got := c.Compose("ctx", history, "msg")
	if len(got) != 4 {
		t.Fatalf("len = %d, want system + 2 turns + composite", len(got))
	}
	if got[1].Content[0] != 'b' || got[2].Content[0] != 'c' {
		t.Errorf("kept %q, %q; want the two newest turns", got[1].Content, got[2].Content)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
