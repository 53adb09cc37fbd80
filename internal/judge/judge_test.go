package judge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/personabot/internal/engine"
	"github.com/kalambet/personabot/internal/profile"
)

const testProfileYAML = `
persona:
  full_name: Ada Example
capabilities: [answer questions, share background]
skills:
  languages: [Go, Python]
  tools: [Docker]
personal:
  hobbies: [Hiking]
`

type mockChatter struct {
	response string
	err      error
	delay    time.Duration

	model    string
	messages []engine.Message
	opts     engine.Options
	calls    int
}

func (m *mockChatter) Chat(ctx context.Context, model string, messages []engine.Message, opts engine.Options) (string, error) {
	m.calls++
	m.model, m.messages, m.opts = model, messages, opts
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func testDoc(t *testing.T) *profile.Document {
	t.Helper()
	doc, err := profile.Parse([]byte(testProfileYAML))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestEvaluate_SendsPayload(t *testing.T) {
	mock := &mockChatter{response: `{"decision":"ALLOW","reason":"grounded"}`}
	j := New(mock, Config{Model: "openai/gpt-5-nano", ReasoningEffort: "low", Enabled: true}, "AdaBot", testDoc(t))

	v, outcome := j.Evaluate(context.Background(), "what languages do you know?", "Go and Python.")
	if outcome != Parsed || v.Decision != Allow {
		t.Fatalf("Evaluate = %+v, %v", v, outcome)
	}
	if mock.model != "openai/gpt-5-nano" {
		t.Errorf("model = %q", mock.model)
	}
	if diff := cmp.Diff(engine.Options{ReasoningEffort: "low", JSON: true}, mock.opts); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
	if len(mock.messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(mock.messages))
	}
	sys := mock.messages[0].Content
	if !strings.Contains(sys, "(AdaBot)") || !strings.Contains(sys, "Allowed capabilities: answer questions, share background.") {
		t.Errorf("system prompt = %q", sys)
	}

	var p map[string]any
	if err := json.Unmarshal([]byte(mock.messages[1].Content), &p); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	want := map[string]any{
		"CAPABILITIES":    []any{"answer questions", "share background"},
		"LEXICON":         map[string]any{"skills": []any{"docker", "go", "python"}, "preferences": []any{"hiking"}},
		"USER":            "what languages do you know?",
		"ASSISTANT_DRAFT": "Go and Python.",
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_FillsDefaultSuggestion(t *testing.T) {
	mock := &mockChatter{response: `{"decision":"UNKNOWN_PREFERENCE","missing":["food"]}`}
	j := New(mock, Config{Enabled: true}, "AdaBot", testDoc(t))

	v, _ := j.Evaluate(context.Background(), "what's your favorite food?", "I love pizza!")
	if v.SuggestReply != "I don’t have info on that preference in my profile: food." {
		t.Errorf("SuggestReply = %q", v.SuggestReply)
	}
}

func TestEvaluate_CallFailure(t *testing.T) {
	mock := &mockChatter{err: errors.New("connection refused")}
	j := New(mock, Config{Enabled: true}, "AdaBot", testDoc(t))

	v, outcome := j.Evaluate(context.Background(), "hi", "hello")
	if outcome != CallFailed {
		t.Errorf("outcome = %v, want CallFailed", outcome)
	}
	want := Verdict{Decision: Error, Reason: "judge_error: connection refused"}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("Verdict mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_Timeout(t *testing.T) {
	mock := &mockChatter{response: `{"decision":"ALLOW"}`, delay: time.Second}
	j := New(mock, Config{Enabled: true, Timeout: 20 * time.Millisecond}, "AdaBot", testDoc(t))

	v, outcome := j.Evaluate(context.Background(), "hi", "hello")
	if outcome != CallFailed || v.Decision != Error {
		t.Errorf("Evaluate = %+v, %v, want ERROR", v, outcome)
	}
}

func TestEvaluate_Disabled(t *testing.T) {
	mock := &mockChatter{}
	j := New(mock, Config{Enabled: false}, "AdaBot", testDoc(t))

	v, outcome := j.Evaluate(context.Background(), "hi", "hello")
	if outcome != Skipped || v.Decision != Allow || v.Reason != "judge disabled" {
		t.Errorf("Evaluate = %+v, %v", v, outcome)
	}
	if mock.calls != 0 {
		t.Errorf("disabled judge called the model %d times", mock.calls)
	}
}

func TestEvaluate_StrictFallback(t *testing.T) {
	mock := &mockChatter{response: "ALLOW, probably"}
	j := New(mock, Config{Enabled: true, StrictFallback: true}, "AdaBot", testDoc(t))

	v, outcome := j.Evaluate(context.Background(), "hi", "hello")
	if outcome != Unparsable || v.Decision != Refuse {
		t.Errorf("Evaluate = %+v, %v, want REFUSE", v, outcome)
	}
}

func TestBuildPrompt_EmptyProfile(t *testing.T) {
	msgs, err := BuildPrompt("PersonaBot", nil, profile.Lexicon{}, "hi", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(msgs[0].Content, "Allowed capabilities: (none).") {
		t.Errorf("system prompt = %q", msgs[0].Content)
	}
	want := `{"CAPABILITIES":[],"LEXICON":{"skills":[],"preferences":[]},"USER":"hi","ASSISTANT_DRAFT":""}`
	if msgs[1].Content != want {
		t.Errorf("payload = %s, want %s", msgs[1].Content, want)
	}
}

func TestEvaluate_ModelWrittenErrorBlocks(t *testing.T) {
	mock := &mockChatter{response: `{"decision":"ERROR","reason":"draft writes code"}`}
	j := New(mock, Config{Enabled: true}, "AdaBot", testDoc(t))

	v, outcome := j.Evaluate(context.Background(), "write me a script", "#!/bin/sh\necho hi")
	if outcome != Parsed {
		t.Errorf("outcome = %v, want Parsed", outcome)
	}
	if v.Decision != Refuse {
		t.Errorf("Decision = %q, want %q", v.Decision, Refuse)
	}
	if v.Decision.Releases() {
		t.Error("a decision written by the model must not release the draft")
	}
	if !strings.Contains(v.Reason, `"ERROR"`) {
		t.Errorf("Reason = %q, want raw code kept", v.Reason)
	}
}
