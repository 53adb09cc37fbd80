package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/personabot/internal/judge"
	"github.com/kalambet/personabot/internal/profile"
	"github.com/kalambet/personabot/internal/storage"
)

func newTestMCPDeps(t *testing.T, eng *fakeEngine) (MCPDeps, *storage.Store) {
	t.Helper()
	store := openTestStore(t)
	doc := testDocument(t)
	return MCPDeps{
		Governor:     newTestGovernor(t, eng, store),
		Lexicon:      profile.BuildLexicon(doc),
		Capabilities: doc.Capabilities(),
		Store:        store,
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func resourceText(t *testing.T, contents []mcp.ResourceContents) string {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("expected 1 resource content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.MIMEType != "application/json" {
		t.Errorf("MIMEType = %q", tc.MIMEType)
	}
	return tc.Text
}

func TestMCPTool_AskPersona(t *testing.T) {
	eng := &fakeEngine{reply: "Mostly Go and SQL."}
	deps, store := newTestMCPDeps(t, eng)

	result, err := mcpAskPersona(deps)(context.Background(), makeCallToolRequest("ask_persona", map[string]any{
		"message": "What languages do you know?",
		"history": `[{"role":"user","content":"hi"},{"role":"assistant","content":"Hello!"},{"role":"tool","content":"x"}]`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var got ChatResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("tool output is not JSON: %v", err)
	}
	if diff := cmp.Diff(ChatResponse{Reply: "Mostly Go and SQL.", Decision: judge.Allow}, got); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}

	if n := len(eng.lastCall()); n != 4 {
		t.Errorf("engine got %d messages, want system + 2 history + composite", n)
	}

	records, err := store.ListDecisions(storage.ListFilter{SessionID: mcpSessionID})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 logged decision for the mcp session, got %d", len(records))
	}
}

func TestMCPTool_AskPersona_MissingMessage(t *testing.T) {
	eng := &fakeEngine{reply: "x"}
	deps, _ := newTestMCPDeps(t, eng)

	for _, args := range []map[string]any{{}, {"message": ""}, {"message": "  \n\t "}} {
		result, err := mcpAskPersona(deps)(context.Background(), makeCallToolRequest("ask_persona", args))
		if err != nil {
			t.Fatal(err)
		}
		if !result.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
	if eng.callCount() != 0 {
		t.Errorf("engine called %d times", eng.callCount())
	}
}

func TestMCPTool_AskPersona_BadHistory(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeEngine{reply: "x"})

	result, err := mcpAskPersona(deps)(context.Background(), makeCallToolRequest("ask_persona", map[string]any{
		"message": "hello",
		"history": `{"role":"user"}`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "invalid history") {
		t.Errorf("expected invalid history error, got %q", toolText(t, result))
	}
}

func TestMCPTool_AskPersona_Upstream(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeEngine{err: errors.New("boom")})

	result, err := mcpAskPersona(deps)(context.Background(), makeCallToolRequest("ask_persona", map[string]any{
		"message": "hello",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected tool error on upstream failure")
	}
}

func TestMCPResource_Lexicon(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeEngine{})

	contents, err := mcpResourceLexicon(deps)(context.Background(), makeReadResourceRequest("persona://lexicon"))
	if err != nil {
		t.Fatal(err)
	}

	var got map[string][]string
	if err := json.Unmarshal([]byte(resourceText(t, contents)), &got); err != nil {
		t.Fatal(err)
	}
	want := map[string][]string{
		"capabilities": {"answer questions", "share contact info"},
		"skills":       {"go", "sql"},
		"preferences":  {"hiking", "ramen"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lexicon mismatch (-want +got):\n%s", diff)
	}
}

func TestMCPResource_LexiconEmptyProfile(t *testing.T) {
	deps := MCPDeps{Lexicon: profile.BuildLexicon(profile.Empty())}

	contents, err := mcpResourceLexicon(deps)(context.Background(), makeReadResourceRequest("persona://lexicon"))
	if err != nil {
		t.Fatal(err)
	}
	if got := resourceText(t, contents); got != `{"capabilities":[],"preferences":[],"skills":[]}` {
		t.Errorf("empty lexicon = %s", got)
	}
}

func TestMCPResource_RecentDecisions(t *testing.T) {
	deps, store := newTestMCPDeps(t, &fakeEngine{})
	long := strings.Repeat("é", 250)
	if _, err := store.SaveDecision(storage.DecisionRecord{
		Stage: storage.StageJudge, Decision: "ALLOW", UserMessage: long,
	}); err != nil {
		t.Fatal(err)
	}

	contents, err := mcpResourceRecentDecisions(deps)(context.Background(), makeReadResourceRequest("persona://decisions/recent"))
	if err != nil {
		t.Fatal(err)
	}

	var got []map[string]string
	if err := json.Unmarshal([]byte(resourceText(t, contents)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(got))
	}
	if got[0]["decision"] != "ALLOW" || got[0]["stage"] != storage.StageJudge {
		t.Errorf("summary = %v", got[0])
	}
	if want := strings.Repeat("é", 200) + "..."; got[0]["message"] != want {
		t.Errorf("message not truncated to 200 runes: %d runes", len([]rune(got[0]["message"])))
	}
}

func TestMCPTool_ConcurrentCalls(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeEngine{reply: "ok"})
	handler := mcpAskPersona(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := handler(context.Background(), makeCallToolRequest("ask_persona", map[string]any{
				"message": "who are you?",
			}))
			if err != nil {
				errs <- err
				return
			}
			if result.IsError {
				errs <- errors.New("tool returned an error result")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}
