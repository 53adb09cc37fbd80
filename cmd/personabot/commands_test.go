package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/personabot/internal/api"
	"github.com/kalambet/personabot/internal/config"
	"github.com/kalambet/personabot/internal/judge"
	"github.com/kalambet/personabot/internal/pipeline"
	"github.com/kalambet/personabot/internal/profile"
	"github.com/kalambet/personabot/internal/session"
	"github.com/kalambet/personabot/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"decision not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAPIClient_ListDecisions(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /decisions": `[{"id":"d-0001-aaaa","created_at":"2026-03-01T12:00:00Z","stage":"judge","decision":"ALLOW","missing":[],"user_message":"hi","reply":"hello","duration_ms":12}]`,
	})

	resp, err := ts.client().get(ctx, decisionsListPath(5, 0, "allow", "s1"))
	if err != nil {
		t.Fatal(err)
	}
	var records []storage.DecisionRecord
	if err := decodeJSON(resp, &records); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(records) != 1 || records[0].Decision != "ALLOW" || records[0].DurationMS != 12 {
		t.Errorf("records = %+v", records)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Path != "/decisions?decision=ALLOW&limit=5&session=s1" {
		t.Errorf("path = %q", r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
}

func TestAPIClient_ErrorBody(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/decisions/missing")
	if err != nil {
		t.Fatal(err)
	}
	var record storage.DecisionRecord
	err = decodeJSON(resp, &record)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "decision not found") {
		t.Errorf("error = %q", err)
	}
}

func TestAPIClient_ServerDown(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.client()
	ts.server.Close()

	_, err := c.get(ctx, "/decisions/stats")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecisionsListPath(t *testing.T) {
	if got := decisionsListPath(20, 0, "", ""); got != "/decisions?limit=20" {
		t.Errorf("got %q", got)
	}
	if got := decisionsListPath(10, 30, "out_of_scope", ""); got != "/decisions?decision=OUT_OF_SCOPE&limit=10&offset=30" {
		t.Errorf("got %q", got)
	}
}

func TestFormatDecisionLine(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	line := formatDecisionLine(storage.DecisionRecord{
		ID:          "0123456789abcdef",
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Stage:       storage.StageGuard,
		Decision:    "PROGRAMMING_HELP",
		UserMessage: strings.Repeat("x", 70) + "\nmore",
	})
	if !strings.HasPrefix(line, "01234567  2026-03-01 12:00:00  guard") {
		t.Errorf("line = %q", line)
	}
	if !strings.HasSuffix(line, strings.Repeat("x", 60)+"...") {
		t.Errorf("message not truncated: %q", line)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestIsExitToken(t *testing.T) {
	for _, in := range []string{"exit", "QUIT", "  bye  ", "Goodbye", "good bye", "GOOD BYE"} {
		if !isExitToken(in) {
			t.Errorf("isExitToken(%q) = false", in)
		}
	}
	for _, in := range []string{"", "goodbyes", "bye bye", "exit now", "good  bye"} {
		if isExitToken(in) {
			t.Errorf("isExitToken(%q) = true", in)
		}
	}
}

// scriptReader replays lines, then returns err (io.EOF when nil).
type scriptReader struct {
	lines []string
	err   error
}

func (s *scriptReader) Readline() (string, error) {
	if len(s.lines) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

type fakeResponder struct {
	histories [][]session.Turn
	fail      map[string]bool
}

func (f *fakeResponder) Respond(_ context.Context, message string, history []session.Turn) (pipeline.Result, error) {
	f.histories = append(f.histories, history)
	if f.fail[message] {
		return pipeline.Result{Decision: judge.Error}, pipeline.ErrUpstream
	}
	return pipeline.Result{Reply: "echo: " + message, Decision: judge.Allow}, nil
}

func newTestConsole(lines []string, bot responder) (*console, *bytes.Buffer) {
	var out bytes.Buffer
	return &console{
		in:   &scriptReader{lines: lines},
		out:  &out,
		bot:  bot,
		sess: session.New(4),
		name: "AdaBot",
	}, &out
}

func TestConsole_ExitToken(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	bot := &fakeResponder{}
	c, out := newTestConsole([]string{"hello", "", "Good Bye", "never read"}, bot)

	if err := c.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "AdaBot: echo: hello\nGoodbye!\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if len(bot.histories) != 1 {
		t.Errorf("responder called %d times, want 1", len(bot.histories))
	}
}

func TestConsole_EOFAndInterruptAreClean(t *testing.T) {
	for _, tailErr := range []error{io.EOF, readline.ErrInterrupt} {
		c, _ := newTestConsole(nil, &fakeResponder{})
		c.in = &scriptReader{err: tailErr}
		if err := c.run(ctx); err != nil {
			t.Errorf("run with %v: %v", tailErr, err)
		}
	}

	c, _ := newTestConsole(nil, &fakeResponder{})
	c.in = &scriptReader{err: errors.New("tty gone")}
	if err := c.run(ctx); err == nil {
		t.Error("expected unexpected read errors to propagate")
	}
}

func TestConsole_HistoryIsBoundedAndSkipsFailures(t *testing.T) {
	bot := &fakeResponder{fail: map[string]bool{"broken": true}}
	c, out := newTestConsole([]string{"one", "two", "broken", "three", "four"}, bot)

	if err := c.run(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "can't reach my language model") {
		t.Errorf("failure not reported: %q", out.String())
	}

	// Window of 4 keeps two exchanges. The failed turn is never recorded.
	last := bot.histories[len(bot.histories)-1]
	want := []session.Turn{
		{Role: "user", Content: "two"},
		{Role: "assistant", Content: "echo: two"},
		{Role: "user", Content: "three"},
		{Role: "assistant", Content: "echo: three"},
	}
	if diff := cmp.Diff(want, last); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestConsole_Reset(t *testing.T) {
	bot := &fakeResponder{}
	c, _ := newTestConsole([]string{"one", resetCommand, "two"}, bot)

	if err := c.run(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(bot.histories[1]); n != 0 {
		t.Errorf("history after reset has %d turns", n)
	}
}

func TestEncryptProfileFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	if err := os.WriteFile(path, []byte("persona:\n  full_name: Ada Example\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	sealed, err := encryptProfileFile(path, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !profile.IsEnvelope(sealed) {
		t.Fatal("output is not an envelope")
	}

	encPath := filepath.Join(dir, "profile.yaml.enc")
	if err := os.WriteFile(encPath, sealed, 0o600); err != nil {
		t.Fatal(err)
	}
	doc, err := profile.Load(profile.Source{Path: encPath, Passphrase: "correct horse"})
	if err != nil {
		t.Fatalf("loading encrypted profile: %v", err)
	}
	if doc.Persona().FullName != "Ada Example" {
		t.Errorf("FullName = %q", doc.Persona().FullName)
	}

	if _, err := encryptProfileFile(encPath, "again"); err == nil {
		t.Error("expected error when encrypting an envelope twice")
	}
}

func TestEncryptProfileFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("- just\n- a list\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := encryptProfileFile(path, "pw"); err == nil {
		t.Error("expected error for a profile that is not a mapping")
	}
}

func TestNewLogger_FansOutToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "personabot.jsonl")
	var stderr bytes.Buffer

	logger, closer, err := newLogger(&stderr, config.LogConfig{Level: "debug", File: path})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("judge verdict", "decision", "ALLOW")
	if err := closer(); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(stderr.String(), "judge verdict") {
		t.Errorf("stderr missing record: %q", stderr.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"decision":"ALLOW"`) {
		t.Errorf("log file missing JSON record: %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError,
		"info": slog.LevelInfo, "": slog.LevelInfo, "verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRouter_MountsChatAndDecisions(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	gov := pipeline.New(pipeline.Deps{Document: profile.Empty()}, pipeline.Config{})
	h := newRouter(api.ChatDeps{Governor: gov}, api.AppDeps{Store: store, Token: "tok"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/decisions", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("/decisions without token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/decisions/stats", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/decisions/stats = %d, want 200", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"first":true}`))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "PersonaBot") {
		t.Errorf("/api/chat first = %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_ChatServesWithoutToken(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	gov := pipeline.New(pipeline.Deps{Document: profile.Empty()}, pipeline.Config{})
	h := newRouter(api.ChatDeps{Governor: gov}, api.AppDeps{Store: store})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"first":true}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/api/chat without token = %d, want 200", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/decisions", nil)
	req.Header.Set("Authorization", "Bearer ")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("/decisions with empty token = %d, want 401", w.Code)
	}
}
