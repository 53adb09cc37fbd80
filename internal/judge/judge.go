package judge

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/personabot/internal/engine"
	"github.com/kalambet/personabot/internal/profile"
)

const DefaultTimeout = 20 * time.Second

// Chatter is the completion call the judge needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, opts engine.Options) (string, error)
}

// Config controls the judge.
type Config struct {
	Model           string
	ReasoningEffort string
	Timeout         time.Duration
	Enabled         bool
	// StrictFallback disables the "ALLOW" token heuristic for output that
	// is not valid JSON.
	StrictFallback bool
}

// Judge reviews drafts before they reach the user. It holds no mutable
// state and is safe for concurrent use.
type Judge struct {
	client  Chatter
	cfg     Config
	botName string
	caps    []string
	lexicon profile.Lexicon
	policy  profile.Policy
}

// New creates a Judge for the persona described by doc.
func New(client Chatter, cfg Config, botName string, doc *profile.Document) *Judge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Judge{
		client:  client,
		cfg:     cfg,
		botName: botName,
		caps:    doc.Capabilities(),
		lexicon: profile.BuildLexicon(doc),
		policy:  doc.Policy(),
	}
}

// Enabled reports whether drafts are actually judged.
func (j *Judge) Enabled() bool { return j.cfg.Enabled }

// Lexicon returns the lexicon the judge is conditioned on.
func (j *Judge) Lexicon() profile.Lexicon { return j.lexicon }

// Evaluate classifies the draft. It never returns an error: call failures
// become ERROR verdicts, which release the draft.
func (j *Judge) Evaluate(ctx context.Context, userText, draft string) (Verdict, Outcome) {
	if !j.cfg.Enabled {
		return Verdict{Decision: Allow, Reason: "judge disabled"}, Skipped
	}

	messages, err := BuildPrompt(j.botName, j.caps, j.lexicon, userText, draft)
	if err != nil {
		return Verdict{Decision: Error, Reason: "judge_error: " + err.Error()}, CallFailed
	}

	ctx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
	defer cancel()

	raw, err := j.client.Chat(ctx, j.cfg.Model, messages, engine.Options{
		ReasoningEffort: j.cfg.ReasoningEffort,
		JSON:            true,
	})
	if err != nil {
		slog.Warn("judge call failed", "error", err)
		return Verdict{Decision: Error, Reason: "judge_error: " + err.Error()}, CallFailed
	}

	res := ParseVerdict(raw, j.cfg.StrictFallback)
	if res.Outcome != Parsed {
		slog.Warn("judge output not structured", "outcome", res.Outcome.String(), "decision", res.Verdict.Decision)
	}
	return FillSuggestion(res.Verdict, j.policy), res.Outcome
}
