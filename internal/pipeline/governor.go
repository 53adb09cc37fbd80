// Package pipeline runs the response-governance pipeline: crisis check,
// pre-call guard, context selection, completion, post-call judge and
// response assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/personabot/internal/composer"
	"github.com/kalambet/personabot/internal/engine"
	"github.com/kalambet/personabot/internal/guard"
	"github.com/kalambet/personabot/internal/judge"
	"github.com/kalambet/personabot/internal/profile"
	"github.com/kalambet/personabot/internal/selector"
	"github.com/kalambet/personabot/internal/session"
	"github.com/kalambet/personabot/internal/storage"
)

const DefaultRequestTimeout = 90 * time.Second

// ErrUpstream is returned when the completion call failed and there is no
// draft to fall back on.
var ErrUpstream = errors.New("upstream completion failed")

// Completer produces the persona's draft reply.
type Completer interface {
	Chat(ctx context.Context, model string, messages []engine.Message, opts engine.Options) (string, error)
}

// Reviewer classifies a draft. *judge.Judge implements it.
type Reviewer interface {
	Evaluate(ctx context.Context, userText, draft string) (judge.Verdict, judge.Outcome)
}

// Recorder persists decisions. *storage.Store implements it.
type Recorder interface {
	SaveDecision(r storage.DecisionRecord) (storage.DecisionRecord, error)
}

// Config holds the pipeline settings.
type Config struct {
	BotName         string
	ChatModel       string
	ReasoningEffort string
	HistoryWindow   int
	HistoryTokens   int
	RequestTimeout  time.Duration
	GuardEnabled    bool
}

// Deps are the collaborators of a Governor. Document and Engine are
// required; Guard, Selector and Composer are derived from the document
// when nil. A nil Judge releases every draft, and a nil Recorder skips
// the audit log.
type Deps struct {
	Document *profile.Document
	Engine   Completer
	Judge    Reviewer
	Guard    *guard.Guard
	Selector *selector.Selector
	Composer *composer.Composer
	Recorder Recorder
}

// Result is the outcome of one governed turn.
type Result struct {
	Reply    string
	Decision judge.Decision
	Reason   string
	Missing  []string
	Draft    string
	Stage    string
	Duration time.Duration
}

// Governor decides what, if anything, reaches the user. It is immutable
// after construction and safe for concurrent use.
type Governor struct {
	deps Deps
	cfg  Config
}

// New creates a Governor.
func New(deps Deps, cfg Config) *Governor {
	if deps.Document == nil {
		deps.Document = profile.Empty()
	}
	if cfg.BotName == "" {
		cfg.BotName = BotName(deps.Document, "")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = session.DefaultWindow
	}
	if deps.Guard == nil {
		deps.Guard = guard.New(deps.Document.Policy(), cfg.GuardEnabled)
	}
	if deps.Selector == nil {
		deps.Selector = selector.New()
	}
	if deps.Composer == nil {
		p := deps.Document.Persona()
		deps.Composer = composer.New(cfg.BotName, p.FullName, deps.Document.Capabilities(), cfg.HistoryTokens)
	}
	return &Governor{deps: deps, cfg: cfg}
}

// BotName returns the configured name, the profile's bot_name, or
// "PersonaBot".
func BotName(doc *profile.Document, configured string) string {
	if configured != "" {
		return configured
	}
	if doc != nil {
		if name := doc.Persona().BotName; name != "" {
			return name
		}
	}
	return "PersonaBot"
}

// Welcome returns the greeting sent for a conversation's first request.
func (g *Governor) Welcome() Result {
	return Result{
		Reply: fmt.Sprintf("Hello! I'm %s. Feel free to ask anything about me, my life, or my work experience.",
			g.cfg.BotName),
		Decision: judge.Allow,
		Stage:    storage.StageWelcome,
	}
}

// Respond runs one message through the pipeline. Only a completion failure
// without a usable draft returns an error, wrapping ErrUpstream; the Result
// then carries decision ERROR.
func (g *Governor) Respond(ctx context.Context, message string, history []session.Turn) (Result, error) {
	start := time.Now()
	res, err := g.respond(ctx, message, history)
	res.Duration = time.Since(start)

	g.record(ctx, message, res)
	slog.Debug("governed turn",
		"stage", res.Stage,
		"decision", res.Decision,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, err
}

func (g *Governor) respond(ctx context.Context, message string, history []session.Turn) (Result, error) {
	if guard.DetectCrisis(message) {
		return Result{
			Reply:    g.deps.Document.CrisisMessage(),
			Decision: judge.Crisis,
			Stage:    storage.StageCrisis,
		}, nil
	}

	if v := g.deps.Guard.Check(message); v.Blocked {
		return Result{
			Reply:    v.Message,
			Decision: guardDecision(v.Refusal),
			Reason:   "guard: " + v.Rule,
			Stage:    storage.StageGuard,
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	background, err := g.deps.Selector.Select(message, g.deps.Document)
	if err != nil {
		slog.Warn("context selection failed, continuing without background", "error", err)
		background = "[]"
	}

	msgs := g.deps.Composer.Compose(background, session.Recent(history, g.cfg.HistoryWindow), message)
	draft, err := g.deps.Engine.Chat(ctx, g.cfg.ChatModel, msgs, engine.Options{ReasoningEffort: g.cfg.ReasoningEffort})
	if err == nil && strings.TrimSpace(draft) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		slog.Warn("completion failed", "error", err)
		return Result{
			Decision: judge.Error,
			Reason:   "completion_error: " + err.Error(),
			Stage:    storage.StageEngine,
		}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	verdict := judge.Verdict{Decision: judge.Allow, Reason: "judge disabled"}
	if g.deps.Judge != nil {
		verdict, _ = g.deps.Judge.Evaluate(ctx, message, draft)
		verdict = judge.FillSuggestion(verdict, g.deps.Document.Policy())
	}

	return Result{
		Reply:    Assemble(verdict.Decision, draft, verdict.SuggestReply),
		Decision: verdict.Decision,
		Reason:   verdict.Reason,
		Missing:  verdict.Missing,
		Draft:    draft,
		Stage:    storage.StageJudge,
	}, nil
}

// guardDecision maps a refusal kind to the decision code reported for a
// guard block.
func guardDecision(refusal string) judge.Decision {
	switch refusal {
	case profile.RefusalCodeHelp:
		return judge.ProgrammingHelp
	case profile.RefusalUnknownCapability:
		return judge.UnknownCapability
	case profile.RefusalUnknownPreference:
		return judge.UnknownPreference
	default:
		return judge.OutOfScope
	}
}

type sessionKey struct{}

// WithSession tags ctx with the conversation id used in the decision log.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func sessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// record writes res to the decision log. Failures are logged and never
// change the reply. The text of a crisis turn is not kept.
func (g *Governor) record(ctx context.Context, message string, res Result) {
	if g.deps.Recorder == nil {
		return
	}
	if res.Stage == storage.StageCrisis {
		message = ""
	}
	_, err := g.deps.Recorder.SaveDecision(storage.DecisionRecord{
		SessionID:   sessionFrom(ctx),
		Stage:       res.Stage,
		Decision:    string(res.Decision),
		Reason:      res.Reason,
		Missing:     res.Missing,
		UserMessage: message,
		Draft:       res.Draft,
		Reply:       res.Reply,
		DurationMS:  res.Duration.Milliseconds(),
	})
	if err != nil {
		slog.Warn("recording decision failed", "error", err)
	}
}

// RecordWelcome logs a welcome reply.
func (g *Governor) RecordWelcome(ctx context.Context, res Result) {
	g.record(ctx, "", res)
}
