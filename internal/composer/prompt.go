// Package composer builds the messages sent to the completion engine: the
// persona rules, the bounded history and one composite user turn carrying
// the selected profile sections.
package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/personabot/internal/engine"
	"github.com/kalambet/personabot/internal/session"
)

// DefaultMaxHistoryTokens is the history budget used when none is set.
const DefaultMaxHistoryTokens = 4000

// Composer assembles outbound prompts. It is immutable after New.
type Composer struct {
	system           string
	maxHistoryTokens int
}

// New creates a Composer for the named persona. If maxHistoryTokens <= 0,
// the default (4000) is used.
func New(botName, fullName string, capabilities []string, maxHistoryTokens int) *Composer {
	if maxHistoryTokens <= 0 {
		maxHistoryTokens = DefaultMaxHistoryTokens
	}
	return &Composer{
		system:           SystemPrompt(botName, fullName, capabilities),
		maxHistoryTokens: maxHistoryTokens,
	}
}

// System returns the persona rules text.
func (c *Composer) System() string { return c.system }

// SystemPrompt renders the persona rules. Capabilities are listed in the
// given order; an empty list renders as "(none)".
func SystemPrompt(botName, fullName string, capabilities []string) string {
	caps := strings.Join(capabilities, ", ")
	if caps == "" {
		caps = "(none)"
	}

	var sb strings.Builder
	if fullName != "" {
		fmt.Fprintf(&sb, "You are %s, an AI persona inspired by %s.\n", botName, fullName)
	} else {
		fmt.Fprintf(&sb, "You are %s, an AI persona.\n", botName)
	}
	sb.WriteString("RULES:\n")
	sb.WriteString("• Stay within the information provided in your profile.\n")
	fmt.Fprintf(&sb, "• Only claim capabilities explicitly listed: %s\n", caps)
	sb.WriteString("• If a user asks for actions you can't perform, say you can’t do that.\n")
	sb.WriteString("• If asked about a skill/preference not in your profile, say you don’t have that info.\n")
	fmt.Fprintf(&sb, "• Be concise, warm, and practical. No impersonation disclaimers; write as %s.\n", botName)
	sb.WriteString("• If asked to create or write code, or to help with either, refuse.\n")
	return sb.String()
}

// CompositeTurn wraps the selected profile context and the user message in
// a single user turn.
func CompositeTurn(context, message string) string {
	return "BACKGROUND (selected sections from the profile):\n" + context + "\n\nUSER MESSAGE:\n" + message
}

// Compose returns system prompt, history and the composite turn, in that
// order. When history exceeds the token budget the oldest turns are
// dropped first.
func (c *Composer) Compose(context string, history []session.Turn, message string) []engine.Message {
	history = c.fitHistory(history)

	msgs := make([]engine.Message, 0, len(history)+2)
	msgs = append(msgs, engine.Message{Role: engine.RoleSystem, Content: c.system})
	for _, t := range history {
		msgs = append(msgs, engine.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, engine.Message{Role: engine.RoleUser, Content: CompositeTurn(context, message)})
	return msgs
}

func (c *Composer) fitHistory(history []session.Turn) []session.Turn {
	remaining := c.maxHistoryTokens
	start := len(history)
	for start > 0 {
		tokens := EstimateTokens(history[start-1].Content)
		if tokens > remaining {
			break
		}
		remaining -= tokens
		start--
	}
	return history[start:]
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
