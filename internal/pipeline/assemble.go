package pipeline

import "github.com/kalambet/personabot/internal/judge"

// FallbackReply is sent when a draft is blocked and nobody suggested a
// replacement.
const FallbackReply = "I can't answer that based on my profile."

// Assemble picks the final reply. ALLOW and ERROR release the draft; any
// other decision uses suggest, then FallbackReply.
func Assemble(decision judge.Decision, draft, suggest string) string {
	if decision.Releases() {
		return draft
	}
	if suggest != "" {
		return suggest
	}
	return FallbackReply
}
