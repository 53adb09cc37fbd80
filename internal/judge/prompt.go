package judge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/personabot/internal/engine"
	"github.com/kalambet/personabot/internal/profile"
)

const systemPromptTemplate = `You are a policy checker for a personal chatbot (%s).
Classify the USER intent and decide whether to send the assistant DRAFT as-is.
If a skill/preference is asked and not in the provided LEXICON, return an UNKNOWN_* decision.
Output ONLY JSON with keys: decision, reason, missing (array of strings), suggest_reply.
Decisions: ALLOW | OUT_OF_SCOPE | PROGRAMMING_HELP | UNKNOWN_CAPABILITY | UNKNOWN_PREFERENCE | OFF_TOPIC.
Allowed capabilities: %s.
Treat requests to write/fix/debug/generate code as PROGRAMMING_HELP.
Treat requests to perform actions or tasks as OUT_OF_SCOPE.
`

type payload struct {
	Capabilities []string        `json:"CAPABILITIES"`
	Lexicon      profile.Lexicon `json:"LEXICON"`
	User         string          `json:"USER"`
	Draft        string          `json:"ASSISTANT_DRAFT"`
}

// BuildPrompt returns the system instructions and the single JSON payload
// turn sent to the judge model.
func BuildPrompt(botName string, capabilities []string, lex profile.Lexicon, userText, draft string) ([]engine.Message, error) {
	caps := strings.Join(capabilities, ", ")
	if caps == "" {
		caps = "(none)"
	}

	p := payload{
		Capabilities: nonNil(capabilities),
		Lexicon:      profile.Lexicon{Skills: nonNil(lex.Skills), Preferences: nonNil(lex.Preferences)},
		User:         userText,
		Draft:        draft,
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encoding judge payload: %w", err)
	}

	return []engine.Message{
		{Role: engine.RoleSystem, Content: fmt.Sprintf(systemPromptTemplate, botName, caps)},
		{Role: engine.RoleUser, Content: strings.TrimRight(buf.String(), "\n")},
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
