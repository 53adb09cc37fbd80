// Package session keeps the bounded conversation history of one chat.
package session

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// DefaultWindow is the number of history items forwarded to the model:
// six user/assistant exchanges.
const DefaultWindow = 12

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one history item.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Sanitize keeps only well-formed history items: objects with a user or
// assistant role and non-empty string content. Everything else is dropped
// silently, since history comes straight from the client.
func Sanitize(raw []json.RawMessage) []Turn {
	out := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		var role, content string
		if err := json.Unmarshal(obj["role"], &role); err != nil {
			continue
		}
		if err := json.Unmarshal(obj["content"], &content); err != nil {
			continue
		}
		if role != RoleUser && role != RoleAssistant {
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		out = append(out, Turn{Role: role, Content: content})
	}
	return out
}

// Recent returns the last n turns. A non-positive n selects DefaultWindow.
func Recent(turns []Turn, n int) []Turn {
	if n <= 0 {
		n = DefaultWindow
	}
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// Session is the rolling history of a single interactive conversation.
// It is owned by exactly one loop and is not safe for concurrent use.
type Session struct {
	ID     string
	window int
	turns  []Turn
}

// New creates a Session that retains at most window turns.
func New(window int) *Session {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Session{ID: uuid.New().String(), window: window}
}

// Append records one exchange and drops turns that fell out of the window.
func (s *Session) Append(user, assistant string) {
	s.turns = append(s.turns,
		Turn{Role: RoleUser, Content: user},
		Turn{Role: RoleAssistant, Content: assistant},
	)
	if len(s.turns) > s.window {
		s.turns = append([]Turn(nil), s.turns[len(s.turns)-s.window:]...)
	}
}

// History returns a copy of the retained turns, oldest first.
func (s *Session) History() []Turn {
	return append([]Turn(nil), s.turns...)
}

// Len returns the number of retained turns.
func (s *Session) Len() int { return len(s.turns) }

// Reset forgets the conversation.
func (s *Session) Reset() { s.turns = nil }
