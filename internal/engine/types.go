package engine

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a single completion call. Providers ignore hints they do
// not support.
type Options struct {
	// ReasoningEffort is a hint such as "minimal", "low", "medium" or "high".
	ReasoningEffort string
	// JSON requests a single JSON object as output.
	JSON bool
}
