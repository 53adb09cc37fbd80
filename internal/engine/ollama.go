package engine

import (
	"context"
	"io"

	"github.com/kalambet/personabot/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
// Reasoning effort has no Ollama equivalent and is dropped.
type OllamaEngine struct {
	client *ollama.Client
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

func (e *OllamaEngine) Name() string { return ProviderOllama }

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, opts Options) (string, error) {
	req := ollama.ChatRequest{
		Model:    model,
		Messages: make([]ollama.Message, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	if opts.JSON {
		req.Format = "json"
	}
	return e.client.Chat(ctx, req)
}

// Prepare pulls any missing models and warms up the first one.
func (e *OllamaEngine) Prepare(ctx context.Context, models []string, w io.Writer) error {
	return ollama.EnsureModels(ctx, e.client, models, w)
}
