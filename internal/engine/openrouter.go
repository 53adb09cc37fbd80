package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kalambet/personabot/internal/proxy"
)

// OpenRouterEngine sends completions to any OpenAI-compatible endpoint.
type OpenRouterEngine struct {
	client *proxy.Client
}

// NewOpenRouterEngine creates an engine for baseURL, or OpenRouter when
// baseURL is empty.
func NewOpenRouterEngine(apiKey, baseURL string) *OpenRouterEngine {
	return &OpenRouterEngine{client: proxy.NewClientWithBaseURL(apiKey, baseURL)}
}

func (e *OpenRouterEngine) Name() string { return ProviderOpenRouter }

func (e *OpenRouterEngine) Chat(ctx context.Context, model string, messages []Message, opts Options) (string, error) {
	req := proxy.ChatRequest{
		Model:           model,
		Messages:        make([]proxy.Message, len(messages)),
		ReasoningEffort: opts.ReasoningEffort,
	}
	for i, m := range messages {
		req.Messages[i] = proxy.Message{Role: m.Role, Content: m.Content}
	}
	if opts.JSON {
		req.ResponseFormat = &proxy.ResponseFormat{Type: "json_object"}
	}
	return e.client.Complete(ctx, req)
}

// Prepare checks that the configured models are offered upstream. A model
// list that cannot be fetched is only logged, since some OpenAI-compatible
// endpoints do not serve /models.
func (e *OpenRouterEngine) Prepare(ctx context.Context, models []string, w io.Writer) error {
	available, err := e.client.ListModels(ctx)
	if err != nil {
		slog.Warn("could not list upstream models", "error", err)
		return nil
	}
	offered := make(map[string]bool, len(available))
	for _, m := range available {
		offered[m.ID] = true
	}
	for _, m := range models {
		if m != "" && !offered[m] {
			return fmt.Errorf("model %q is not offered by the upstream", m)
		}
	}
	fmt.Fprintf(w, "%d model(s) available upstream\n", len(available))
	return nil
}
