package ollama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotRunning means the Ollama server did not answer.
var ErrNotRunning = errors.New("ollama is not running, start it with: ollama serve")

// EnsureModels checks that the server is up and every model is present,
// pulling missing ones with progress written to w. The first model is then
// loaded with a trivial request so the first user turn does not pay for it.
func EnsureModels(ctx context.Context, c *Client, models []string, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return ErrNotRunning
	}

	seen := make(map[string]bool, len(models))
	for _, model := range models {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true

		if c.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		err := c.PullModel(ctx, model, func(p PullProgress) {
			if p.Total > 0 {
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, float64(p.Completed)/float64(p.Total)*100)
				return
			}
			fmt.Fprintf(w, "  %s\n", p.Status)
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}

	if len(models) == 0 || models[0] == "" {
		return nil
	}

	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := c.Chat(warmCtx, ChatRequest{
		Model:    models[0],
		Messages: []Message{{Role: "user", Content: "ping"}},
	}); err != nil {
		fmt.Fprintf(w, "model %s: warm-up failed (non-fatal): %v\n", models[0], err)
	}
	return nil
}
