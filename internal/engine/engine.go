package engine

import (
	"context"
	"fmt"
	"io"
)

// Provider names accepted by New.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderGemini     = "gemini"
)

// Engine abstracts a completion backend. The persona's draft and the judge's
// verdict both go through it, usually with different models.
type Engine interface {
	// Chat sends messages to model and returns the assistant text.
	Chat(ctx context.Context, model string, messages []Message, opts Options) (string, error)

	// Name identifies the provider in logs and status output.
	Name() string
}

// Preparer is implemented by engines that need models provisioned before
// the first call.
type Preparer interface {
	Prepare(ctx context.Context, models []string, w io.Writer) error
}

// Config selects and configures a provider.
type Config struct {
	Provider     string
	BaseURL      string
	APIKey       string
	OllamaURL    string
	GeminiAPIKey string
}

// New builds the engine named by cfg.Provider. An empty provider means
// OpenRouter.
func New(ctx context.Context, cfg Config) (Engine, error) {
	switch cfg.Provider {
	case "", ProviderOpenRouter:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s: api key is required", ProviderOpenRouter)
		}
		return NewOpenRouterEngine(cfg.APIKey, cfg.BaseURL), nil
	case ProviderOllama:
		return NewOllamaEngine(cfg.OllamaURL), nil
	case ProviderGemini:
		return NewGeminiEngine(ctx, cfg.GeminiAPIKey)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// EnsureReady provisions models on engines that need it. Hosted providers
// are a no-op.
func EnsureReady(ctx context.Context, e Engine, models []string, w io.Writer) error {
	p, ok := e.(Preparer)
	if !ok {
		return nil
	}
	if err := p.Prepare(ctx, models, w); err != nil {
		return fmt.Errorf("preparing %s: %w", e.Name(), err)
	}
	return nil
}
