package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// contentGenerator is the slice of *genai.Models the engine uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiEngine sends completions to the Gemini API.
type GeminiEngine struct {
	models contentGenerator
}

// NewGeminiEngine creates a Gemini engine authenticated with apiKey.
func NewGeminiEngine(ctx context.Context, apiKey string) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: api key is required", ProviderGemini)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiEngine{models: client.Models}, nil
}

func (e *GeminiEngine) Name() string { return ProviderGemini }

func (e *GeminiEngine) Chat(ctx context.Context, model string, messages []Message, opts Options) (string, error) {
	contents, system := toGeminiContents(messages)
	if len(contents) == 0 {
		return "", errors.New("gemini: no user or assistant messages")
	}

	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if opts.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if budget, ok := thinkingBudget(opts.ReasoningEffort); ok {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(budget)}
	}

	resp, err := e.models.GenerateContent(ctx, strings.TrimPrefix(model, "google/"), contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// toGeminiContents splits system messages into a single system instruction
// and maps assistant turns to the model role.
func toGeminiContents(messages []Message) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
}

func thinkingBudget(effort string) (int32, bool) {
	switch strings.ToLower(effort) {
	case "minimal":
		return 0, true
	case "low":
		return 512, true
	case "medium":
		return 2048, true
	case "high":
		return 8192, true
	default:
		return 0, false
	}
}
