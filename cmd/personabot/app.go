package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kalambet/personabot/internal/config"
	"github.com/kalambet/personabot/internal/engine"
	"github.com/kalambet/personabot/internal/judge"
	"github.com/kalambet/personabot/internal/pipeline"
	"github.com/kalambet/personabot/internal/profile"
	"github.com/kalambet/personabot/internal/storage"
)

// app is the wired pipeline shared by serve, chat and ask.
type app struct {
	cfg      config.Config
	doc      *profile.Document
	engine   engine.Engine
	judge    *judge.Judge
	store    *storage.Store // nil when the decision log is unavailable
	governor *pipeline.Governor
	botName  string
}

func profileSource(cfg config.Config) profile.Source {
	return profile.Source{
		Path:       cfg.Profile.Path,
		Base64:     cfg.Profile.Base64,
		Passphrase: cfg.Profile.Passphrase,
	}
}

// buildApp loads the profile, connects the completion provider and opens
// the decision log. A decision log that cannot be opened is logged and
// skipped unless requireStore is set.
func buildApp(ctx context.Context, cfg config.Config, requireStore bool) (*app, error) {
	doc := profile.LoadOrEmpty(profileSource(cfg))
	if doc.IsEmpty() {
		slog.Warn("running with an empty profile; every answer will be refused or generic")
	}

	eng, err := engine.New(ctx, engine.Config{
		Provider:     cfg.Proxy.Provider,
		BaseURL:      cfg.Proxy.BaseURL,
		APIKey:       cfg.Proxy.APIKey,
		OllamaURL:    cfg.Ollama.BaseURL,
		GeminiAPIKey: cfg.Gemini.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating completion engine: %w", err)
	}
	models := []string{cfg.Proxy.ChatModel}
	if cfg.Governance.JudgeEnabled {
		models = append(models, cfg.Proxy.JudgeModel)
	}
	if err := engine.EnsureReady(ctx, eng, models, os.Stderr); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, doc: doc, engine: eng}

	store, err := storage.Open(cfg.Storage.DataDir)
	switch {
	case err == nil:
		a.store = store
	case requireStore:
		return nil, fmt.Errorf("opening storage: %w", err)
	default:
		slog.Warn("decision log unavailable", "error", err)
	}

	a.botName = pipeline.BotName(doc, cfg.Persona.Name)
	a.judge = judge.New(eng, judge.Config{
		Model:           cfg.Proxy.JudgeModel,
		ReasoningEffort: cfg.Proxy.ReasoningEffort,
		Timeout:         cfg.Governance.JudgeTimeout,
		Enabled:         cfg.Governance.JudgeEnabled,
		StrictFallback:  cfg.Judge.StrictFallback,
	}, a.botName, doc)

	deps := pipeline.Deps{Document: doc, Engine: eng, Judge: a.judge}
	if a.store != nil {
		deps.Recorder = a.store
	}
	a.governor = pipeline.New(deps, pipeline.Config{
		BotName:         a.botName,
		ChatModel:       cfg.Proxy.ChatModel,
		ReasoningEffort: cfg.Proxy.ReasoningEffort,
		HistoryWindow:   cfg.Governance.HistoryWindow,
		HistoryTokens:   cfg.Governance.HistoryTokens,
		RequestTimeout:  cfg.Governance.RequestTimeout,
		GuardEnabled:    cfg.Governance.GuardEnabled,
	})

	slog.Info("pipeline ready",
		"bot", a.botName,
		"provider", eng.Name(),
		"chat_model", cfg.Proxy.ChatModel,
		"judge_model", cfg.Proxy.JudgeModel,
		"judge", cfg.Governance.JudgeEnabled,
		"guard", cfg.Governance.GuardEnabled,
	)
	return a, nil
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// loadConfigAndLogging is the common prologue of commands that run the
// pipeline in-process.
func loadConfigAndLogging() (config.Config, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, closeLog, nil
}
