package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
	kList
)

func (t keyType) String() string {
	switch t {
	case kInt:
		return "int"
	case kBool:
		return "bool"
	case kDuration:
		return "duration"
	case kList:
		return "list"
	default:
		return "string"
	}
}

type keySpec struct {
	key    string
	typ    keyType
	env    string
	altEnv []string // conventional provider variables, consulted after env
	secret bool
	apply  func(cfg *Config, v any)
	// extract returns the value as stored: lists are joined with commas so
	// every key prints and compares the same way.
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PERSONABOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.allowed_origins", typ: kList, env: "PERSONABOT_SERVER_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Server.AllowedOrigins, ",") },
	},
	{
		key: "proxy.provider", typ: kString, env: "PERSONABOT_PROXY_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Proxy.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.Provider },
	},
	{
		key: "proxy.base_url", typ: kString, env: "PERSONABOT_PROXY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.BaseURL },
	},
	{
		key: "proxy.api_key", typ: kString, env: "PERSONABOT_PROXY_API_KEY",
		altEnv: []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY"},
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Proxy.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.APIKey },
	},
	{
		key: "proxy.chat_model", typ: kString, env: "PERSONABOT_PROXY_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.ChatModel },
	},
	{
		key: "proxy.judge_model", typ: kString, env: "PERSONABOT_PROXY_JUDGE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.JudgeModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.JudgeModel },
	},
	{
		key: "proxy.reasoning_effort", typ: kString, env: "PERSONABOT_PROXY_REASONING_EFFORT",
		apply:   func(cfg *Config, v any) { cfg.Proxy.ReasoningEffort = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.ReasoningEffort },
	},
	{
		key: "ollama.base_url", typ: kString, env: "PERSONABOT_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "gemini.api_key", typ: kString, env: "PERSONABOT_GEMINI_API_KEY",
		altEnv: []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "governance.guard_enabled", typ: kBool, env: "PERSONABOT_GOVERNANCE_GUARD_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Governance.GuardEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Governance.GuardEnabled },
	},
	{
		key: "governance.judge_enabled", typ: kBool, env: "PERSONABOT_GOVERNANCE_JUDGE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Governance.JudgeEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Governance.JudgeEnabled },
	},
	{
		key: "governance.history_window", typ: kInt, env: "PERSONABOT_GOVERNANCE_HISTORY_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Governance.HistoryWindow = v.(int) },
		extract: func(cfg Config) any { return cfg.Governance.HistoryWindow },
	},
	{
		key: "governance.history_tokens", typ: kInt, env: "PERSONABOT_GOVERNANCE_HISTORY_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Governance.HistoryTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Governance.HistoryTokens },
	},
	{
		key: "governance.request_timeout", typ: kDuration, env: "PERSONABOT_GOVERNANCE_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Governance.RequestTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Governance.RequestTimeout },
	},
	{
		key: "governance.judge_timeout", typ: kDuration, env: "PERSONABOT_GOVERNANCE_JUDGE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Governance.JudgeTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Governance.JudgeTimeout },
	},
	{
		key: "judge.strict_fallback", typ: kBool, env: "PERSONABOT_JUDGE_STRICT_FALLBACK",
		apply:   func(cfg *Config, v any) { cfg.Judge.StrictFallback = v.(bool) },
		extract: func(cfg Config) any { return cfg.Judge.StrictFallback },
	},
	{
		key: "persona.name", typ: kString, env: "PERSONABOT_PERSONA_NAME",
		apply:   func(cfg *Config, v any) { cfg.Persona.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Persona.Name },
	},
	{
		key: "profile.path", typ: kString, env: "PERSONABOT_PROFILE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Profile.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.Path },
	},
	{
		key: "profile.base64", typ: kString, env: "PERSONABOT_PROFILE_BASE64",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Profile.Base64 = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.Base64 },
	},
	{
		key: "profile.passphrase", typ: kString, env: "PERSONABOT_PROFILE_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Profile.Passphrase = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.Passphrase },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PERSONABOT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "PERSONABOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "PERSONABOT_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw into the Go type of t.
func parseValue(t keyType, raw string) (any, error) {
	switch t {
	case kInt:
		return strconv.Atoi(strings.TrimSpace(raw))
	case kBool:
		return strconv.ParseBool(strings.TrimSpace(raw))
	case kDuration:
		return time.ParseDuration(strings.TrimSpace(raw))
	case kList:
		return splitList(raw), nil
	default:
		return raw, nil
	}
}

func splitList(raw string) []string {
	out := []string{}
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			warnf("could not parse %s from config key %s=%q: %v. Using default value.", s.typ, s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := lookupEnv(s)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			warnf("could not parse %s from env var %s=%q: %v. Using default value.", s.typ, name, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

func lookupEnv(s keySpec) (string, string) {
	for _, name := range append([]string{s.env}, s.altEnv...) {
		if name == "" {
			continue
		}
		if raw := os.Getenv(name); raw != "" {
			return name, raw
		}
	}
	return "", ""
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[WARN] "+format+"\n", args...)
}
