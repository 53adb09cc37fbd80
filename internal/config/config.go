// Package config resolves personabot settings from the platform backend,
// PERSONABOT_* environment variables and the OS keyring.
package config

import (
	"time"
)

type Config struct {
	Server     ServerConfig
	Proxy      ProxyConfig
	Ollama     OllamaConfig
	Gemini     GeminiConfig
	Governance GovernanceConfig
	Judge      JudgeConfig
	Persona    PersonaConfig
	Profile    ProfileConfig
	Storage    StorageConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

// ProxyConfig selects the completion provider and its models.
type ProxyConfig struct {
	Provider        string
	BaseURL         string
	APIKey          string
	ChatModel       string
	JudgeModel      string
	ReasoningEffort string
}

type OllamaConfig struct {
	BaseURL string
}

type GeminiConfig struct {
	APIKey string
}

type GovernanceConfig struct {
	GuardEnabled   bool
	JudgeEnabled   bool
	HistoryWindow  int
	HistoryTokens  int
	RequestTimeout time.Duration
	JudgeTimeout   time.Duration
}

type JudgeConfig struct {
	// StrictFallback disables the "contains ALLOW" heuristic for
	// unparsable judge output.
	StrictFallback bool
}

type PersonaConfig struct {
	Name string
}

type ProfileConfig struct {
	Path       string
	Base64     string
	Passphrase string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
	File  string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Proxy: ProxyConfig{
			Provider:        "openrouter",
			ChatModel:       "openai/gpt-5-mini",
			JudgeModel:      "openai/gpt-5-nano",
			ReasoningEffort: "low",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		Governance: GovernanceConfig{
			GuardEnabled:   true,
			JudgeEnabled:   true,
			HistoryWindow:  12,
			HistoryTokens:  4000,
			RequestTimeout: 90 * time.Second,
			JudgeTimeout:   20 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in increasing priority: built-in defaults, the
// platform backend, environment variables (after .env and .env.local are
// loaded without overriding the real environment), and finally the OS
// keyring for secrets that are still empty.
//
// On macOS the backend is UserDefaults (domain: com.personabot.app). On
// Linux it is a JSON file at $XDG_CONFIG_HOME/personabot/config.json.
func Load() (Config, error) {
	loadDotEnv()
	return loadWith(newPlatformBackend(), DefaultSecrets())
}

func loadWith(b ConfigBackend, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	return cfg, nil
}
