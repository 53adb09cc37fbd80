package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/zalando/go-keyring"
)

// KeyringService is the service name under which secrets are stored in the
// OS keyring.
const KeyringService = "personabot"

const apiTokenAccount = "api_token"

// APITokenEnv overrides the stored management API token.
const APITokenEnv = "PERSONABOT_API_TOKEN"

// ErrSecretNotFound is returned by a SecretStore for an absent secret.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore abstracts the OS keyring for testing.
type SecretStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
}

// Keyring stores secrets in the OS keyring (Keychain on macOS, Secret
// Service on Linux, Credential Manager on Windows).
type Keyring struct{}

func (Keyring) Get(account string) (string, error) {
	v, err := keyring.Get(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrSecretNotFound
	}
	return v, err
}

func (Keyring) Set(account, value string) error {
	return keyring.Set(KeyringService, account, value)
}

// FileSecrets keeps secrets in a JSON file readable only by the owner. It
// backs hosts without a keyring service, such as headless Linux.
type FileSecrets struct {
	Path string
}

var fileSecretsMu sync.Mutex

func (f FileSecrets) read() (map[string]string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (f FileSecrets) Get(account string) (string, error) {
	fileSecretsMu.Lock()
	defer fileSecretsMu.Unlock()

	secrets, err := f.read()
	if err != nil {
		return "", err
	}
	v, ok := secrets[account]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func (f FileSecrets) Set(account, value string) error {
	fileSecretsMu.Lock()
	defer fileSecretsMu.Unlock()

	secrets, err := f.read()
	if err != nil {
		return err
	}
	secrets[account] = value

	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, out, 0o600)
}

// SecretsFilePath is where FileSecrets lives by default.
func SecretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

// FallbackSecrets reads and writes Primary, switching to Fallback when
// Primary is unavailable. A secret missing from an available Primary is
// still looked up in Fallback, so values written during an outage stay
// visible.
type FallbackSecrets struct {
	Primary  SecretStore
	Fallback SecretStore
}

func (f FallbackSecrets) Get(account string) (string, error) {
	v, err := f.Primary.Get(account)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrSecretNotFound) {
		slog.Debug("keyring unavailable, using secrets file", "error", err)
	}
	return f.Fallback.Get(account)
}

func (f FallbackSecrets) Set(account, value string) error {
	err := f.Primary.Set(account, value)
	if err == nil {
		return nil
	}
	slog.Warn("keyring unavailable, storing secret in file", "account", account, "error", err)
	return f.Fallback.Set(account, value)
}

// DefaultSecrets is the OS keyring backed by the secrets file.
func DefaultSecrets() SecretStore {
	return FallbackSecrets{Primary: Keyring{}, Fallback: FileSecrets{Path: SecretsFilePath()}}
}

// GetAPIToken returns the bearer token protecting the management API:
// $PERSONABOT_API_TOKEN when set, else the stored token, creating and
// storing a random one on first use.
func GetAPIToken(s SecretStore) (string, error) {
	if tok := os.Getenv(APITokenEnv); tok != "" {
		return tok, nil
	}
	tok, err := s.Get(apiTokenAccount)
	if err == nil && tok != "" {
		return tok, nil
	}
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return "", fmt.Errorf("reading API token: %w", err)
	}

	tok = uuid.New().String()
	if err := s.Set(apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

// applySecrets fills secret keys that neither the environment nor the
// backend provided. A missing or unavailable keyring is not an error.
func applySecrets(cfg *Config, secrets SecretStore) {
	if secrets == nil {
		return
	}
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		v, err := secrets.Get(s.key)
		if err != nil || v == "" {
			continue
		}
		s.apply(cfg, v)
	}
}
