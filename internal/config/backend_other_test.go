//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personabot", "config.json")

	b := newFileBackend(path)
	if err := b.SetInt("server.port", 9100); err != nil {
		t.Fatal(err)
	}
	if err := b.SetString("proxy.provider", "ollama"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	reloaded := newFileBackend(path)
	if v, ok, err := reloaded.GetInt("server.port"); err != nil || !ok || v != 9100 {
		t.Errorf("GetInt = %d, %v, %v", v, ok, err)
	}
	if v, ok, _ := reloaded.GetString("proxy.provider"); !ok || v != "ollama" {
		t.Errorf("GetString = %q, %v", v, ok)
	}

	if err := reloaded.Delete("proxy.provider"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := newFileBackend(path).GetString("proxy.provider"); ok {
		t.Error("deleted key still present")
	}
}

func TestFileBackend_HandWrittenValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "server.allowed_origins": ["https://a.example", "https://b.example"],
  "governance.guard_enabled": false,
  "server.port": "8181",
  "governance.history_window": 2.5
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	b := newFileBackend(path)
	if v, _, _ := b.GetString("server.allowed_origins"); v != "https://a.example,https://b.example" {
		t.Errorf("list = %q", v)
	}
	if v, _, _ := b.GetString("governance.guard_enabled"); v != "false" {
		t.Errorf("bool = %q", v)
	}
	if v, _, err := b.GetInt("server.port"); err != nil || v != 8181 {
		t.Errorf("string int = %d, %v", v, err)
	}
	if _, _, err := b.GetInt("governance.history_window"); err == nil {
		t.Error("expected error for fractional int")
	}
}

func TestFileBackend_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{oops"), 0o600); err != nil {
		t.Fatal(err)
	}

	b := newFileBackend(path)
	if _, ok, _ := b.GetString("server.port"); ok {
		t.Error("corrupt file should yield no values")
	}
	if err := b.SetString("log.level", "debug"); err != nil {
		t.Errorf("writing after corrupt load: %v", err)
	}
}
