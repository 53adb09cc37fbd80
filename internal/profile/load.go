package profile

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Source says where the profile comes from. Base64 takes precedence over
// Path. Passphrase is only consulted for encrypted documents.
type Source struct {
	Path       string
	Base64     string
	Passphrase string
}

// ErrNoSource is returned when neither a path nor inline content is set.
var ErrNoSource = errors.New("no profile source configured")

// Load reads, decrypts if needed, and parses the profile.
func Load(src Source) (*Document, error) {
	data, origin, err := readSource(src)
	if err != nil {
		return nil, err
	}

	if IsEnvelope(data) {
		data, err = Decrypt(data, src.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", origin, err)
		}
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", origin, err)
	}
	return doc, nil
}

// LoadOrEmpty is Load that never fails: any error is logged and an empty
// profile is returned so the bot can still start.
func LoadOrEmpty(src Source) *Document {
	doc, err := Load(src)
	if err != nil {
		slog.Warn("profile unavailable, starting with an empty profile", "error", err)
		return Empty()
	}
	slog.Debug("profile loaded", "sections", len(doc.raw))
	return doc
}

func readSource(src Source) ([]byte, string, error) {
	if b64 := strings.TrimSpace(src.Base64); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, "", fmt.Errorf("decoding base64 profile: %w", err)
		}
		return data, "inline profile", nil
	}
	if src.Path == "" {
		return nil, "", ErrNoSource
	}
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, "", fmt.Errorf("reading profile: %w", err)
	}
	return data, src.Path, nil
}
