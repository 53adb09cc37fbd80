package config

import (
	"fmt"
	"strings"
	"time"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	Type   string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll returns every key with its effective value. Secrets are masked.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		value := formatValue(s.extract(cfg))
		if s.secret {
			value = maskSecret(value)
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			Type:   s.typ.String(),
			EnvVar: s.env,
			Value:  value,
			Secret: s.secret,
		})
	}
	return result
}

func formatValue(v any) string {
	if d, ok := v.(time.Duration); ok {
		return d.String()
	}
	return fmt.Sprintf("%v", v)
}

func maskSecret(v string) string {
	if v == "" {
		return "(not set)"
	}
	return "(set)"
}

// SetKey validates value and persists it: plain keys to the platform
// backend, secrets to the OS keyring.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), DefaultSecrets(), key, value)
}

func setKeyWith(b ConfigBackend, secrets SecretStore, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
	}

	if s.secret {
		if err := secrets.Set(s.key, value); err != nil {
			return fmt.Errorf("storing %s in keyring: %w", key, err)
		}
		return nil
	}

	v, err := parseValue(s.typ, value)
	if err != nil {
		return fmt.Errorf("invalid %s value for %s: %w", s.typ, key, err)
	}
	switch s.typ {
	case kInt:
		return b.SetInt(key, v.(int))
	case kList:
		return b.SetString(key, strings.Join(v.([]string), ","))
	case kDuration:
		return b.SetString(key, v.(time.Duration).String())
	case kBool:
		return b.SetString(key, fmt.Sprintf("%t", v.(bool)))
	default:
		return b.SetString(key, value)
	}
}

// IsSecret reports whether key is stored in the OS keyring.
func IsSecret(key string) bool {
	s, ok := lookupSpec(key)
	return ok && s.secret
}

// ValidKeys returns every settable key name.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
