// Package secrets resolves the provider API key without requiring it in
// plain-text configuration. Resolution order: explicit config value,
// environment variable, OS keyring.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "taskloom"
	keyringUser    = "api-key"
	apiKeyEnv      = "TASKLOOM_API_KEY"
)

// Seams for tests; the OS keyring is not available in CI.
var (
	keyringGet    = keyring.Get
	keyringSet    = keyring.Set
	keyringDelete = keyring.Delete
)

// ResolveAPIKey returns the first available API key from the configured
// value, the environment, or the OS keyring. Returns an error naming the
// sources tried when none yields a key.
func ResolveAPIKey(configured string) (string, error) {
	if v := strings.TrimSpace(configured); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv(apiKeyEnv)); v != "" {
		return v, nil
	}
	if v, err := keyringGet(keyringService, keyringUser); err == nil && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	return "", fmt.Errorf("no API key found: set provider.apiKey in the config, export %s, or store one with 'taskloom secret set'", apiKeyEnv)
}

// StoreAPIKey saves the key in the OS keyring.
func StoreAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("refusing to store an empty API key")
	}
	if err := keyringSet(keyringService, keyringUser, key); err != nil {
		return fmt.Errorf("store api key in keyring: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the key from the OS keyring. A missing entry is not
// an error.
func DeleteAPIKey() error {
	err := keyringDelete(keyringService, keyringUser)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("delete api key from keyring: %w", err)
	}
	return nil
}
