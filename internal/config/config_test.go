package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.Name != "anthropic/claude-sonnet-4-5" {
		t.Errorf("expected default model anthropic/claude-sonnet-4-5, got %s", cfg.Model.Name)
	}
	if cfg.Model.MaxTokens != 8192 {
		t.Errorf("expected maxTokens 8192, got %d", cfg.Model.MaxTokens)
	}
	if cfg.Phases.MaxRetries != 3 {
		t.Errorf("expected phase maxRetries 3, got %d", cfg.Phases.MaxRetries)
	}
	if cfg.Tools.ExecTimeout != 60*time.Second {
		t.Errorf("expected exec timeout 60s, got %v", cfg.Tools.ExecTimeout)
	}
	if cfg.Events.Enabled {
		t.Error("expected events mirror disabled by default")
	}
}

func TestLoadDefaults(t *testing.T) {
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", "/tmp/nonexistent-taskloom-test")
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model.MaxIterations != 20 {
		t.Errorf("expected maxIterations 20, got %d", cfg.Model.MaxIterations)
	}
	if cfg.Paths.DataDir == "" {
		t.Error("expected DataDir to be filled")
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ConfigDir)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatal(err)
	}

	fileCfg := map[string]any{
		"model": map[string]any{
			"name":      "openai/gpt-5",
			"maxTokens": 4096,
		},
		"phases": map[string]any{
			"maxRetries": 5,
		},
	}
	data, _ := json.Marshal(fileCfg)
	if err := os.WriteFile(filepath.Join(configDir, ConfigFile), data, 0o600); err != nil {
		t.Fatal(err)
	}

	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model.Name != "openai/gpt-5" {
		t.Errorf("expected model from file, got %s", cfg.Model.Name)
	}
	if cfg.Model.MaxTokens != 4096 {
		t.Errorf("expected maxTokens 4096, got %d", cfg.Model.MaxTokens)
	}
	if cfg.Phases.MaxRetries != 5 {
		t.Errorf("expected maxRetries 5, got %d", cfg.Phases.MaxRetries)
	}
	// Untouched fields keep defaults.
	if cfg.Model.MaxIterations != 20 {
		t.Errorf("expected default maxIterations, got %d", cfg.Model.MaxIterations)
	}
}

func TestConfigPathOverride(t *testing.T) {
	orig := os.Getenv("TASKLOOM_CONFIG")
	os.Setenv("TASKLOOM_CONFIG", "/etc/taskloom/alt.json")
	defer os.Setenv("TASKLOOM_CONFIG", orig)

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error: %v", err)
	}
	if path != "/etc/taskloom/alt.json" {
		t.Errorf("expected override path, got %s", path)
	}
}
