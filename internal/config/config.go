// Package config provides configuration types and loading for taskloom.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Provider, Phases, Notify, Events, Tools.
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Model    ModelConfig    `json:"model"`
	Provider ProviderConfig `json:"provider"`
	Phases   PhasesConfig   `json:"phases"`
	Notify   NotifyConfig   `json:"notify"`
	Events   EventsConfig   `json:"events"`
	Tools    ToolsConfig    `json:"tools"`
}

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	// DataDir holds per-task state: histories, UI events, artifacts, the
	// history index database. Defaults to ~/.taskloom.
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
	// Workspace is the directory the agent works in and checkpoints.
	Workspace string `json:"workspace" envconfig:"WORKSPACE"`
}

// ModelConfig groups LLM model and task-loop settings.
type ModelConfig struct {
	Name        string  `json:"name" envconfig:"MODEL"`
	MaxTokens   int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64 `json:"temperature" envconfig:"TEMPERATURE"`
	// MaxIterations caps the provider/tool cycle per task.
	MaxIterations int `json:"maxIterations" envconfig:"MAX_ITERATIONS"`
	// CondenseAfterTurns triggers history condensation once the API
	// conversation grows past this many turns. 0 disables condensation.
	CondenseAfterTurns int `json:"condenseAfterTurns" envconfig:"CONDENSE_AFTER_TURNS"`
	// CondenseTokenLimit bounds the requested summary length.
	CondenseTokenLimit int `json:"condenseTokenLimit" envconfig:"CONDENSE_TOKEN_LIMIT"`
}

// ProviderConfig configures the LLM transport.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase" envconfig:"API_BASE"`
	// Timeout bounds a single streaming request.
	Timeout time.Duration `json:"timeout" envconfig:"PROVIDER_TIMEOUT"`
}

// PhasesConfig controls the phase/retry state machine.
type PhasesConfig struct {
	// MaxRetries is the retry budget per phase. Exceeding it forces
	// advancement, it never fails the task.
	MaxRetries int `json:"maxRetries" envconfig:"PHASE_MAX_RETRIES"`
}

// NotifyConfig configures outward completion notifications.
type NotifyConfig struct {
	Enabled         bool   `json:"enabled" envconfig:"NOTIFY_ENABLED"`
	SlackWebhookURL string `json:"slackWebhookUrl" envconfig:"SLACK_WEBHOOK_URL"`
}

// EventsConfig configures the optional Kafka mirror of UI events.
type EventsConfig struct {
	Enabled bool   `json:"enabled" envconfig:"EVENTS_ENABLED"`
	Brokers string `json:"brokers" envconfig:"EVENTS_BROKERS"`
	Topic   string `json:"topic" envconfig:"EVENTS_TOPIC"`
}

// ToolsConfig groups tool execution settings.
type ToolsConfig struct {
	// ExecTimeout bounds a user-approved completion command.
	ExecTimeout time.Duration `json:"execTimeout" envconfig:"EXEC_TIMEOUT"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Workspace: ".",
		},
		Model: ModelConfig{
			Name:               "anthropic/claude-sonnet-4-5",
			MaxTokens:          8192,
			Temperature:        0.7,
			MaxIterations:      20,
			CondenseAfterTurns: 40,
			CondenseTokenLimit: 1000,
		},
		Provider: ProviderConfig{
			APIBase: "https://api.openai.com/v1",
			Timeout: 120 * time.Second,
		},
		Phases: PhasesConfig{
			MaxRetries: 3,
		},
		Events: EventsConfig{
			Topic: "taskloom.ui-events",
		},
		Tools: ToolsConfig{
			ExecTimeout: 60 * time.Second,
		},
	}
}
