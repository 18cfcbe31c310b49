// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the steward configuration.
type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Interpret InterpretConfig `toml:"interpret"`
	Plan      PlanConfig      `toml:"plan"`
	Execute   ExecuteConfig   `toml:"execute"`
	Storage   StorageConfig   `toml:"storage"`
	Events    EventsConfig    `toml:"events"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"` // Custom API endpoint (OpenRouter, LiteLLM, Ollama)
}

// InterpretConfig tunes the interpretation stage.
type InterpretConfig struct {
	ConfidenceThreshold float64 `toml:"confidence_threshold"` // below this, ask for clarification
	MaxQuestions        int     `toml:"max_questions"`
}

// PlanConfig tunes the planning refinement loop.
type PlanConfig struct {
	QualityThreshold float64 `toml:"quality_threshold"` // critique score that ends refinement
	MaxIterations    int     `toml:"max_iterations"`
	RequireApproval  bool    `toml:"require_approval"`
	ApprovalTimeout  string  `toml:"approval_timeout"` // idle sessions expire after this (e.g. "24h")
}

// ExecuteConfig tunes step execution.
type ExecuteConfig struct {
	StepTimeout  int    `toml:"step_timeout"`  // default per-step timeout in seconds
	StepRetries  int    `toml:"step_retries"`  // retries for transient failures
	StageTimeout string `toml:"stage_timeout"` // overall budget per stage (e.g. "5m")
	BackupDir    string `toml:"backup_dir"`
	Catalog      string `toml:"catalog"` // optional YAML tool catalog
}

// StorageConfig contains session persistence settings.
type StorageConfig struct {
	Backend string `toml:"backend"` // "file" (default) or "sqlite"
	Path    string `toml:"path"`    // directory for file backend, db path for sqlite
}

// EventsConfig contains event mirroring settings.
type EventsConfig struct {
	NATSURL string `toml:"nats_url"` // empty disables the NATS mirror
	Subject string `toml:"subject"`  // subject prefix, default "steward"
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol"` // grpc (default) or http
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Interpret: InterpretConfig{
			ConfidenceThreshold: 0.75,
			MaxQuestions:        3,
		},
		Plan: PlanConfig{
			QualityThreshold: 0.8,
			MaxIterations:    3,
			RequireApproval:  true,
			ApprovalTimeout:  "24h",
		},
		Execute: ExecuteConfig{
			StepTimeout:  30,
			StepRetries:  1,
			StageTimeout: "5m",
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "~/.local/steward",
		},
		Events: EventsConfig{
			Subject: "steward",
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from steward.toml in the current
// directory, falling back to defaults if the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	path := filepath.Join(cwd, "steward.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// StoragePath expands a leading ~ in the configured storage path.
func (c *Config) StoragePath() string {
	return expandHome(c.Storage.Path)
}

// BackupPath returns the backup directory, defaulting to a sibling of
// the storage path.
func (c *Config) BackupPath() string {
	if c.Execute.BackupDir != "" {
		return expandHome(c.Execute.BackupDir)
	}
	return filepath.Join(c.StoragePath(), "backups")
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
