package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	LLM           LLMConfig           `toml:"llm"`
	Agent         AgentConfig         `toml:"agent"`
	Notifications NotificationsConfig `toml:"notifications"`
	MCP           MCPConfig           `toml:"mcp"`
	Maintenance   MaintenanceConfig   `toml:"maintenance"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath string `toml:"database_path"`
	RulesPath    string `toml:"rules_path"`
	Author       string `toml:"author"`
}

// LLMConfig holds model API settings
type LLMConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKeyEnv      string `toml:"api_key_env"`
	Model          string `toml:"model"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxSteps       int    `toml:"max_steps"`
}

// AgentConfig holds scheduler loop settings. Intervals are in seconds.
type AgentConfig struct {
	PollIntervalSeconds       int `toml:"poll_interval_seconds"`
	ErrorRetryIntervalSeconds int `toml:"error_retry_interval_seconds"`
	MaxRetries                int `toml:"max_retries"`
	ShutdownTimeoutSeconds    int `toml:"shutdown_timeout_seconds"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// MCPServer describes one MCP server subprocess to attach
type MCPServer struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// MCPConfig holds MCP server settings
type MCPConfig struct {
	Servers []MCPServer `toml:"servers"`
}

// MaintenanceConfig holds housekeeping settings
type MaintenanceConfig struct {
	Cron        string `toml:"cron"`
	HistoryKeep int    `toml:"history_keep"`
}

// PollInterval returns the poll interval as a duration
func (a AgentConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalSeconds) * time.Second
}

// ErrorRetryInterval returns the error retry interval as a duration
func (a AgentConfig) ErrorRetryInterval() time.Duration {
	return time.Duration(a.ErrorRetryIntervalSeconds) * time.Second
}

// ShutdownTimeout returns the shutdown grace period as a duration
func (a AgentConfig) ShutdownTimeout() time.Duration {
	return time.Duration(a.ShutdownTimeoutSeconds) * time.Second
}

// Timeout returns the per-request API timeout as a duration
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// APIKey resolves the API key from the configured environment variable
func (l LLMConfig) APIKey() string {
	return os.Getenv(l.APIKeyEnv)
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".steward", "steward.db"),
			RulesPath:    filepath.Join(home, ".steward", "rules.yaml"),
			Author:       "steward",
		},
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			APIKeyEnv:      "OPENAI_API_KEY",
			Model:          "gpt-4o",
			MaxTokens:      16000,
			TimeoutSeconds: 120,
			MaxSteps:       25,
		},
		Agent: AgentConfig{
			PollIntervalSeconds:       5,
			ErrorRetryIntervalSeconds: 30,
			MaxRetries:                3,
			ShutdownTimeoutSeconds:    30,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Maintenance: MaintenanceConfig{
			Cron:        "0 * * * *",
			HistoryKeep: 1000,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.RulesPath = ExpandPath(cfg.General.RulesPath)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "steward", "config.toml")
}
