package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main Tukang configuration
type Config struct {
	// Slack
	Slack SlackConfig `json:"slack" mapstructure:"slack"`

	// Workspace
	Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`

	// Agent
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Webhook server
	Webhook WebhookConfig `json:"webhook" mapstructure:"webhook"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// SlackConfig holds Slack integration configuration
type SlackConfig struct {
	BotToken      string `json:"bot_token" mapstructure:"bot_token"`
	SigningSecret string `json:"signing_secret" mapstructure:"signing_secret"`
	AppToken      string `json:"app_token" mapstructure:"app_token"`
	Mode          string `json:"mode" mapstructure:"mode"` // webhook, socket
	AckReaction   string `json:"ack_reaction" mapstructure:"ack_reaction"`
}

// WorkspaceConfig holds repository and worktree pool configuration.
//
// RepoPath and WorktreesRoot can also be set through the
// TUKANG_WORKSPACE_REPO_PATH and TUKANG_WORKSPACE_WORKTREES_ROOT
// environment variables.
type WorkspaceConfig struct {
	RepoPath      string `json:"repo_path" mapstructure:"repo_path"`           // default /home/tukang/workspace
	WorktreesRoot string `json:"worktrees_root" mapstructure:"worktrees_root"` // default <data_dir>/worktrees
	BaseBranch    string `json:"base_branch" mapstructure:"base_branch"`
	MaxThreads    int    `json:"max_threads" mapstructure:"max_threads"`
	StaleAfter    string `json:"stale_after" mapstructure:"stale_after"`       // Go duration, default 24h
	SweepInterval string `json:"sweep_interval" mapstructure:"sweep_interval"` // Go duration, default 6h
}

// AgentConfig holds agent CLI configuration
type AgentConfig struct {
	Binary          string   `json:"binary" mapstructure:"binary"`
	AllowedTools    []string `json:"allowed_tools" mapstructure:"allowed_tools"`
	AnthropicAPIKey string   `json:"anthropic_api_key" mapstructure:"anthropic_api_key"`
}

// WebhookConfig holds webhook server configuration
type WebhookConfig struct {
	Port         int  `json:"port" mapstructure:"port"`
	RequireHTTPS bool `json:"require_https" mapstructure:"require_https"` // enforce X-Forwarded-Proto behind a proxy
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Slack: SlackConfig{
			Mode:        "webhook",
			AckReaction: "thumbsup",
		},
		Workspace: WorkspaceConfig{
			RepoPath:      "/home/tukang/workspace",
			BaseBranch:    "main",
			MaxThreads:    5,
			StaleAfter:    "24h",
			SweepInterval: "6h",
		},
		Agent: AgentConfig{
			Binary:       "claude",
			AllowedTools: []string{"Bash", "Read", "Write", "Edit"},
		},
		Webhook: WebhookConfig{
			Port:         3000,
			RequireHTTPS: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// StaleAfterDuration returns the parsed staleness threshold
func (w WorkspaceConfig) StaleAfterDuration() (time.Duration, error) {
	return time.ParseDuration(w.StaleAfter)
}

// SweepIntervalDuration returns the parsed sweep interval
func (w WorkspaceConfig) SweepIntervalDuration() (time.Duration, error) {
	return time.ParseDuration(w.SweepInterval)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Slack.BotToken == "" {
		return fmt.Errorf("slack bot token is required")
	}

	switch c.Slack.Mode {
	case "webhook":
		if c.Slack.SigningSecret == "" {
			return fmt.Errorf("slack signing secret is required in webhook mode")
		}
	case "socket":
		if c.Slack.AppToken == "" {
			return fmt.Errorf("slack app token is required in socket mode")
		}
	default:
		return fmt.Errorf("invalid slack mode %s (must be: webhook, socket)", c.Slack.Mode)
	}

	if c.Workspace.RepoPath == "" {
		return fmt.Errorf("workspace repo path is required")
	}
	if c.Workspace.MaxThreads <= 0 {
		return fmt.Errorf("workspace max threads must be positive")
	}
	if _, err := c.Workspace.StaleAfterDuration(); err != nil {
		return fmt.Errorf("invalid stale_after duration: %w", err)
	}
	if d, err := c.Workspace.SweepIntervalDuration(); err != nil {
		return fmt.Errorf("invalid sweep_interval duration: %w", err)
	} else if d < time.Minute {
		return fmt.Errorf("sweep_interval must be at least one minute")
	}

	if c.Agent.Binary == "" {
		return fmt.Errorf("agent binary is required")
	}

	if c.Webhook.Port <= 0 || c.Webhook.Port > 65535 {
		return fmt.Errorf("invalid webhook port %d", c.Webhook.Port)
	}

	return nil
}
