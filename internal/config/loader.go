package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	// Determine config path
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".tukang", "tukang.json")
	}

	// Setup viper
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// Read environment variables
	v.SetEnvPrefix("TUKANG")
	v.AutomaticEnv()

	// Documented environment overrides for the workspace layout
	_ = v.BindEnv("workspace.repo_path", "TUKANG_WORKSPACE_REPO_PATH")
	_ = v.BindEnv("workspace.worktrees_root", "TUKANG_WORKSPACE_WORKTREES_ROOT")
	_ = v.BindEnv("slack.bot_token", "TUKANG_SLACK_BOT_TOKEN")
	_ = v.BindEnv("slack.signing_secret", "TUKANG_SLACK_SIGNING_SECRET")
	_ = v.BindEnv("slack.app_token", "TUKANG_SLACK_APP_TOKEN")
	_ = v.BindEnv("agent.anthropic_api_key", "TUKANG_ANTHROPIC_API_KEY")

	// Read config file if present
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set data directory if not specified
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".tukang")
	}

	// Set logging file path if not specified
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "tukang.log")
	}

	// Set worktrees root if not specified
	if cfg.Workspace.WorktreesRoot == "" {
		cfg.Workspace.WorktreesRoot = filepath.Join(cfg.DataDir, "worktrees")
	}

	return cfg, nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tukang", "tukang.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
