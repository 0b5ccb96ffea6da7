// Package config handles configuration loading for canopy.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for canopy.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Tree      TreeConfig      `mapstructure:"tree"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// AnthropicConfig holds inference API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseBedrock routes inference through AWS Bedrock instead of the
	// direct API.
	UseBedrock  bool    `mapstructure:"use_bedrock"`
	AWSRegion   string  `mapstructure:"aws_region"`
	AWSProfile  string  `mapstructure:"aws_profile"`
	Temperature float64 `mapstructure:"temperature"`
}

// PoolConfig holds resource admission limits.
type PoolConfig struct {
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks"`
	MaxCallsPerWindow  int           `mapstructure:"max_calls_per_window"`
	WindowLength       time.Duration `mapstructure:"window_length"`
	MaxMemoryFraction  float64       `mapstructure:"max_memory_fraction"`
}

// TreeConfig holds decision tree limits.
type TreeConfig struct {
	MaxDepth         int     `mapstructure:"max_depth"`
	MaxBreadth       int     `mapstructure:"max_breadth"`
	PruningThreshold float64 `mapstructure:"pruning_threshold"`
}

// SchedulerConfig holds mission scheduling settings.
type SchedulerConfig struct {
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	EventBuffer int           `mapstructure:"event_buffer"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.canopy.yaml in current directory or parent)
// 3. User config (~/.config/canopy/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over user config.
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.temperature", 0.2)

	v.SetDefault("pool.max_concurrent_tasks", 4)
	v.SetDefault("pool.max_calls_per_window", 30)
	v.SetDefault("pool.window_length", "1m")
	v.SetDefault("pool.max_memory_fraction", 0.8)

	v.SetDefault("tree.max_depth", 6)
	v.SetDefault("tree.max_breadth", 4)
	v.SetDefault("tree.pruning_threshold", 0.3)

	v.SetDefault("scheduler.task_timeout", "0s")
	v.SetDefault("scheduler.event_buffer", 64)
}

// getUserConfigDir returns the XDG config directory for canopy.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "canopy")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "canopy")
	}
	return filepath.Join(home, ".config", "canopy")
}

// findProjectConfig searches for .canopy.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".canopy.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Temperature: 0.2,
		},
		Pool: PoolConfig{
			MaxConcurrentTasks: 4,
			MaxCallsPerWindow:  30,
			WindowLength:       time.Minute,
			MaxMemoryFraction:  0.8,
		},
		Tree: TreeConfig{
			MaxDepth:         6,
			MaxBreadth:       4,
			PruningThreshold: 0.3,
		},
		Scheduler: SchedulerConfig{
			EventBuffer: 64,
		},
	}
}
