// Package config resolves the application's directories and reads the
// optional config.yaml, with environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	EnvHome    = "TASKPILOT_HOME"
	EnvAuthKey = "TASKPILOT_AUTH_KEY"
	EnvAPIKey  = "ANTHROPIC_API_KEY"
	EnvPort    = "TASKPILOT_PORT"
)

// AgentConfig tunes the conversation agent.
type AgentConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	MaxTurns  int    `yaml:"max_turns"`
	BaseURL   string `yaml:"base_url"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`
	AuthKey string `yaml:"auth_key"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File overrides the default log file path.
	File string `yaml:"file"`
}

// Config holds all application configuration paths and settings.
type Config struct {
	HomeDir        string `yaml:"-"`
	AppDir         string `yaml:"-"`
	DatabasePath   string `yaml:"-"`
	LogDir         string `yaml:"-"`
	TranscriptsDir string `yaml:"-"`
	SecretKeyPath  string `yaml:"-"`

	// APIKey comes from the environment only and is never written to disk
	// in plain text.
	APIKey string `yaml:"-"`

	Agent  AgentConfig  `yaml:"agent"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// Defaults
const (
	DefaultModel     = "claude-opus-4-6"
	DefaultMaxTokens = 4096
	DefaultMaxTurns  = 25
	DefaultLogLevel  = "info"
)

// Load resolves the application directory (TASKPILOT_HOME or
// ~/.taskpilot), creates it, and reads config.yaml from it if present.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	appDir := os.Getenv(EnvHome)
	if appDir == "" {
		appDir = filepath.Join(home, ".taskpilot")
	}
	return LoadFrom(home, appDir)
}

// LoadFrom is Load with explicit directories.
func LoadFrom(home, appDir string) (*Config, error) {
	cfg := &Config{
		HomeDir:        home,
		AppDir:         appDir,
		DatabasePath:   filepath.Join(appDir, "taskpilot.db"),
		LogDir:         filepath.Join(appDir, "logs"),
		TranscriptsDir: filepath.Join(appDir, "transcripts"),
		SecretKeyPath:  filepath.Join(appDir, "secret.key"),
		Agent: AgentConfig{
			Model:     DefaultModel,
			MaxTokens: DefaultMaxTokens,
			MaxTurns:  DefaultMaxTurns,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}

	// Ensure directories exist
	for _, dir := range []string{cfg.AppDir, cfg.LogDir, cfg.TranscriptsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := cfg.readFile(filepath.Join(appDir, "config.yaml")); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAuthKey); v != "" {
		c.Server.AuthKey = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// fillDefaults repairs zero values a partial config.yaml may leave.
func (c *Config) fillDefaults() {
	if c.Agent.Model == "" {
		c.Agent.Model = DefaultModel
	}
	if c.Agent.MaxTokens <= 0 {
		c.Agent.MaxTokens = DefaultMaxTokens
	}
	if c.Agent.MaxTurns <= 0 {
		c.Agent.MaxTurns = DefaultMaxTurns
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// LogFile is the rotating log file path.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.LogDir, "taskpilot.log")
}

// TasksDir returns the path to a project's task board directory.
func (c *Config) TasksDir(projectPath string) string {
	return filepath.Join(projectPath, "tasks")
}
