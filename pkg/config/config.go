package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.prdagent/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8088
// database:
//   path: ~/.prdagent/prdagent.db
// redis:
//   addr: 127.0.0.1:6379
// compression:
//   threshold_chars: 50000
//   target_keep_chars: 20000
//   min_keep_messages: 8
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.

type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Compression CompressionConfig `yaml:"compression"`
	Chat        ChatConfig        `yaml:"chat"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path *string `yaml:"path"`
}

// RedisConfig configures the optional TTL cache. An empty addr disables the
// cache entirely; every cached read already falls back to the database.
type RedisConfig struct {
	Addr     *string `yaml:"addr"`
	Password *string `yaml:"password"`
	DB       *int    `yaml:"db"`
}

type CompressionConfig struct {
	ThresholdChars  *int `yaml:"threshold_chars"`
	TargetKeepChars *int `yaml:"target_keep_chars"`
	MinKeepMessages *int `yaml:"min_keep_messages"`
}

type ChatConfig struct {
	DefaultModel *string `yaml:"default_model"`
	MaxCitations *int    `yaml:"max_citations"`
	// System prompt fragments per assistant role, concatenated into the
	// role segment of model input.
	AssistantRoles map[string]string `yaml:"assistant_roles"`
}

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8090

	DefaultCompressionThreshold = 50000
	DefaultTargetKeepChars      = 20000
	DefaultMinKeepMessages      = 8

	DefaultMaxCitations = 5
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".prdagent")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.prdagent/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	host := cfg.Host()
	if strings.TrimSpace(host) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}

	port := cfg.Port()
	if port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	if cfg.CompressionThreshold() <= 0 {
		return nil, "", fmt.Errorf("invalid compression.threshold_chars in %s", configFile)
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)}}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// DatabasePath returns the sqlite file path, defaulting next to the config.
func (c *AppConfig) DatabasePath() string {
	if c != nil && c.Database.Path != nil && strings.TrimSpace(*c.Database.Path) != "" {
		return *c.Database.Path
	}
	dir, _, err := DefaultPaths()
	if err != nil {
		return "prdagent.db"
	}
	return filepath.Join(dir, "prdagent.db")
}

// RedisAddr returns the cache address, or "" when the cache is disabled.
func (c *AppConfig) RedisAddr() string {
	if c == nil || c.Redis.Addr == nil {
		return ""
	}
	return strings.TrimSpace(*c.Redis.Addr)
}

func (c *AppConfig) RedisPassword() string {
	if c == nil || c.Redis.Password == nil {
		return ""
	}
	return *c.Redis.Password
}

func (c *AppConfig) RedisDB() int {
	if c == nil || c.Redis.DB == nil {
		return 0
	}
	return *c.Redis.DB
}

func (c *AppConfig) CompressionThreshold() int {
	if c == nil || c.Compression.ThresholdChars == nil {
		return DefaultCompressionThreshold
	}
	return *c.Compression.ThresholdChars
}

func (c *AppConfig) TargetKeepChars() int {
	if c == nil || c.Compression.TargetKeepChars == nil {
		return DefaultTargetKeepChars
	}
	return *c.Compression.TargetKeepChars
}

func (c *AppConfig) MinKeepMessages() int {
	if c == nil || c.Compression.MinKeepMessages == nil {
		return DefaultMinKeepMessages
	}
	return *c.Compression.MinKeepMessages
}

func (c *AppConfig) DefaultModel() string {
	if c == nil || c.Chat.DefaultModel == nil {
		return ""
	}
	return *c.Chat.DefaultModel
}

func (c *AppConfig) MaxCitations() int {
	if c == nil || c.Chat.MaxCitations == nil || *c.Chat.MaxCitations <= 0 {
		return DefaultMaxCitations
	}
	return *c.Chat.MaxCitations
}

// AssistantRolePrompt returns the configured system-prompt fragment for a
// role key, or "" when the role has no specific fragment.
func (c *AppConfig) AssistantRolePrompt(role string) string {
	if c == nil || c.Chat.AssistantRoles == nil {
		return ""
	}
	return c.Chat.AssistantRoles[role]
}

func ptr[T any](v T) *T { return &v }
