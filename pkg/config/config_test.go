package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile_ReturnsDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path == "" {
		t.Fatalf("expected config path")
	}
	if got := cfg.Host(); got != DefaultHost {
		t.Fatalf("cfg.Host() = %q, want %q", got, DefaultHost)
	}
	if got := cfg.Port(); got != DefaultPort {
		t.Fatalf("cfg.Port() = %d, want %d", got, DefaultPort)
	}
	if got := cfg.CompressionThreshold(); got != DefaultCompressionThreshold {
		t.Fatalf("cfg.CompressionThreshold() = %d, want %d", got, DefaultCompressionThreshold)
	}
	if got := cfg.MinKeepMessages(); got != DefaultMinKeepMessages {
		t.Fatalf("cfg.MinKeepMessages() = %d, want %d", got, DefaultMinKeepMessages)
	}
}

func TestEnsureDefaultConfig_CreatesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := EnsureDefaultConfig()
	if err != nil {
		t.Fatalf("EnsureDefaultConfig() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist at %s: %v", path, err)
	}

	cfg, gotPath, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if filepath.Clean(gotPath) != filepath.Clean(path) {
		t.Fatalf("Load() path = %s, want %s", gotPath, path)
	}
	if got := cfg.Host(); got != DefaultHost {
		t.Fatalf("cfg.Host() = %q, want %q", got, DefaultHost)
	}
}

func TestLoad_ParsesFullConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".prdagent")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")

	content := `server:
  host: 0.0.0.0
  port: 9090
redis:
  addr: 127.0.0.1:6380
compression:
  threshold_chars: 60000
  target_keep_chars: 30000
  min_keep_messages: 10
chat:
  max_citations: 3
  assistant_roles:
    architect: "You are the system architect on this project."
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Host(); got != "0.0.0.0" {
		t.Fatalf("cfg.Host() = %q, want %q", got, "0.0.0.0")
	}
	if got := cfg.Port(); got != 9090 {
		t.Fatalf("cfg.Port() = %d, want %d", got, 9090)
	}
	if got := cfg.RedisAddr(); got != "127.0.0.1:6380" {
		t.Fatalf("cfg.RedisAddr() = %q", got)
	}
	if got := cfg.CompressionThreshold(); got != 60000 {
		t.Fatalf("cfg.CompressionThreshold() = %d, want 60000", got)
	}
	if got := cfg.TargetKeepChars(); got != 30000 {
		t.Fatalf("cfg.TargetKeepChars() = %d, want 30000", got)
	}
	if got := cfg.MinKeepMessages(); got != 10 {
		t.Fatalf("cfg.MinKeepMessages() = %d, want 10", got)
	}
	if got := cfg.MaxCitations(); got != 3 {
		t.Fatalf("cfg.MaxCitations() = %d, want 3", got)
	}
	if got := cfg.AssistantRolePrompt("architect"); got == "" {
		t.Fatalf("expected assistant role prompt for architect")
	}
	if got := cfg.AssistantRolePrompt("missing"); got != "" {
		t.Fatalf("unexpected prompt for unknown role: %q", got)
	}
}

func TestLoad_RejectsInvalidPort(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".prdagent")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte("server:\n  port: 99999\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid port")
	}
}
