package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDir(t *testing.T) {
	t.Setenv("RADQUEST_HOME", "")
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}
	if filepath.Base(dir) != ".radquest" {
		t.Errorf("Dir() = %q, want ending with .radquest", dir)
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("Dir() = %q, want absolute path", dir)
	}

	t.Setenv("RADQUEST_HOME", "/opt/radquest")
	if dir, _ := Dir(); dir != "/opt/radquest" {
		t.Errorf("Dir() = %q, want RADQUEST_HOME", dir)
	}
}

func TestEnsureDir(t *testing.T) {
	home := filepath.Join(t.TempDir(), "rq")
	t.Setenv("RADQUEST_HOME", home)

	dir, err := EnsureDir()
	if err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if dir != home {
		t.Errorf("EnsureDir() = %q, want %q", dir, home)
	}
	for _, sub := range []string{"logs", "data"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("EnsureDir() should create %s: %v", sub, err)
		}
	}

	if got := SQLitePath(dir); got != filepath.Join(home, "data", "radquest.db") {
		t.Errorf("SQLitePath() = %q", got)
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Daemon.Port != Default().Daemon.Port {
		t.Errorf("Daemon.Port = %d, want default", cfg.Daemon.Port)
	}
}

func TestLoadFrom_FileAndSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
daemon:
  port: 8100
  log_level: warn
database:
  driver: postgres
  dsn: postgres://radquest@db/radquest
llm:
  default_provider: openai
  providers:
    openai:
      enabled: true
      model: gpt-4o-mini
ledger:
  min_reasoning_length: 20
redis:
  addr: cache:6379
`)
	writeFile(t, dir, "secrets.yaml", `
providers:
  openai:
    api_key: sk-from-file
redis:
  password: hunter2
`)

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Daemon.Port != 8100 || cfg.Daemon.LogLevel != "warn" {
		t.Errorf("Daemon = %+v", cfg.Daemon)
	}
	// Unset keys keep their defaults
	if cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Daemon.Bind = %q, want default", cfg.Daemon.Bind)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("Database.Driver = %q", cfg.Database.Driver)
	}
	openai := cfg.LLM.Providers["openai"]
	if openai == nil || !openai.Enabled || openai.Model != "gpt-4o-mini" || openai.APIKey != "sk-from-file" {
		t.Errorf("openai provider = %+v", openai)
	}
	if cfg.Ledger.MinReasoningLength != 20 {
		t.Errorf("Ledger.MinReasoningLength = %d", cfg.Ledger.MinReasoningLength)
	}
	if cfg.Redis.Addr != "cache:6379" || cfg.Redis.Password != "hunter2" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
}

func TestLoadFrom_EnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "daemon:\n  port: 8100\n")
	t.Setenv("RADQUEST_PORT", "8200")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Daemon.Port != 8200 {
		t.Errorf("Daemon.Port = %d, want 8200", cfg.Daemon.Port)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	t.Run("malformed yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "config.yaml", "daemon: [port")
		if _, err := LoadFrom(dir); err == nil {
			t.Error("LoadFrom() should fail on malformed YAML")
		}
	})

	t.Run("malformed secrets", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "secrets.yaml", "providers: [")
		if _, err := LoadFrom(dir); err == nil {
			t.Error("LoadFrom() should fail on malformed secrets")
		}
	})

	t.Run("validation", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "config.yaml", "database:\n  driver: oracle\n")
		if _, err := LoadFrom(dir); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("LoadFrom() error = %v, want ErrInvalidConfig", err)
		}
	})
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.Daemon.Port = 8300
	cfg.Catalog.Source = CatalogSQL
	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := SaveSecrets(dir, map[string]string{"claude": "sk-ant"}); err != nil {
		t.Fatalf("SaveSecrets() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "secrets.yaml"))
	if err != nil {
		t.Fatalf("stat secrets: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("secrets.yaml mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if loaded.Daemon.Port != 8300 || loaded.Catalog.Source != CatalogSQL {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.LLM.Providers["claude"].APIKey != "sk-ant" {
		t.Errorf("claude APIKey = %q", loaded.LLM.Providers["claude"].APIKey)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if string(data) == "" || strings.Contains(string(data), "sk-ant") {
		t.Error("config.yaml must not contain API keys")
	}
}

func TestSaveSecrets_Merges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "secrets.yaml", "providers:\n  openai:\n    api_key: sk-old\nredis:\n  password: hunter2\n")

	if err := SaveSecrets(dir, map[string]string{"claude": "sk-ant"}); err != nil {
		t.Fatalf("SaveSecrets() error = %v", err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.LLM.Providers["claude"].APIKey != "sk-ant" {
		t.Errorf("claude APIKey = %q; want sk-ant", cfg.LLM.Providers["claude"].APIKey)
	}
	if cfg.LLM.Providers["openai"].APIKey != "sk-old" {
		t.Errorf("openai APIKey = %q; want the existing key kept", cfg.LLM.Providers["openai"].APIKey)
	}
	if cfg.Redis.Password != "hunter2" {
		t.Errorf("Redis.Password = %q; want hunter2 kept", cfg.Redis.Password)
	}
}
