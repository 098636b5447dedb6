package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/radquest/radquest/internal/config"
)

// setupHome points the data directory at a temp dir
func setupHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RADQUEST_HOME", dir)
	return dir
}

func TestCmdInit(t *testing.T) {
	dir := setupHome(t)
	var out bytes.Buffer

	if err := cmdInit(strings.NewReader("claude-key\n\n"), &out); err != nil {
		t.Fatalf("cmdInit() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml not written: %v", err)
	}

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if got := cfg.LLM.Providers["claude"].APIKey; got != "claude-key" {
		t.Errorf("claude APIKey = %q, want claude-key", got)
	}
	if got := cfg.LLM.Providers["openai"].APIKey; got != "" {
		t.Errorf("openai APIKey = %q, want empty", got)
	}

	// Second run keeps the existing config and key
	out.Reset()
	if err := cmdInit(strings.NewReader("\n"), &out); err != nil {
		t.Fatalf("cmdInit() again error = %v", err)
	}
	if !strings.Contains(out.String(), "Configuration already exists") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), "claude API key: already configured") {
		t.Errorf("output = %q", out.String())
	}
}

func TestCmdProvider_SetKeyKeepsOthers(t *testing.T) {
	dir := setupHome(t)
	if _, err := config.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if err := config.SaveSecrets(dir, map[string]string{"claude": "old"}); err != nil {
		t.Fatalf("SaveSecrets() error = %v", err)
	}

	var out bytes.Buffer
	if err := cmdProvider([]string{"set-key", "openai"}, strings.NewReader("sk-new\n"), &out); err != nil {
		t.Fatalf("cmdProvider() error = %v", err)
	}

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.LLM.Providers["openai"].APIKey != "sk-new" || cfg.LLM.Providers["claude"].APIKey != "old" {
		t.Errorf("keys = openai %q, claude %q", cfg.LLM.Providers["openai"].APIKey, cfg.LLM.Providers["claude"].APIKey)
	}
}

func TestCmdProvider_Errors(t *testing.T) {
	setupHome(t)
	var out bytes.Buffer

	if err := cmdProvider([]string{"set-key", "gemini"}, strings.NewReader("x\n"), &out); err == nil {
		t.Error("set-key for unknown provider should fail")
	}
	if err := cmdProvider([]string{"set-key", "claude"}, strings.NewReader("\n"), &out); err == nil {
		t.Error("set-key with empty key should fail")
	}
	if err := cmdProvider([]string{"rename"}, nil, &out); err == nil {
		t.Error("unknown provider command should fail")
	}
}

func TestCmdProvider_List(t *testing.T) {
	setupHome(t)
	var out bytes.Buffer

	if err := cmdProvider([]string{"list"}, nil, &out); err != nil {
		t.Fatalf("cmdProvider() error = %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "ollama") || !strings.Contains(text, "claude") {
		t.Errorf("list output = %q", text)
	}
	if strings.Index(text, "claude") > strings.Index(text, "ollama") {
		t.Error("providers should be listed in name order")
	}
}

func TestCmdConfig_HidesSecrets(t *testing.T) {
	dir := setupHome(t)
	if _, err := config.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if err := config.SaveSecrets(dir, map[string]string{"claude": "very-secret"}); err != nil {
		t.Fatalf("SaveSecrets() error = %v", err)
	}

	var out bytes.Buffer
	if err := cmdConfig(&out); err != nil {
		t.Fatalf("cmdConfig() error = %v", err)
	}
	if strings.Contains(out.String(), "very-secret") {
		t.Error("config output leaks an API key")
	}
	if !strings.Contains(out.String(), "default_provider") {
		t.Errorf("config output = %q", out.String())
	}
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	var content strings.Builder
	for i := range 100 {
		content.WriteString(strings.Repeat("x", 10))
		content.WriteString(string(rune('a' + i%26)))
		content.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(content.String()), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := tail(f, &out, 50); err != nil {
		t.Fatalf("tail() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("tail() lines = %d, want 4:\n%s", len(lines), out.String())
	}
	if lines[3] != "xxxxxxxxxxv" {
		t.Errorf("last line = %q", lines[3])
	}
}

func TestReadPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), pidFile)
	os.WriteFile(path, []byte("4242\n"), 0644)

	pid, err := readPID(path)
	if err != nil || pid != 4242 {
		t.Errorf("readPID() = %d, %v; want 4242", pid, err)
	}

	os.WriteFile(path, []byte("abc"), 0644)
	if _, err := readPID(path); err == nil {
		t.Error("readPID() should fail for garbage")
	}
}
