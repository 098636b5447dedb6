package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/radquest/radquest/internal/catalog"
	"github.com/radquest/radquest/internal/config"
	"github.com/radquest/radquest/internal/queue"
)

// cmdInit creates the data directory, a default config and optional API keys
func cmdInit(in io.Reader, w io.Writer) error {
	fmt.Fprintln(w, "radquest - First-Time Setup")
	fmt.Fprintln(w, "===========================")
	fmt.Fprintln(w)

	fmt.Fprint(w, "Creating data directory... ")
	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Fprintln(w, "✓")

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); os.IsNotExist(err) {
		fmt.Fprint(w, "Creating default configuration... ")
		if err := config.Save(dir, config.Default()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintln(w, "✓")
	} else {
		fmt.Fprintln(w, "Configuration already exists ✓")
	}

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Answer Judge Setup")
	fmt.Fprintln(w, "------------------")
	fmt.Fprintln(w, "Free text answers are judged by Claude, OpenAI or a local Ollama model.")
	fmt.Fprintln(w)

	reader := bufio.NewReader(in)
	keys := make(map[string]string)
	for _, name := range []string{"claude", "openai"} {
		if p := cfg.LLM.Providers[name]; p != nil && p.APIKey != "" {
			fmt.Fprintf(w, "%s API key: already configured ✓\n", name)
			continue
		}
		fmt.Fprintf(w, "Enter %s API key (or press Enter to skip): ", name)
		key, _ := reader.ReadString('\n')
		if key = strings.TrimSpace(key); key != "" {
			keys[name] = key
		}
	}
	if len(keys) > 0 {
		if err := config.SaveSecrets(dir, keys); err != nil {
			fmt.Fprintf(w, "  ⚠ Failed to save: %v\n", err)
		} else {
			fmt.Fprintln(w, "  ✓ Saved")
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  1. radquest start    # Start the daemon")
	fmt.Fprintln(w, "  2. radquest doctor   # Verify configuration")
	fmt.Fprintln(w, "  3. radquest levels   # See available levels")
	return nil
}

// cmdDoctor checks that configured backends are reachable
func cmdDoctor(ctx context.Context, c *client, w io.Writer) error {
	fmt.Fprintln(w, "Checking system requirements...")
	allGood := true
	check := func(label string, err error, ok string) {
		fmt.Fprintf(w, "%-10s ", label+":")
		if err != nil {
			fmt.Fprintf(w, "✗ %v\n", err)
			allGood = false
			return
		}
		fmt.Fprintf(w, "✓ %s\n", ok)
	}

	dir, err := config.Dir()
	if err == nil {
		_, err = os.Stat(dir)
	}
	check("Directory", err, dir)

	cfg, err := config.Load()
	check("Config", err, "loaded")
	if cfg == nil {
		return nil
	}

	fmt.Fprintln(w, "\nAnswer judges:")
	for _, name := range sortedProviders(cfg) {
		p := cfg.LLM.Providers[name]
		if !p.Enabled {
			continue
		}
		switch {
		case name == "ollama":
			check("  "+name, checkOllama(ctx, p.URL), "available (model: "+p.Model+")")
		case p.APIKey == "":
			check("  "+name, fmt.Errorf("no API key (run 'radquest provider set-key %s')", name), "")
		default:
			check("  "+name, nil, "configured (model: "+p.Model+")")
		}
	}

	fmt.Fprintln(w)
	if cfg.Redis.Addr != "" {
		check("Redis", checkRedis(ctx, cfg), cfg.Redis.Addr)
	}
	if cfg.RabbitMQ.URL != "" {
		check("RabbitMQ", checkRabbitMQ(cfg.RabbitMQ.URL), "connected")
	}

	var daemonErr error
	if !c.healthy(ctx) {
		daemonErr = fmt.Errorf("not running (run 'radquest start')")
	}
	check("Daemon", daemonErr, "running")

	fmt.Fprintln(w)
	if allGood {
		fmt.Fprintln(w, "All checks passed! ✓")
	} else {
		fmt.Fprintln(w, "Some checks failed. Please fix the issues above.")
	}
	return nil
}

// cmdConfig prints the effective configuration. Secrets are never printed.
func cmdConfig(w io.Writer) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	fmt.Fprintf(w, "# %s\n", filepath.Join(dir, "config.yaml"))
	_, err = w.Write(data)
	return err
}

// cmdProvider manages LLM provider API keys
func cmdProvider(args []string, in io.Reader, w io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(w, `Provider management commands:

  radquest provider list              List configured providers
  radquest provider set-key <name>    Set API key for a provider`)
		return nil
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	switch args[0] {
	case "list":
		providerList(cfg, w)
		return nil
	case "set-key":
		if len(args) < 2 {
			return fmt.Errorf("%w: provider name required", errUsage)
		}
		return providerSetKey(dir, cfg, args[1], in, w)
	default:
		return fmt.Errorf("unknown provider command: %s", args[0])
	}
}

func providerList(cfg *config.Config, w io.Writer) {
	fmt.Fprintln(w, "Configured LLM Providers:")
	for _, name := range sortedProviders(cfg) {
		p := cfg.LLM.Providers[name]
		status := "disabled"
		if p.Enabled {
			status = "ready"
			if p.APIKey == "" && name != "ollama" {
				status = "needs API key"
			}
		}

		isDefault := ""
		if name == cfg.LLM.DefaultProvider {
			isDefault = " (default)"
		}

		fmt.Fprintf(w, "  %s%s\n", name, isDefault)
		fmt.Fprintf(w, "    status: %s\n", status)
		fmt.Fprintf(w, "    model:  %s\n", p.Model)
		if p.URL != "" {
			fmt.Fprintf(w, "    url:    %s\n", p.URL)
		}
	}
}

func providerSetKey(dir string, cfg *config.Config, name string, in io.Reader, w io.Writer) error {
	if _, ok := cfg.LLM.Providers[name]; !ok {
		return fmt.Errorf("unknown provider: %s (valid: %s)", name, strings.Join(sortedProviders(cfg), ", "))
	}
	if name == "ollama" {
		fmt.Fprintln(w, "Ollama doesn't require an API key.")
		return nil
	}

	fmt.Fprintf(w, "Enter %s API key: ", name)
	key, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read input: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	if err := config.SaveSecrets(dir, map[string]string{name: key}); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}

	fmt.Fprintf(w, "✓ API key saved for %s\n", name)
	fmt.Fprintln(w, "Restart the daemon for changes to take effect.")
	return nil
}

func sortedProviders(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.LLM.Providers))
	for name := range cfg.LLM.Providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func checkOllama(ctx context.Context, url string) error {
	if url == "" {
		url = "http://localhost:11434"
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("not reachable at %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

func checkRedis(ctx context.Context, cfg *config.Config) error {
	rdb, err := catalog.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	return rdb.Close()
}

func checkRabbitMQ(url string) error {
	conn, err := queue.NewConnection(url)
	if err != nil {
		return err
	}
	return conn.Close()
}
