package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	configFile  = "config.yaml"
	secretsFile = "secrets.yaml"
)

// SecretsConfig is the layout of secrets.yaml, kept apart from config.yaml
// so the latter can be shared
type SecretsConfig struct {
	Providers map[string]ProviderSecret `yaml:"providers"`
	Redis     struct {
		Password string `yaml:"password,omitempty"`
	} `yaml:"redis"`
}

type ProviderSecret struct {
	APIKey string `yaml:"api_key"`
}

// Dir is $RADQUEST_HOME, or ~/.radquest when unset
func Dir() (string, error) {
	if dir := os.Getenv("RADQUEST_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".radquest"), nil
}

// EnsureDir creates Dir with its logs and data subdirectories
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	for _, sub := range []string{"logs", "data"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", sub, err)
		}
	}
	return dir, nil
}

// SQLitePath is the database file used when no DSN is configured
func SQLitePath(dir string) string {
	return filepath.Join(dir, "data", "radquest.db")
}

func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom layers config.yaml, then secrets.yaml, then RADQUEST_*
// environment variables over the defaults and validates the result. Either
// file may be missing.
func LoadFrom(dir string) (*Config, error) {
	cfg := Default()
	if err := readYAML(filepath.Join(dir, configFile), cfg); err != nil {
		return nil, err
	}

	var secrets SecretsConfig
	if err := readYAML(filepath.Join(dir, secretsFile), &secrets); err != nil {
		return nil, err
	}
	for name, s := range secrets.Providers {
		if p, ok := cfg.LLM.Providers[name]; ok {
			p.APIKey = s.APIKey
		}
	}
	if secrets.Redis.Password != "" {
		cfg.Redis.Password = secrets.Redis.Password
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readYAML decodes path into out and leaves out alone when the file is missing
func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeYAML(path string, v any, perm os.FileMode) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Save writes cfg to config.yaml. Secrets carry yaml:"-" and stay out.
func Save(dir string, cfg *Config) error {
	return writeYAML(filepath.Join(dir, configFile), cfg, 0o644)
}

// SaveSecrets sets provider API keys in secrets.yaml, keeping every entry it
// does not name. The file is readable by the owner only.
func SaveSecrets(dir string, keys map[string]string) error {
	path := filepath.Join(dir, secretsFile)

	var secrets SecretsConfig
	if err := readYAML(path, &secrets); err != nil {
		return err
	}
	if secrets.Providers == nil {
		secrets.Providers = make(map[string]ProviderSecret, len(keys))
	}
	for name, key := range keys {
		secrets.Providers[name] = ProviderSecret{APIKey: key}
	}
	return writeYAML(path, secrets, 0o600)
}
