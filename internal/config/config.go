// Package config handles Cactus configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/cactus/config.yaml, /etc/cactus/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "cactus", "config.yaml"))
	}

	paths = append(paths, "/etc/cactus/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Cactus configuration.
type Config struct {
	API      APIConfig    `yaml:"api"`
	Listen   ListenConfig `yaml:"listen"`
	DataDir  string       `yaml:"data_dir"`
	LogLevel string       `yaml:"log_level"`
}

// APIConfig defines the chat-completions endpoint settings.
type APIConfig struct {
	// BaseURL is the completions endpoint root. The client POSTs to
	// BaseURL + "/chat/completions".
	BaseURL string `yaml:"base_url"`
	// APIKey is the bearer token. Use ${OPENAI_API_KEY} in the YAML to
	// pull it from the environment at load time.
	APIKey string `yaml:"api_key"`
	// Model is the model identifier sent with every request.
	Model string `yaml:"model"`
	// MaxCompletionTokens caps the model's output per request.
	MaxCompletionTokens int `yaml:"max_completion_tokens"`
	// TimeoutSec bounds each request end to end (default 120).
	TimeoutSec int `yaml:"timeout_sec"`
}

// Timeout returns the request timeout as a duration.
func (a APIConfig) Timeout() time.Duration {
	if a.TimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(a.TimeoutSec) * time.Second
}

// ListenConfig defines the gateway server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:             "https://api.openai.com/v1",
			Model:               "gpt-5-nano-2025-08-07",
			MaxCompletionTokens: 500,
		},
		Listen:  ListenConfig{Port: 8386},
		DataDir: ".",
	}
}

// Validate reports configuration problems that would prevent startup.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Model == "" {
		return fmt.Errorf("api.model is required")
	}
	if c.API.APIKey == "" {
		return fmt.Errorf("api.api_key is required (set OPENAI_API_KEY and use ${OPENAI_API_KEY})")
	}
	return nil
}
