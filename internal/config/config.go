// Package config handles Nimbus configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/nimbus/config.yaml, /etc/nimbus/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "nimbus", "config.yaml"))
	}

	paths = append(paths, "/etc/nimbus/config.yaml")
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

// Config holds all Nimbus configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	LLM       LLMConfig       `yaml:"llm"`
	Weather   WeatherConfig   `yaml:"weather"`
	Gazetteer GazetteerConfig `yaml:"gazetteer"`
	Session   SessionConfig   `yaml:"session"`
	Archive   ArchiveConfig   `yaml:"archive"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig defines the completion service connection.
type LLMConfig struct {
	// URL is the Ollama base URL (default http://localhost:11434).
	URL string `yaml:"url"`
	// Model is the model used for agent decisions.
	Model string `yaml:"model"`
	// TimeoutSec bounds a single completion call (default 120).
	TimeoutSec int `yaml:"timeout_sec"`
}

// WeatherConfig defines the weather provider connection.
type WeatherConfig struct {
	// BaseURL is the provider root (e.g. https://devapi.qweather.com).
	BaseURL string `yaml:"base_url"`
	// APIKey authenticates forecast requests. Supports ${ENV} expansion.
	APIKey string `yaml:"api_key"`
	// TimeoutSec bounds a single forecast call (default 10).
	TimeoutSec int `yaml:"timeout_sec"`
	// Retries is the retry count on transient dial errors (default 2).
	Retries int `yaml:"retries"`
}

// GazetteerConfig defines the city reference table.
type GazetteerConfig struct {
	// CSVPath points at the QWeather China-City-List CSV. The process
	// refuses to start without a loadable gazetteer.
	CSVPath string `yaml:"csv_path"`
	// HotCities overrides the default candidate list offered when
	// city extraction fails.
	HotCities []string `yaml:"hot_cities"`
}

// SessionConfig tunes the in-memory session store.
type SessionConfig struct {
	// MaxMessages is the raw-message count retained per session; older
	// messages fold into the rolling summary (default 10).
	MaxMessages int `yaml:"max_messages"`
	// TTLMinutes expires untouched sessions (default 120).
	TTLMinutes int `yaml:"ttl_minutes"`
}

// ArchiveConfig defines the optional SQLite turn archive.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default nimbus-archive.db
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
		Listen: ListenConfig{Port: 14567},
		LLM: LLMConfig{
			URL:        "http://localhost:11434",
			Model:      "qwen3:4b",
			TimeoutSec: 120,
		},
		Weather: WeatherConfig{
			BaseURL:    "https://devapi.qweather.com",
			TimeoutSec: 10,
			Retries:    2,
		},
		Gazetteer: GazetteerConfig{
			CSVPath: "assets/China-City-List-latest.csv",
		},
		Session: SessionConfig{
			MaxMessages: 10,
			TTLMinutes:  120,
		},
		Archive: ArchiveConfig{
			Path: "nimbus-archive.db",
		},
	}
}
