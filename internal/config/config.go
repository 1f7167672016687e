// Package config loads pdimport configuration. Precedence, lowest first:
// built-in defaults, pdimport.yaml in the working directory, PDIMPORT_*
// environment variables, command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "pdimport.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "pdimport.yml"

// EnvPrefix is the prefix for environment variable overrides, e.g.
// PDIMPORT_SERVER_PORT=9090.
const EnvPrefix = "PDIMPORT_"

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// StoreConfig holds durable storage settings.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// ImportConfig holds upload tuning.
type ImportConfig struct {
	ChunkSize  int    `koanf:"chunk_size"`
	ImportedBy string `koanf:"imported_by"`
	ServerURL  string `koanf:"server_url"`
}

// ResolveConfig holds entity resolution cache tuning.
type ResolveConfig struct {
	BaseURL     string `koanf:"base_url"`
	Capacity    int    `koanf:"capacity"`
	BatchSize   int    `koanf:"batch_size"`
	Concurrency int    `koanf:"concurrency"`
	MaxRetries  int    `koanf:"max_retries"`
	BaseDelayMS int    `koanf:"base_delay_ms"`
}

// WatchConfig holds watch-mode settings.
type WatchConfig struct {
	Dir        string `koanf:"dir"`
	DebounceMS int    `koanf:"debounce_ms"`
}

// Config is the full pdimport configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Import  ImportConfig  `koanf:"import"`
	Resolve ResolveConfig `koanf:"resolve"`
	Watch   WatchConfig   `koanf:"watch"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.port":           8080,
		"store.path":            "pdimport.db",
		"import.chunk_size":     100,
		"import.imported_by":    "import",
		"import.server_url":     "http://localhost:8080",
		"resolve.capacity":      5000,
		"resolve.batch_size":    100,
		"resolve.concurrency":   5,
		"resolve.max_retries":   2,
		"resolve.base_delay_ms": 500,
		"watch.debounce_ms":     500,
	}
}

// Load assembles the configuration from all sources. dir is where the
// config file is looked up; flags may be nil.
func Load(dir string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(dir); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	// PDIMPORT_RESOLVE_BASE_URL -> resolve.base_url. Section names contain
	// no underscores, so only the first one splits.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(s, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// findConfigFile finds the config file in the given directory.
// Returns empty string if not found.
func findConfigFile(dir string) string {
	yamlPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}

	ymlPath := filepath.Join(dir, ConfigFileNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}

	return ""
}
