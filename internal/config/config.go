// Package config loads server configuration in three layers, lowest
// priority first: built-in defaults, an optional YAML file, then
// environment variables — the same precedence cartographus's
// LoadWithKoanf uses, scaled down to this server's much smaller
// surface.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names a config file that is tried before the paths
// below; if that file does not exist, the paths below are searched.
const ConfigPathEnvVar = "KARAOKE_CONFIG_PATH"

// DefaultConfigPaths are searched, in order, when ConfigPathEnvVar is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/karaoke-party/config.yaml",
}

// Config is the full set of server settings.
type Config struct {
	Listen string `koanf:"listen"`

	CatalogPath     string `koanf:"catalog_path"`
	PlaylistPath    string `koanf:"playlist_path"`
	AdminPassword   string `koanf:"admin_password"`
	MediaRoot       string `koanf:"media_root"`

	SongLogPath       string `koanf:"song_log_path"`
	BugLogPath        string `koanf:"bug_log_path"`
	SuggestionLogPath string `koanf:"suggestion_log_path"`

	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
	RateLimitRequests  int      `koanf:"rate_limit_requests"`
	RateLimitWindow    time.Duration `koanf:"rate_limit_window"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"` // "console" or "json"

	MetricsListen string `koanf:"metrics_listen"`
}

func defaults() *Config {
	return &Config{
		Listen: ":8080",

		CatalogPath:  "./catalog.sqlite3",
		PlaylistPath: "./data/playlist.json",
		MediaRoot:    "./media",

		SongLogPath:       "./data/songs.csv",
		BugLogPath:        "./data/bugs.csv",
		SuggestionLogPath: "./data/suggestions.csv",

		CORSAllowedOrigins: []string{"*"},
		RateLimitRequests:  100,
		RateLimitWindow:    time.Minute,

		LogLevel:  "info",
		LogFormat: "console",

		MetricsListen: ":9090",
	}
}

// Load builds the Config by layering defaults, an optional YAML file,
// and environment variables (highest priority), in that order.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("KARAOKE_", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps KARAOKE_ADMIN_PASSWORD -> admin_password, etc.
func envTransform(s string) string {
	s = strings.TrimPrefix(s, "KARAOKE_")
	return strings.ToLower(s)
}

// Validate rejects configurations that would make the server
// unsafe or nonsensical to start.
func (c *Config) Validate() error {
	if c.AdminPassword == "" {
		return fmt.Errorf("admin_password must be set")
	}
	if c.CatalogPath == "" {
		return fmt.Errorf("catalog_path must be set")
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("rate_limit_requests must be positive")
	}
	return nil
}
