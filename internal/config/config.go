// Package config loads tracker settings from defaults, a TOML file, a .env
// file and FOODMOMENT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// FOODMOMENT_API_URL for api.url.
const EnvPrefix = "FOODMOMENT"

// Config holds all tracker settings.
type Config struct {
	DBPath    string
	API       APIConfig
	Sync      SyncConfig
	Dashboard DashboardConfig
	Queue     QueueConfig
	Log       LogConfig
	Classify  ClassifyConfig

	// File is the config file that was read, if any.
	File string
}

// APIConfig configures the backend client.
type APIConfig struct {
	URL        string
	Token      string
	Timeout    time.Duration
	MinVersion string
}

// SyncConfig configures when sync passes run.
type SyncConfig struct {
	// Auto runs an opportunistic pass after every local write.
	Auto          bool
	ProbeInterval time.Duration
}

// DashboardConfig configures the daemon's WebSocket feed.
type DashboardConfig struct {
	Enabled bool
	Host    string
	Port    int
}

// QueueConfig configures the unlock notification queue.
type QueueConfig struct {
	SettleDelay time.Duration
}

// LogConfig configures daemon logging.
type LogConfig struct {
	// File enables rotating file output when set.
	File string
}

// ClassifyConfig configures photo classification.
type ClassifyConfig struct {
	AnthropicAPIKey string
	Model           string
}

// DefaultDir returns ~/.foodmoment, or .foodmoment when the home directory
// cannot be determined.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".foodmoment"
	}
	return filepath.Join(home, ".foodmoment")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.toml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", filepath.Join(DefaultDir(), "foodmoment.db"))
	v.SetDefault("api.url", "http://localhost:8000")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.min_version", "")
	v.SetDefault("sync.auto", true)
	v.SetDefault("sync.probe_interval", "30s")
	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.host", "127.0.0.1")
	v.SetDefault("dashboard.port", 7420)
	v.SetDefault("queue.settle_delay", "400ms")
	v.SetDefault("log.file", "")
	v.SetDefault("classify.anthropic_api_key", "")
	v.SetDefault("classify.model", "claude-sonnet-4-5")
}

// Load reads configuration. path names the TOML file; an empty path uses
// DefaultPath, and a missing file is not an error. envFiles are loaded with
// godotenv before environment lookups; when none are given ".env" in the
// working directory is tried. Variables already set in the environment win
// over .env entries.
func Load(path string, envFiles ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		cfg.File = path
	} else if explicit && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg.DBPath = expandHome(v.GetString("db_path"))
	cfg.API = APIConfig{
		URL:        v.GetString("api.url"),
		Token:      v.GetString("api.token"),
		Timeout:    v.GetDuration("api.timeout"),
		MinVersion: v.GetString("api.min_version"),
	}
	cfg.Sync = SyncConfig{
		Auto:          v.GetBool("sync.auto"),
		ProbeInterval: v.GetDuration("sync.probe_interval"),
	}
	cfg.Dashboard = DashboardConfig{
		Enabled: v.GetBool("dashboard.enabled"),
		Host:    v.GetString("dashboard.host"),
		Port:    v.GetInt("dashboard.port"),
	}
	cfg.Queue = QueueConfig{SettleDelay: v.GetDuration("queue.settle_delay")}
	cfg.Log = LogConfig{File: expandHome(v.GetString("log.file"))}
	cfg.Classify = ClassifyConfig{
		AnthropicAPIKey: v.GetString("classify.anthropic_api_key"),
		Model:           v.GetString("classify.model"),
	}
	if cfg.Classify.AnthropicAPIKey == "" {
		cfg.Classify.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail much later.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if c.Sync.ProbeInterval <= 0 {
		return fmt.Errorf("sync.probe_interval must be positive")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d out of range", c.Dashboard.Port)
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// WriteFile writes cfg as a TOML file at path, creating parent directories.
// The API token and API key are left out; supply them through the
// environment.
func WriteFile(path string, cfg *Config) error {
	doc := map[string]interface{}{
		"db_path": cfg.DBPath,
		"api": map[string]interface{}{
			"url":         cfg.API.URL,
			"timeout":     cfg.API.Timeout.String(),
			"min_version": cfg.API.MinVersion,
		},
		"sync": map[string]interface{}{
			"auto":           cfg.Sync.Auto,
			"probe_interval": cfg.Sync.ProbeInterval.String(),
		},
		"dashboard": map[string]interface{}{
			"enabled": cfg.Dashboard.Enabled,
			"host":    cfg.Dashboard.Host,
			"port":    cfg.Dashboard.Port,
		},
		"queue": map[string]interface{}{
			"settle_delay": cfg.Queue.SettleDelay.String(),
		},
		"log": map[string]interface{}{
			"file": cfg.Log.File,
		},
		"classify": map[string]interface{}{
			"model": cfg.Classify.Model,
		},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
