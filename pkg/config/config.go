package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultAPIURL  = "https://api.mangadex.org"
	DefaultAuthURL = "https://auth.mangadex.org/realms/mangadex/protocol/openid-connect"

	SnapshotStoreFile   = "file"
	SnapshotStoreDuckDB = "duckdb"
)

// Config holds everything the CLI needs to build a controller.
type Config struct {
	APIURL        string        `mapstructure:"api_url"`
	AuthURL       string        `mapstructure:"auth_url"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	DataDir       string        `mapstructure:"data_dir"`
	LogLevel      string        `mapstructure:"log_level"`
	Debug         bool          `mapstructure:"debug"`
	RateLimit     float64       `mapstructure:"rate_limit"` // requests per second, 0 disables pacing
	Timeout       time.Duration `mapstructure:"timeout"`
	RefreshMargin time.Duration `mapstructure:"refresh_margin"`
	SnapshotStore string        `mapstructure:"snapshot_store"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
}

// SetDefaults registers every key on v so env overrides and Unmarshal see it.
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("api_url", DefaultAPIURL)
	v.SetDefault("auth_url", DefaultAuthURL)
	v.SetDefault("client_id", "")
	v.SetDefault("client_secret", "")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("data_dir", filepath.Join(home, ".mdbulk"))
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)
	v.SetDefault("rate_limit", 4.0)
	v.SetDefault("timeout", 60*time.Second)
	v.SetDefault("refresh_margin", 5*time.Second)
	v.SetDefault("snapshot_store", SnapshotStoreFile)
	v.SetDefault("metrics_addr", "")
}

// Load reads config.yaml (from path, or the usual locations) and MDBULK_*
// environment variables. A missing config file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "mdbulk"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MDBULK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	for key, raw := range map[string]string{"api_url": c.APIURL, "auth_url": c.AuthURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
		}
	}
	switch c.SnapshotStore {
	case SnapshotStoreFile, SnapshotStoreDuckDB:
	default:
		return fmt.Errorf("snapshot_store must be %q or %q, got %q", SnapshotStoreFile, SnapshotStoreDuckDB, c.SnapshotStore)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}
	if c.RefreshMargin < 0 {
		return fmt.Errorf("refresh_margin cannot be negative")
	}
	return nil
}

func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "mdbulk.db")
}

func (c *Config) SnapshotDir() string {
	return filepath.Join(c.DataDir, "edits")
}
