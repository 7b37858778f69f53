// Package config loads settings from defaults, an optional codepocket.yaml
// and CODEPOCKET_* environment variables, in increasing precedence.
//
// Keys use dots in the file and underscores in the environment:
//
//	server.addr   ↔ CODEPOCKET_SERVER_ADDR
//	sync.delay    ↔ CODEPOCKET_SYNC_DELAY
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sakif/codepocket/internal/logging"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "CODEPOCKET"

// Config is the resolved configuration.
type Config struct {
	DataDir string
	// DBPath is the sqlite database (primary storage).
	DBPath string
	// FallbackPath is the JSON file used when sqlite is unusable.
	FallbackPath string

	Addr         string
	SecureCookie bool
	// JWTSecret signs local API sessions. Empty means a random per-process
	// secret.
	JWTSecret string

	APIBaseURL     string
	GitHubClientID string
	SyncDelay      time.Duration
	HTTPTimeout    time.Duration

	// InboxDir is watched for captured snippets. Empty disables the watcher.
	InboxDir string

	Log logging.Config
}

// New returns a viper instance with defaults and environment binding set
// up. The CLI binds its persistent flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("db_path", "")
	v.SetDefault("fallback_path", "")
	v.SetDefault("server.addr", "127.0.0.1:8787")
	v.SetDefault("server.secure_cookie", false)
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.client_id", "")
	v.SetDefault("github.timeout", 30*time.Second)
	v.SetDefault("sync.delay", 2*time.Second)
	v.SetDefault("inbox.dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file and resolves v into a Config. With an empty
// file it looks for codepocket.yaml in the data directory and the working
// directory; a missing file is fine, a broken one is not.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("codepocket")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("data_dir"))
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading %s: %w", orName(file), err)
		}
	}

	cfg := &Config{
		DataDir:        v.GetString("data_dir"),
		DBPath:         v.GetString("db_path"),
		FallbackPath:   v.GetString("fallback_path"),
		Addr:           v.GetString("server.addr"),
		SecureCookie:   v.GetBool("server.secure_cookie"),
		JWTSecret:      v.GetString("server.jwt_secret"),
		APIBaseURL:     strings.TrimRight(v.GetString("github.api_url"), "/"),
		GitHubClientID: v.GetString("github.client_id"),
		HTTPTimeout:    v.GetDuration("github.timeout"),
		SyncDelay:      v.GetDuration("sync.delay"),
		InboxDir:       v.GetString("inbox.dir"),
		Log: logging.Config{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "codepocket.db")
	}
	if cfg.FallbackPath == "" {
		cfg.FallbackPath = filepath.Join(cfg.DataDir, "codepocket.json")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.SyncDelay <= 0 {
		return fmt.Errorf("config: sync.delay must be positive, got %s", c.SyncDelay)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("config: github.timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		return errors.New("config: server.jwt_secret must be at least 16 characters")
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "codepocket")
	}
	return ".codepocket"
}

func orName(file string) string {
	if file == "" {
		return "codepocket.yaml"
	}
	return file
}
