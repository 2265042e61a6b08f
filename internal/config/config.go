package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".repowatch"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".repowatch/repowatch.db"
	DefaultCursorFile = ".repowatch/cursors.json"

	DefaultIntervalSeconds = 30
	MinIntervalSeconds     = 5
	DefaultGapCap          = 10
)

// Load reads the config file (falling back to defaults if absent) and returns
// a populated Config. The configPath flag may override the default location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("repowatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	if configPath == "" {
		p, err := ConfigPath("")
		if err != nil {
			return err
		}
		configPath = p
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// EnsureDir creates ~/.repowatch if it doesn't exist.
func EnsureDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(home, DefaultConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

// Interval returns the poll interval with the floor applied.
func (p PollConfig) Interval() time.Duration {
	sec := p.IntervalSeconds
	if sec == 0 {
		sec = DefaultIntervalSeconds
	}
	if sec < MinIntervalSeconds {
		sec = MinIntervalSeconds
	}
	return time.Duration(sec) * time.Second
}

// RequestTimeout returns the per-call timeout for remote requests.
func (p PollConfig) RequestTimeout() time.Duration {
	if p.RequestTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// Redacted returns a copy of cfg with every secret masked.
func (c Config) Redacted() Config {
	out := c
	out.GitHub.Tokens = make([]string, len(c.GitHub.Tokens))
	for i, t := range c.GitHub.Tokens {
		if t != "" {
			out.GitHub.Tokens[i] = "ghp-***"
		}
	}
	if out.GitLab.Token != "" {
		out.GitLab.Token = "glpat-***"
	}
	if out.Notify.Telegram.BotToken != "" {
		out.Notify.Telegram.BotToken = "tg-***"
	}
	if out.Notify.Email.Password != "" {
		out.Notify.Email.Password = "***"
	}
	if out.Notify.Webhook.Secret != "" {
		out.Notify.Webhook.Secret = "***"
	}
	if out.Notify.Slack.WebhookURL != "" {
		out.Notify.Slack.WebhookURL = "https://hooks.slack.com/***"
	}
	if out.Database.DSN != "" {
		out.Database.DSN = "***"
	}
	return out
}

// setDefaults populates viper with sensible out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("github.host", "github.com")
	v.SetDefault("gitlab.host", "gitlab.com")

	v.SetDefault("poll.interval_seconds", DefaultIntervalSeconds)
	v.SetDefault("poll.gap_cap", DefaultGapCap)
	v.SetDefault("poll.workers", 1)
	v.SetDefault("poll.enrich_concurrency", 4)
	v.SetDefault("poll.request_timeout_seconds", 15)
	v.SetDefault("poll.feed_size", 30)
	v.SetDefault("poll.run_size", 20)

	v.SetDefault("cursor.backend", "database")
	v.SetDefault("cursor.path", filepath.Join(home, DefaultCursorFile))

	v.SetDefault("render.timezone", "UTC")
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	cfg.Cursor.Path = expandHome(cfg.Cursor.Path, home)
	for k, p := range cfg.Render.Templates {
		cfg.Render.Templates[k] = expandHome(p, home)
	}
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
