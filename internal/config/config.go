// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix = "REVIEWPULSE"
	envFile   = ".env"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken      string
	ListenAddr       string
	DBPath           string
	TrackingSince    time.Time
	TrackingUntil    time.Time // Zero means open-ended.
	RefreshCooldown  time.Duration
	RefreshUserDelay time.Duration
	RefreshInterval  time.Duration // Zero disables the scheduled refresh.
	RedisURL         string        // Empty disables the metrics cache.
	MetricsCacheTTL  time.Duration
	LogLevel         slog.Level
	LogFormat        string
	WebhookSecret    string
}

// HasGitHubToken reports whether a GitHub token was configured.
func (c *Config) HasGitHubToken() bool {
	return c.GitHubToken != ""
}

// Load reads configuration from REVIEWPULSE_* environment variables, after
// merging an optional .env file from the working directory. Variables already
// set in the environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		GitHubToken:   v.GetString("github_token"),
		ListenAddr:    v.GetString("listen_addr"),
		DBPath:        v.GetString("db_path"),
		RedisURL:      v.GetString("redis_url"),
		WebhookSecret: v.GetString("webhook_secret"),
	}

	var err error
	if cfg.TrackingSince, err = parseDate(v, "tracking_since"); err != nil {
		return nil, err
	}
	if cfg.TrackingUntil, err = parseDate(v, "tracking_until"); err != nil {
		return nil, err
	}
	if !cfg.TrackingUntil.IsZero() && cfg.TrackingUntil.Before(cfg.TrackingSince) {
		return nil, fmt.Errorf("%s_TRACKING_UNTIL %s is before %s_TRACKING_SINCE %s",
			envPrefix, cfg.TrackingUntil.Format(time.DateOnly), envPrefix, cfg.TrackingSince.Format(time.DateOnly))
	}

	if cfg.RefreshCooldown, err = parseDuration(v, "refresh_cooldown"); err != nil {
		return nil, err
	}
	if cfg.RefreshUserDelay, err = parseDuration(v, "refresh_user_delay"); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = parseDuration(v, "refresh_interval"); err != nil {
		return nil, err
	}
	if cfg.MetricsCacheTTL, err = parseDuration(v, "metrics_cache_ttl"); err != nil {
		return nil, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("%s has invalid level %q: %w", envName("log_level"), v.GetString("log_level"), err)
	}

	cfg.LogFormat = strings.ToLower(v.GetString("log_format"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("%s must be text or json, got %q", envName("log_format"), cfg.LogFormat)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("db_path", "reviewpulse.db")
	v.SetDefault("tracking_since", "2025-10-01")
	v.SetDefault("tracking_until", "")
	v.SetDefault("refresh_cooldown", "10h")
	v.SetDefault("refresh_user_delay", "2s")
	v.SetDefault("refresh_interval", "0s")
	v.SetDefault("redis_url", "")
	v.SetDefault("metrics_cache_ttl", "10m")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("webhook_secret", "")
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(key)
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", envName(key), raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", envName(key), raw)
	}
	return d, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty yields the zero time.
func parseDate(v *viper.Viper, key string) (time.Time, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s has invalid date %q: want YYYY-MM-DD", envName(key), raw)
	}
	return t.UTC(), nil
}
