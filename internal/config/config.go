// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrAssetSourceRequired is returned when neither ASSET_BASE_URL nor S3 is configured.
	ErrAssetSourceRequired = errors.New("config: ASSET_BASE_URL or S3_BUCKET and S3_REGION are required")
	// ErrInvalidBytesPerSecond is returned when BYTES_PER_SECOND is not positive.
	ErrInvalidBytesPerSecond = errors.New("config: BYTES_PER_SECOND must be positive")
	// ErrInvalidTiming is returned when a timing setting is negative.
	ErrInvalidTiming = errors.New("config: timing settings must not be negative")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Asset settings
	AssetBaseURL         string `env:"ASSET_BASE_URL" json:"asset_base_url,omitempty"`
	CacheDir             string `env:"CACHE_DIR, default=/tmp/guided-audio" json:"cache_dir"`
	BytesPerSecond       int    `env:"BYTES_PER_SECOND, default=16000" json:"bytes_per_second"`
	MaxConcurrentFetches int    `env:"MAX_CONCURRENT_FETCHES, default=8" json:"max_concurrent_fetches"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Layout settings
	PreRollDelay time.Duration `env:"PRE_ROLL_DELAY, default=1s" json:"pre_roll_delay"`
	Preamble     time.Duration `env:"PREAMBLE, default=8s" json:"preamble"`
	FinalSilence time.Duration `env:"FINAL_SILENCE, default=1s" json:"final_silence"`

	// Playback settings
	PollInterval      time.Duration `env:"POLL_INTERVAL, default=250ms" json:"poll_interval"`
	TickInterval      time.Duration `env:"TICK_INTERVAL, default=250ms" json:"tick_interval"`
	StartThreshold    time.Duration `env:"START_THRESHOLD, default=500ms" json:"start_threshold"`
	SeekTolerance     time.Duration `env:"SEEK_TOLERANCE, default=1s" json:"seek_tolerance"`
	LoadTimeout       time.Duration `env:"LOAD_TIMEOUT, default=5s" json:"load_timeout"`
	ResumeLoadTimeout time.Duration `env:"RESUME_LOAD_TIMEOUT, default=3s" json:"resume_load_timeout"`
	SliceRecovery     bool          `env:"SLICE_RECOVERY, default=true" json:"slice_recovery"`
	TextLeadDelay     time.Duration `env:"TEXT_LEAD_DELAY, default=500ms" json:"text_lead_delay"`
	TextFallback      time.Duration `env:"TEXT_FALLBACK, default=8s" json:"text_fallback"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads configuration from environment variables without validating
// it. Tools that do not read assets use it directly.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given. Variables already set in the environment win. A missing file is
// not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := files[:0:0]
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.AssetBaseURL == "" && !c.S3Enabled() {
		return ErrAssetSourceRequired
	}
	if c.BytesPerSecond <= 0 {
		return ErrInvalidBytesPerSecond
	}
	for _, d := range []time.Duration{
		c.PreRollDelay, c.Preamble, c.FinalSilence,
		c.PollInterval, c.TickInterval, c.StartThreshold, c.SeekTolerance,
		c.LoadTimeout, c.ResumeLoadTimeout, c.TextLeadDelay, c.TextFallback,
	} {
		if d < 0 {
			return ErrInvalidTiming
		}
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, AssetBaseURL: %s, CacheDir: %s, BytesPerSecond: %d, MaxConcurrentFetches: %d, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, Preamble: %s, SliceRecovery: %t, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.AssetBaseURL,
		c.CacheDir,
		c.BytesPerSecond,
		c.MaxConcurrentFetches,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.Preamble,
		c.SliceRecovery,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
