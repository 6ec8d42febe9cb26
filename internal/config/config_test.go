package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "ASSET_BASE_URL", "CACHE_DIR", "BYTES_PER_SECOND", "MAX_CONCURRENT_FETCHES",
	"S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_PREFIX", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
	"PRE_ROLL_DELAY", "PREAMBLE", "FINAL_SILENCE",
	"POLL_INTERVAL", "TICK_INTERVAL", "START_THRESHOLD", "SEEK_TOLERANCE",
	"LOAD_TIMEOUT", "RESUME_LOAD_TIMEOUT", "SLICE_RECOVERY", "TEXT_LEAD_DELAY", "TEXT_FALLBACK",
	"LOG_FORMAT", "LOG_LEVEL",
}

// clearEnv unsets every variable the config reads, restoring them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_RequiresAssetSource(t *testing.T) {
	t.Run("no source returns error", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAssetSourceRequired)
	})

	t.Run("bucket without region returns error", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("S3_BUCKET", "assets")

		_, err := Load()
		assert.ErrorIs(t, err, ErrAssetSourceRequired)
	})

	t.Run("base URL succeeds", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ASSET_BASE_URL", "https://cdn.example.com/audio")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/audio", cfg.AssetBaseURL)
	})

	t.Run("S3 succeeds", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("S3_BUCKET", "assets")
		t.Setenv("S3_REGION", "eu-west-1")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.S3Enabled())
	})
}

func TestParse_SkipsValidation(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Empty(t, cfg.AssetBaseURL)
	assert.Equal(t, 16000, cfg.BytesPerSecond)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSET_BASE_URL", "https://cdn.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/tmp/guided-audio", cfg.CacheDir)
	assert.Equal(t, 16000, cfg.BytesPerSecond)
	assert.Equal(t, 8, cfg.MaxConcurrentFetches)
	assert.Equal(t, time.Second, cfg.PreRollDelay)
	assert.Equal(t, 8*time.Second, cfg.Preamble)
	assert.Equal(t, time.Second, cfg.FinalSilence)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.StartThreshold)
	assert.Equal(t, time.Second, cfg.SeekTolerance)
	assert.Equal(t, 5*time.Second, cfg.LoadTimeout)
	assert.Equal(t, 3*time.Second, cfg.ResumeLoadTimeout)
	assert.True(t, cfg.SliceRecovery)
	assert.Equal(t, 500*time.Millisecond, cfg.TextLeadDelay)
	assert.Equal(t, 8*time.Second, cfg.TextFallback)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("CACHE_DIR", "/custom/cache")
	t.Setenv("BYTES_PER_SECOND", "24000")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("S3_PREFIX", "audio/")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("PREAMBLE", "6s")
	t.Setenv("SEEK_TOLERANCE", "1500ms")
	t.Setenv("SLICE_RECOVERY", "false")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/custom/cache", cfg.CacheDir)
	assert.Equal(t, 24000, cfg.BytesPerSecond)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "http://localhost:9000", cfg.S3Endpoint)
	assert.Equal(t, "audio/", cfg.S3Prefix)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, 6*time.Second, cfg.Preamble)
	assert.Equal(t, 1500*time.Millisecond, cfg.SeekTolerance)
	assert.False(t, cfg.SliceRecovery)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSET_BASE_URL", "https://cdn.example.com")
	t.Setenv("PORT", "not-a-number")

	// go-envconfig returns an error when parsing fails
	_, err := Load()
	require.Error(t, err)

	clearEnv(t)
	t.Setenv("ASSET_BASE_URL", "https://cdn.example.com")
	t.Setenv("PREAMBLE", "eight seconds")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ASSET_BASE_URL=https://dotenv.example.com\nPORT=9090\n"), 0o600))
	t.Setenv("PORT", "7070")

	require.NoError(t, LoadDotEnv(path))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://dotenv.example.com", cfg.AssetBaseURL)
	// Existing variables are not overridden
	assert.Equal(t, 7070, cfg.Port)

	// Missing files are ignored
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		AssetBaseURL:       "https://cdn.example.com",
		CacheDir:           "/tmp/test",
		BytesPerSecond:     16000,
		S3Bucket:           "bucket",
		S3Region:           "region",
		AWSAccessKeyID:     "access-id",
		AWSSecretAccessKey: "secret-key",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "https://cdn.example.com")
	assert.Contains(t, str, "/tmp/test")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-key")
	assert.NotContains(t, str, "access-id")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{
		LogFormat: "json",
		LogLevel:  "info",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))

	// Capture output to verify it's JSON
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	testLogger := slog.New(handler)
	testLogger.Info("test message")

	assert.Contains(t, buf.String(), `"msg"`)
	assert.Contains(t, buf.String(), "test message")
}

func TestConfig_NewLogger_Text(t *testing.T) {
	cfg := &Config{
		LogFormat: "text",
		LogLevel:  "debug",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{AssetBaseURL: "https://cdn.example.com", BytesPerSecond: 16000}
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing asset source", func(t *testing.T) {
		cfg := valid()
		cfg.AssetBaseURL = ""
		assert.ErrorIs(t, cfg.Validate(), ErrAssetSourceRequired)
	})

	t.Run("zero bytes per second", func(t *testing.T) {
		cfg := valid()
		cfg.BytesPerSecond = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidBytesPerSecond)
	})

	t.Run("negative timing", func(t *testing.T) {
		cfg := valid()
		cfg.Preamble = -time.Second
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidTiming)
	})
}
