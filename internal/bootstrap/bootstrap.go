// Package bootstrap provides dependency initialization for the guided audio service.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/guided-audio/internal/asset"
	"github.com/maauso/guided-audio/internal/compose"
	"github.com/maauso/guided-audio/internal/config"
	"github.com/maauso/guided-audio/internal/playback"
	"github.com/maauso/guided-audio/internal/session"
	"github.com/maauso/guided-audio/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server and
// the player CLI.
type Dependencies struct {
	Compositor *compose.Compositor
	Manager    *session.Manager
	Blobs      *playback.BlobStore
	// Defaults is the stream layout applied when a request omits it.
	Defaults compose.Options
	// NewPlayer builds a playback engine on the configured device.
	NewPlayer func() session.Player
}

// Option configures NewDependencies.
type Option func(*options)

type options struct {
	device playback.Device
	source asset.Source
}

// WithDevice replaces the default virtual clock device. The player CLI uses
// it to play through a real output.
func WithDevice(d playback.Device) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithSource replaces the configured asset source.
func WithSource(s asset.Source) Option {
	return func(o *options) {
		o.source = s
	}
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Dependencies, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// Initialize asset source
	source := o.source
	if source == nil {
		var err error
		source, err = initSource(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	// Initialize persistent cache
	cache, err := storage.NewDiskCache(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("create asset cache: %w", err)
	}
	logger.Info("asset cache configured", slog.String("cache_dir", cfg.CacheDir))

	fetcher := asset.NewFetcher(source, logger,
		asset.WithCache(cache),
		asset.WithMaxConcurrent(cfg.MaxConcurrentFetches),
	)
	compositor := compose.New(fetcher, cfg.BytesPerSecond, logger)

	// Initialize playback
	device := o.device
	if device == nil {
		device = playback.NewVirtualDevice(cfg.BytesPerSecond)
	}
	blobs := playback.NewBlobStore()
	engineCfg := EngineConfig(cfg)
	newPlayer := func() session.Player {
		return playback.NewEngine(device, blobs, engineCfg, logger)
	}

	// Initialize session manager
	manager := session.NewManager(
		session.NewMemoryRepository(),
		compositor,
		newPlayer,
		SessionConfig(cfg),
		logger,
	)

	return &Dependencies{
		Compositor: compositor,
		Manager:    manager,
		Blobs:      blobs,
		Defaults:   ComposeOptions(cfg),
		NewPlayer:  newPlayer,
	}, nil
}

// ComposeOptions converts the configured layout to compositor options.
func ComposeOptions(cfg *config.Config) compose.Options {
	return compose.Options{
		PreRollDelay: cfg.PreRollDelay.Seconds(),
		Preamble:     cfg.Preamble.Seconds(),
		FinalSilence: cfg.FinalSilence.Seconds(),
	}
}

// EngineConfig converts the configured playback tuning to engine settings.
func EngineConfig(cfg *config.Config) playback.Config {
	return playback.Config{
		PollInterval:      cfg.PollInterval,
		StartThreshold:    cfg.StartThreshold,
		SeekTolerance:     cfg.SeekTolerance,
		LoadTimeout:       cfg.LoadTimeout,
		ResumeLoadTimeout: cfg.ResumeLoadTimeout,
		SliceRecovery:     cfg.SliceRecovery,
	}
}

// SessionConfig converts the configured session timers.
func SessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		TickInterval:  cfg.TickInterval,
		TextLeadDelay: cfg.TextLeadDelay,
		TextFallback:  cfg.TextFallback,
	}
}

// initSource creates the asset source based on configuration. S3 wins when
// both are configured.
func initSource(cfg *config.Config, logger *slog.Logger) (asset.Source, error) {
	if cfg.S3Enabled() {
		src, err := storage.NewS3Source(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 source: %w", err)
		}
		logger.Info("S3 asset source configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return src, nil
	}

	src, err := asset.NewHTTPSource(cfg.AssetBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create HTTP source: %w", err)
	}
	logger.Info("HTTP asset source configured",
		slog.String("base_url", cfg.AssetBaseURL),
	)
	return src, nil
}

