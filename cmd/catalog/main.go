// Package main renders the silence catalog and tone cues, and optionally
// transcodes a directory of narration clips, into the shared stream format.
// Output goes to a local directory or, when S3 is configured, to the bucket
// the server reads from.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maauso/guided-audio/internal/audio"
	"github.com/maauso/guided-audio/internal/config"
	"github.com/maauso/guided-audio/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	outDir := flag.String("out", "", "write assets under this directory instead of S3")
	clipsDir := flag.String("clips", "", "directory of narration clips to transcode")
	clipsPrefix := flag.String("clips-prefix", "clips", "key prefix for transcoded clips")
	ffmpegPath := flag.String("ffmpeg", "", "path to the ffmpeg binary")
	sampleRate := flag.Int("sample-rate", 44100, "output sample rate in Hz")
	workers := flag.Int("workers", 4, "concurrent ffmpeg runs")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Parse()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	sink, err := openSink(cfg, *outDir)
	if err != nil {
		return err
	}

	enc, err := audio.NewFFmpegEncoder(*ffmpegPath, audio.Format{
		BytesPerSecond: cfg.BytesPerSecond,
		SampleRate:     *sampleRate,
	})
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub := audio.NewPublisher(enc, sink, logger, audio.WithWorkers(*workers))
	if err := pub.Silence(ctx); err != nil {
		return fmt.Errorf("render silence catalog: %w", err)
	}
	if err := pub.Tones(ctx); err != nil {
		return fmt.Errorf("render tones: %w", err)
	}
	if *clipsDir != "" {
		keys, err := pub.Clips(ctx, *clipsDir, *clipsPrefix)
		if err != nil {
			return fmt.Errorf("transcode clips: %w", err)
		}
		logger.Info("clips published", slog.Int("count", len(keys)))
	}

	logger.Info("catalog published")
	return nil
}

func openSink(cfg *config.Config, outDir string) (audio.Sink, error) {
	if outDir != "" {
		return storage.NewDiskCache(outDir)
	}
	if !cfg.S3Enabled() {
		return nil, errors.New("either -out or S3_BUCKET and S3_REGION are required")
	}
	return storage.NewS3Source(storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Prefix:          cfg.S3Prefix,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
}
