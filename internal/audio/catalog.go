package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/guided-audio/internal/asset"
	"github.com/maauso/guided-audio/internal/silence"
)

// Tone cue settings.
const (
	ToneSeconds     = 2.0
	openingToneFreq = 660.0
	closingToneFreq = 440.0
)

// Publisher renders the asset catalog and stores it in a Sink.
type Publisher struct {
	encoder Encoder
	sink    Sink
	logger  *slog.Logger
	workers int
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithWorkers bounds concurrent encoder runs. Values below 1 are ignored.
func WithWorkers(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.workers = n
		}
	}
}

// NewPublisher creates a new Publisher.
func NewPublisher(encoder Encoder, sink Sink, logger *slog.Logger, opts ...PublisherOption) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{encoder: encoder, sink: sink, logger: logger, workers: 4}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Silence renders every silence block size of the catalog.
func (p *Publisher) Silence(ctx context.Context) error {
	jobs := make(map[string]func(context.Context) ([]byte, error), len(silence.Blocks))
	for _, size := range silence.Blocks {
		jobs[silence.Block{Seconds: size}.Key()] = func(ctx context.Context) ([]byte, error) {
			return p.encoder.Silence(ctx, size)
		}
	}
	return p.run(ctx, jobs)
}

// Tones renders the opening and closing cues.
func (p *Publisher) Tones(ctx context.Context) error {
	return p.run(ctx, map[string]func(context.Context) ([]byte, error){
		asset.OpeningTone: func(ctx context.Context) ([]byte, error) {
			return p.encoder.Tone(ctx, ToneSeconds, openingToneFreq)
		},
		asset.ClosingTone: func(ctx context.Context) ([]byte, error) {
			return p.encoder.Tone(ctx, ToneSeconds, closingToneFreq)
		},
	})
}

// Clips transcodes every audio file directly under dir and stores it as
// prefix/<name>.mp3. It returns the stored keys.
func (p *Publisher) Clips(ctx context.Context, dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read clip directory: %w", err)
	}

	jobs := make(map[string]func(context.Context) ([]byte, error))
	var keys []string
	for _, entry := range entries {
		if entry.IsDir() || !isAudioFile(entry.Name()) {
			continue
		}
		input := filepath.Join(dir, entry.Name())
		key := ClipKey(prefix, entry.Name())
		jobs[key] = func(ctx context.Context) ([]byte, error) {
			return p.encoder.Transcode(ctx, input)
		}
		keys = append(keys, key)
	}
	if err := p.run(ctx, jobs); err != nil {
		return nil, err
	}
	return keys, nil
}

// ClipKey maps a source file name to its catalog key.
func ClipKey(prefix, name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name)) + ".mp3"
	if prefix == "" {
		return base
	}
	return strings.TrimSuffix(prefix, "/") + "/" + base
}

func (p *Publisher) run(ctx context.Context, jobs map[string]func(context.Context) ([]byte, error)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for key, render := range jobs {
		g.Go(func() error {
			data, err := render(ctx)
			if err != nil {
				return fmt.Errorf("render %s: %w", key, err)
			}
			if err := p.sink.Put(ctx, key, data); err != nil {
				return fmt.Errorf("store %s: %w", key, err)
			}
			p.logger.Info("asset published",
				slog.String("key", key),
				slog.Int("bytes", len(data)),
			)
			return nil
		})
	}
	return g.Wait()
}

func isAudioFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac", ".aac":
		return true
	default:
		return false
	}
}
