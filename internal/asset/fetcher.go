package asset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/guided-audio/internal/metrics"
)

// Fetcher resolves sets of asset references, consulting the cache before the
// source and fetching all unique keys in parallel.
type Fetcher struct {
	source        Source
	cache         Cache
	logger        *slog.Logger
	maxConcurrent int
}

// FetcherOption is a function that configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithCache sets the persistent cache consulted before the source.
func WithCache(c Cache) FetcherOption {
	return func(f *Fetcher) {
		f.cache = c
	}
}

// WithMaxConcurrent limits the number of in-flight fetches.
func WithMaxConcurrent(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxConcurrent = n
		}
	}
}

// NewFetcher creates a Fetcher over source.
func NewFetcher(source Source, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		source:        source,
		logger:        logger,
		maxConcurrent: 8,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll resolves every unique key in refs and returns the buffers keyed by
// asset key. A clip that cannot be retrieved aborts the whole call with an
// error wrapping ErrCriticalAsset. Filler and tone failures are logged and the
// key is left out of the result.
func (f *Fetcher) FetchAll(ctx context.Context, refs []Ref) (map[string][]byte, error) {
	unique := Unique(refs)

	var mu sync.Mutex
	buffers := make(map[string][]byte, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxConcurrent)

	for _, ref := range unique {
		g.Go(func() error {
			data, err := f.fetchOne(gctx, ref)
			if err != nil {
				metrics.AssetFailures.WithLabelValues(string(ref.Kind), strconv.FormatBool(ref.Critical())).Inc()
				if ref.Critical() {
					return fmt.Errorf("%w: %s: %w", ErrCriticalAsset, ref.Key, err)
				}
				if gctx.Err() == nil {
					f.logger.Warn("non-critical asset unavailable, omitting",
						slog.String("key", ref.Key),
						slog.String("kind", string(ref.Kind)),
						slog.String("error", err.Error()),
					)
				}
				return nil
			}

			mu.Lock()
			buffers[ref.Key] = data
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buffers, nil
}

// fetchOne resolves a single asset, cache first.
func (f *Fetcher) fetchOne(ctx context.Context, ref Ref) ([]byte, error) {
	if f.cache != nil {
		data, err := f.cache.Get(ctx, ref.Key)
		if err == nil && len(data) > 0 {
			metrics.AssetFetches.WithLabelValues(string(ref.Kind), "cache").Inc()
			return data, nil
		}
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			f.logger.Debug("cache read failed",
				slog.String("key", ref.Key),
				slog.String("error", err.Error()),
			)
		}
	}

	data, err := f.source.Fetch(ctx, ref.Key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyAsset, ref.Key)
	}
	metrics.AssetFetches.WithLabelValues(string(ref.Kind), "remote").Inc()

	if f.cache != nil {
		if err := f.cache.Put(ctx, ref.Key, data); err != nil {
			f.logger.Warn("failed to cache asset",
				slog.String("key", ref.Key),
				slog.String("error", err.Error()),
			)
		}
	}
	return data, nil
}

// Unique returns refs with duplicate keys removed, preserving first-seen
// order. If the same key appears with different kinds, a clip wins so the
// criticality of the strictest use is kept.
func Unique(refs []Ref) []Ref {
	index := make(map[string]int, len(refs))
	out := make([]Ref, 0, len(refs))
	for _, r := range refs {
		if i, ok := index[r.Key]; ok {
			if r.Critical() {
				out[i].Kind = r.Kind
			}
			continue
		}
		index[r.Key] = len(out)
		out = append(out, r)
	}
	return out
}
