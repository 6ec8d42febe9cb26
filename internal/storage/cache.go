package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maauso/guided-audio/internal/asset"
)

// ErrInvalidKey is returned when an asset key cannot be mapped to a cache path.
var ErrInvalidKey = errors.New("storage: invalid asset key")

// DiskCache implements asset.Cache on local disk. Keys map to files below a
// root directory, so "silence/silence-5s.mp3" is stored at
// <root>/silence/silence-5s.mp3.
type DiskCache struct {
	dir string
}

// NewDiskCache creates a new DiskCache instance.
// If dir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "guided-audio")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache root directory.
func (c *DiskCache) Dir() string {
	return c.dir
}

// Get returns the cached bytes for key or asset.ErrCacheMiss.
func (c *DiskCache) Get(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	p, ok := keyPath(c.dir, key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	data, err := os.ReadFile(p) // #nosec G304 - path is confined to the cache root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, asset.ErrCacheMiss
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return data, nil
}

// Put stores data under key. The write goes to a temporary file that is
// renamed into place so readers never observe a partial asset.
func (c *DiskCache) Put(ctx context.Context, key string, data []byte) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	p, ok := keyPath(c.dir, key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return fmt.Errorf("create cache subdirectory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(p), filepath.Base(p)+"_*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Remove deletes the given keys from the cache.
// It continues even if some entries fail to delete,
// returning the first error encountered.
func (c *DiskCache) Remove(ctx context.Context, keys []string) error {
	var firstErr error
	for _, k := range keys {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		p, ok := keyPath(c.dir, k)
		if !ok {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove cache file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// Verify interface implementation at compile time.
var _ asset.Cache = (*DiskCache)(nil)
