package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/guided-audio/internal/asset"
)

func TestNewDiskCache(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "cache")

		cache, err := NewDiskCache(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, cache.Dir())

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		cache, err := NewDiskCache("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(os.TempDir(), "guided-audio"), cache.Dir())
	})
}

func TestDiskCache_PutGet(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("miss before put", func(t *testing.T) {
		_, err := cache.Get(ctx, "silence/silence-5s.mp3")
		assert.ErrorIs(t, err, asset.ErrCacheMiss)
	})

	t.Run("round trip with nested key", func(t *testing.T) {
		require.NoError(t, cache.Put(ctx, "silence/silence-5s.mp3", []byte("frames")))

		data, err := cache.Get(ctx, "silence/silence-5s.mp3")
		require.NoError(t, err)
		assert.Equal(t, []byte("frames"), data)

		_, err = os.Stat(filepath.Join(cache.Dir(), "silence", "silence-5s.mp3"))
		assert.NoError(t, err)
	})

	t.Run("put replaces existing value", func(t *testing.T) {
		require.NoError(t, cache.Put(ctx, "tones/open.mp3", []byte("v1")))
		require.NoError(t, cache.Put(ctx, "tones/open.mp3", []byte("v2")))

		data, err := cache.Get(ctx, "tones/open.mp3")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), data)
	})

	t.Run("traversal stays inside root", func(t *testing.T) {
		require.NoError(t, cache.Put(ctx, "../../escape.mp3", []byte("x")))
		_, err := os.Stat(filepath.Join(cache.Dir(), "escape.mp3"))
		assert.NoError(t, err)
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		err := cache.Put(ctx, "", []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestDiskCache_Remove(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "a.mp3", []byte("a")))
	require.NoError(t, cache.Put(ctx, "b/c.mp3", []byte("c")))

	require.NoError(t, cache.Remove(ctx, []string{"a.mp3", "b/c.mp3", "missing.mp3"}))

	_, err = cache.Get(ctx, "a.mp3")
	assert.ErrorIs(t, err, asset.ErrCacheMiss)
	_, err = cache.Get(ctx, "b/c.mp3")
	assert.ErrorIs(t, err, asset.ErrCacheMiss)
}

func TestDiskCache_RespectsContextCancellation(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = cache.Get(ctx, "a.mp3")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.ErrorIs(t, cache.Put(ctx, "a.mp3", nil), context.Canceled)
	assert.ErrorIs(t, cache.Remove(ctx, []string{"a.mp3"}), context.Canceled)
}
