// Package asset resolves narration clips, silence fillers and tone cues to
// raw encoded bytes. It defines the Source and Cache ports and the parallel
// Fetcher that composes them.
package asset

import (
	"context"
	"errors"
)

// Kind classifies an asset by the role it plays in a composed stream.
type Kind string

const (
	// KindTone is an opening or closing cue.
	KindTone Kind = "tone"
	// KindSilence is a pre-rendered silence filler block.
	KindSilence Kind = "silence"
	// KindClip is a narration clip.
	KindClip Kind = "clip"
)

// Tone cue keys.
const (
	OpeningTone = "tones/open.mp3"
	ClosingTone = "tones/close.mp3"
)

// Static errors for asset operations.
var (
	// ErrCriticalAsset is returned when a narration clip cannot be retrieved.
	ErrCriticalAsset = errors.New("asset: critical asset unavailable")
	// ErrNotFound is returned by sources when the key does not exist.
	ErrNotFound = errors.New("asset: not found")
	// ErrCacheMiss is returned by caches when the key is not stored.
	ErrCacheMiss = errors.New("asset: cache miss")
	// ErrEmptyAsset is returned when a source yields zero bytes.
	ErrEmptyAsset = errors.New("asset: empty payload")
)

// Ref identifies one asset and its role.
type Ref struct {
	Kind Kind
	Key  string
}

// Critical reports whether failing to fetch this asset must abort composition.
// Missing speech is a content defect; a missing filler only shortens a pause.
func (r Ref) Critical() bool {
	return r.Kind == KindClip
}

// Source retrieves raw asset bytes from a remote origin.
type Source interface {
	// Fetch returns the bytes stored under key.
	// Returns an error wrapping ErrNotFound if the key does not exist.
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Cache is a persistent local store consulted before the Source.
type Cache interface {
	// Get returns the cached bytes for key or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error
}
