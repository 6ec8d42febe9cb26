// Package playback plays composed streams through a platform audio device and
// keeps an absolute session clock that survives the device losing its place.
package playback

import (
	"context"
	"errors"
)

// Static errors for playback.
var (
	// ErrNotLoaded is returned by operations that need a loaded stream.
	ErrNotLoaded = errors.New("playback: no stream loaded")
	// ErrPlaybackStart is returned when the device refuses to start playing.
	ErrPlaybackStart = errors.New("playback: device refused to start")
	// ErrDecode is reported to the observer when the device cannot decode the stream.
	ErrDecode = errors.New("playback: decode error")
	// ErrSeekUnsupported is returned by handles that cannot reposition natively.
	ErrSeekUnsupported = errors.New("playback: native seek unsupported")
)

// EventType identifies a device event.
type EventType int

const (
	// EventTimeUpdate reports a new native position.
	EventTimeUpdate EventType = iota
	// EventEnded reports that the handle reached the end of its blob.
	EventEnded
	// EventError reports a fatal device error.
	EventError
)

// Event is pushed by a Handle. Delivery is best effort; the engine polls too.
type Event struct {
	Type     EventType
	Position float64
	Err      error
}

// Device opens playable blobs on the host audio stack.
type Device interface {
	Open(ctx context.Context, blob *Blob) (Handle, error)
}

// Handle is one native playback handle over one blob. Positions are native,
// in seconds from the start of the blob.
type Handle interface {
	Play(ctx context.Context) error
	Pause()
	Seek(seconds float64) error
	Position() float64
	SetMuted(muted bool)
	// Ready is closed once the handle can start playing.
	Ready() <-chan struct{}
	Events() <-chan Event
	Close() error
}

// Observer receives engine notifications. Callbacks are never invoked with
// engine locks held, so an observer may call back into the engine.
type Observer interface {
	OnTimeUpdate(absolute float64)
	OnEnded()
	OnPlaybackError(err error)
}
