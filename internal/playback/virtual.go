package playback

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// ErrPlayRefused is returned by a VirtualDevice handle configured to refuse play.
var ErrPlayRefused = errors.New("playback: play refused by host")

// Faults configures the host quirks a VirtualDevice reproduces.
type Faults struct {
	// EvictOnPause drops the decode buffer on pause: later native seeks land
	// at zero instead of the requested position.
	EvictOnPause bool
	// RefusePlay makes every Play call fail.
	RefusePlay bool
	// NotReady keeps Ready open forever so callers hit their load timeout.
	NotReady bool
}

// VirtualDevice is a Device without audio output. Handles advance their native
// position with the clock, which makes it the playback clock for server-side
// sessions and the device used in tests.
type VirtualDevice struct {
	bytesPerSecond int
	now            func() time.Time
	pushInterval   time.Duration

	mu      sync.Mutex
	faults  Faults
	handles []*VirtualHandle
}

// VirtualOption is a function that configures a VirtualDevice.
type VirtualOption func(*VirtualDevice)

// WithClock sets the time source.
func WithClock(now func() time.Time) VirtualOption {
	return func(d *VirtualDevice) {
		d.now = now
	}
}

// WithPushEvents makes handles push time updates at interval while playing.
func WithPushEvents(interval time.Duration) VirtualOption {
	return func(d *VirtualDevice) {
		d.pushInterval = interval
	}
}

// WithFaults sets the initial fault configuration.
func WithFaults(f Faults) VirtualOption {
	return func(d *VirtualDevice) {
		d.faults = f
	}
}

// NewVirtualDevice creates a VirtualDevice for streams at bytesPerSecond.
func NewVirtualDevice(bytesPerSecond int, opts ...VirtualOption) *VirtualDevice {
	d := &VirtualDevice{
		bytesPerSecond: bytesPerSecond,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetFaults replaces the fault configuration for handles opened afterwards
// and for later calls on existing handles.
func (d *VirtualDevice) SetFaults(f Faults) {
	d.mu.Lock()
	d.faults = f
	d.mu.Unlock()
}

func (d *VirtualDevice) currentFaults() Faults {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.faults
}

// Open creates a handle over blob.
func (d *VirtualDevice) Open(_ context.Context, blob *Blob) (Handle, error) {
	h := &VirtualHandle{
		device:   d,
		blobID:   blob.ID,
		duration: float64(len(blob.Data)) / float64(d.bytesPerSecond),
		ready:    make(chan struct{}),
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
	}
	if !d.currentFaults().NotReady {
		close(h.ready)
	}
	if d.pushInterval > 0 {
		go h.push(d.pushInterval)
	}

	d.mu.Lock()
	d.handles = append(d.handles, h)
	d.mu.Unlock()
	return h, nil
}

// Handles returns every handle opened so far, oldest first.
func (d *VirtualDevice) Handles() []*VirtualHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*VirtualHandle(nil), d.handles...)
}

// Last returns the most recently opened handle, or nil.
func (d *VirtualDevice) Last() *VirtualHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

// VirtualHandle is the Handle returned by VirtualDevice.
type VirtualHandle struct {
	device   *VirtualDevice
	blobID   string
	duration float64
	ready    chan struct{}
	events   chan Event
	done     chan struct{}

	mu        sync.Mutex
	base      float64
	startedAt time.Time
	playing   bool
	evicted   bool
	muted     bool
	closed    bool
	ended     bool
}

// BlobID returns the id of the blob the handle plays.
func (h *VirtualHandle) BlobID() string {
	return h.blobID
}

// Play starts advancing the position.
func (h *VirtualHandle) Play(_ context.Context) error {
	if h.device.currentFaults().RefusePlay {
		return ErrPlayRefused
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrNotLoaded
	}
	if !h.playing {
		h.playing = true
		h.startedAt = h.device.now()
	}
	return nil
}

// Pause freezes the position.
func (h *VirtualHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.playing {
		return
	}
	h.base = h.positionLocked()
	h.playing = false
	if h.device.currentFaults().EvictOnPause {
		h.evicted = true
	}
}

// Seek moves the position. An evicted handle accepts the call but resets to
// zero, the way some hosts do after dropping their decode buffer.
func (h *VirtualHandle) Seek(seconds float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.evicted {
		h.base = 0
	} else {
		h.base = math.Min(math.Max(seconds, 0), h.duration)
	}
	if h.playing {
		h.startedAt = h.device.now()
	}
	return nil
}

// Position returns the native position in seconds.
func (h *VirtualHandle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.positionLocked()
}

func (h *VirtualHandle) positionLocked() float64 {
	if !h.playing {
		return h.base
	}
	pos := h.base + h.device.now().Sub(h.startedAt).Seconds()
	return math.Min(pos, h.duration)
}

// SetMuted sets the mute flag. Position keeps advancing while muted.
func (h *VirtualHandle) SetMuted(muted bool) {
	h.mu.Lock()
	h.muted = muted
	h.mu.Unlock()
}

// Muted reports the mute flag.
func (h *VirtualHandle) Muted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.muted
}

// Playing reports whether the handle is advancing.
func (h *VirtualHandle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

// Closed reports whether Close has been called.
func (h *VirtualHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Ready is closed once the handle can play.
func (h *VirtualHandle) Ready() <-chan struct{} {
	return h.ready
}

// Events returns pushed events.
func (h *VirtualHandle) Events() <-chan Event {
	return h.events
}

// FailDecode pushes a fatal decode error.
func (h *VirtualHandle) FailDecode(err error) {
	h.emit(Event{Type: EventError, Err: err})
}

// Close stops the handle. It is safe to call more than once.
func (h *VirtualHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.playing = false
	close(h.done)
	return nil
}

func (h *VirtualHandle) emit(ev Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	default:
	}
}

func (h *VirtualHandle) push(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.mu.Lock()
			playing := h.playing
			pos := h.positionLocked()
			ended := playing && pos >= h.duration && !h.ended
			if ended {
				h.ended = true
			}
			h.mu.Unlock()

			if ended {
				h.emit(Event{Type: EventEnded, Position: pos})
			} else if playing {
				h.emit(Event{Type: EventTimeUpdate, Position: pos})
			}
		}
	}
}
