package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/maauso/guided-audio/internal/compose"
	"github.com/maauso/guided-audio/internal/frame"
	"github.com/maauso/guided-audio/internal/metrics"
)

// Config holds the engine's timing tolerances.
type Config struct {
	// PollInterval is the fallback position polling period.
	PollInterval time.Duration
	// StartThreshold is the distance from the stream start under which a
	// resume plays without seeking.
	StartThreshold time.Duration
	// SeekTolerance is how close the native position must land to the target
	// for a native seek to count as held.
	SeekTolerance time.Duration
	// LoadTimeout bounds the wait for a fresh handle to become ready.
	LoadTimeout time.Duration
	// ResumeLoadTimeout bounds the wait for a recovery slice to become ready.
	ResumeLoadTimeout time.Duration
	// SliceRecovery enables recreating the playable object from a byte slice
	// when a native seek does not hold.
	SliceRecovery bool
}

// DefaultConfig returns the default tolerances.
func DefaultConfig() Config {
	return Config{
		PollInterval:      250 * time.Millisecond,
		StartThreshold:    500 * time.Millisecond,
		SeekTolerance:     time.Second,
		LoadTimeout:       5 * time.Second,
		ResumeLoadTimeout: 3 * time.Second,
		SliceRecovery:     true,
	}
}

// Resume paths, as reported to metrics and logs.
const (
	pathStart = "start"
	pathSeek  = "seek"
	pathSlice = "slice"
)

// Engine owns one playable blob and one device handle at a time and reports
// absolute stream time as native position plus timeOffset. timeOffset covers
// the bytes that precede the loaded blob, either because the blob is a
// recovery slice or because the stream is a resize remainder.
type Engine struct {
	device  Device
	blobs   *BlobStore
	aligner frame.Aligner
	cfg     Config
	logger  *slog.Logger

	// ops serializes control operations; mu guards the fields below.
	ops sync.Mutex
	mu  sync.Mutex

	observer   Observer
	stream     *compose.Stream
	blob       *Blob
	handle     Handle
	timeOffset float64
	reported   float64
	paused     bool
	muted      bool
	ended      bool

	loopCtx  context.Context
	stopLoop context.CancelFunc
	unwatch  context.CancelFunc
}

// EngineOption is a function that configures an Engine.
type EngineOption func(*Engine)

// WithObserver sets the observer notified of time updates, end and errors.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithFrameAligner sets the aligner used to cut recovery slices.
func WithFrameAligner(a frame.Aligner) EngineOption {
	return func(e *Engine) {
		e.aligner = a
	}
}

// NewEngine creates an Engine over device. Blobs are registered in blobs.
func NewEngine(device Device, blobs *BlobStore, cfg Config, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if blobs == nil {
		blobs = NewBlobStore()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	e := &Engine{
		device:  device,
		blobs:   blobs,
		aligner: frame.MPEGAligner{},
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetObserver replaces the observer.
func (e *Engine) SetObserver(o Observer) {
	e.mu.Lock()
	e.observer = o
	e.mu.Unlock()
}

// LoadAndPlay releases anything currently loaded, loads stream into a fresh
// blob and starts playing it. Playback starts at stream.Offset in absolute
// time. A device refusal returns an error wrapping ErrPlaybackStart and
// leaves the engine unloaded.
func (e *Engine) LoadAndPlay(ctx context.Context, stream *compose.Stream) error {
	e.ops.Lock()
	defer e.ops.Unlock()

	e.release()
	if stream == nil || len(stream.Data) == 0 {
		return e.startFailed(errors.New("empty stream"))
	}

	blob, h, err := e.open(ctx, stream.Data, e.cfg.LoadTimeout)
	if err != nil {
		return e.startFailed(err)
	}
	if err := h.Play(ctx); err != nil {
		e.discard(blob, h)
		return e.startFailed(err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.stream = stream
	e.blob = blob
	e.handle = h
	e.timeOffset = stream.Offset
	e.reported = stream.Offset
	e.paused = false
	e.ended = false
	e.loopCtx = loopCtx
	e.stopLoop = cancel
	e.watchLocked(loopCtx, h)
	e.mu.Unlock()

	go e.poll(loopCtx)

	e.logger.Info("playback started",
		slog.String("blob", blob.ID),
		slog.Float64("offset", stream.Offset),
		slog.Float64("duration", stream.Duration),
	)
	return nil
}

// Pause pauses playback. Pausing while paused or unloaded is a no-op.
func (e *Engine) Pause() {
	e.ops.Lock()
	defer e.ops.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == nil || e.paused {
		return
	}
	e.advanceLocked()
	e.handle.Pause()
	e.paused = true
}

// Resume continues playback from the paused absolute time, falling back from
// a plain play to a native seek to a recovery slice. Resuming while playing
// is a no-op.
func (e *Engine) Resume(ctx context.Context) error {
	e.ops.Lock()
	defer e.ops.Unlock()

	e.mu.Lock()
	if e.handle == nil {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	if !e.paused {
		e.mu.Unlock()
		return nil
	}
	target := e.reported
	e.mu.Unlock()

	return e.moveTo(ctx, target)
}

// Seek moves playback to absolute time t, clamped to the loaded stream.
// While paused only the target is recorded; the next Resume goes there.
func (e *Engine) Seek(ctx context.Context, t float64) error {
	e.ops.Lock()
	defer e.ops.Unlock()

	e.mu.Lock()
	if e.handle == nil {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	t = math.Min(math.Max(t, e.stream.Offset), e.stream.Duration)
	if e.paused {
		e.reported = t
		e.ended = false
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	return e.moveTo(ctx, t)
}

// Swap hot-swaps a resize remainder in place of the loaded stream. The
// absolute clock continues from where it was; the remainder must cover it.
func (e *Engine) Swap(ctx context.Context, stream *compose.Stream) error {
	e.ops.Lock()
	defer e.ops.Unlock()

	e.mu.Lock()
	if e.handle == nil {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	e.advanceLocked()
	target := math.Min(math.Max(e.reported, stream.Offset), stream.Duration)
	paused := e.paused
	e.mu.Unlock()

	blob, h, err := e.open(ctx, stream.Data, e.cfg.LoadTimeout)
	if err != nil {
		return e.startFailed(err)
	}

	e.mu.Lock()
	e.install(blob, h, stream.Offset)
	e.stream = stream
	e.reported = target
	e.ended = false
	// The new handle has not started; moveTo starts it unless we were paused.
	e.paused = true
	e.mu.Unlock()

	e.logger.Info("stream swapped",
		slog.String("blob", blob.ID),
		slog.Float64("offset", stream.Offset),
		slog.Float64("at", target),
		slog.Float64("duration", stream.Duration),
	)

	if paused {
		return nil
	}
	return e.moveTo(ctx, target)
}

// Stop halts playback, cancels polling and releases the handle and blob.
func (e *Engine) Stop() {
	e.ops.Lock()
	defer e.ops.Unlock()
	e.release()
}

// ToggleMute flips the native mute state and returns the new state. Muted
// playback keeps advancing.
func (e *Engine) ToggleMute() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = !e.muted
	if e.handle != nil {
		e.handle.SetMuted(e.muted)
	}
	return e.muted
}

// CurrentTime returns the absolute stream time. It never moves backwards while
// playing; only seeks and swaps reset it.
func (e *Engine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.advanceLocked()
}

// Duration returns the absolute duration of the loaded stream, or 0.
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == nil {
		return 0
	}
	return e.stream.Duration
}

// IsPaused reports whether playback is paused.
func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// IsMuted reports whether playback is muted.
func (e *Engine) IsMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// Loaded reports whether a stream is loaded.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle != nil
}

// CurrentBlob returns the blob currently loaded, or nil.
func (e *Engine) CurrentBlob() *Blob {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blob
}

// moveTo plays from absolute time target, trying in order: a plain play when
// both target and the native position are at the start of the loaded blob,
// a native seek verified against SeekTolerance, and a new blob sliced from
// the stream at the first frame boundary at or after target. Callers hold ops.
func (e *Engine) moveTo(ctx context.Context, target float64) error {
	e.mu.Lock()
	h := e.handle
	stream := e.stream
	offset := e.timeOffset
	e.mu.Unlock()

	native := target - offset
	threshold := e.cfg.StartThreshold.Seconds()

	// A plain play only counts as "from the start" when the handle is
	// actually there; a handle parked further in still needs the seek.
	if offset == stream.Offset && target-stream.Offset <= threshold && h.Position() <= threshold {
		if err := h.Play(ctx); err != nil {
			return e.startFailed(err)
		}
		e.resumed(pathStart, target)
		return nil
	}

	if native >= 0 {
		err := h.Seek(native)
		if err == nil {
			if err := h.Play(ctx); err != nil {
				return e.startFailed(err)
			}
			if pos := h.Position(); math.Abs(pos-native) <= e.cfg.SeekTolerance.Seconds() {
				e.resumed(pathSeek, target)
				return nil
			}
			h.Pause()
			err = fmt.Errorf("position %.2fs after seek to %.2fs", h.Position(), native)
		}
		if !e.cfg.SliceRecovery {
			return e.startFailed(err)
		}
		e.logger.Warn("native seek did not hold, recreating from slice",
			slog.Float64("target", target),
			slog.String("error", err.Error()),
		)
	} else if !e.cfg.SliceRecovery {
		return e.startFailed(fmt.Errorf("target %.2fs precedes loaded blob at %.2fs", target, offset))
	}

	return e.slice(ctx, stream, target)
}

// slice recreates the playable object from the stream bytes at the first frame
// boundary at or after target and plays it from native position zero.
func (e *Engine) slice(ctx context.Context, stream *compose.Stream, target float64) error {
	aligned := stream.ByteAt(target)
	if len(stream.Data) > 0 {
		aligned = e.aligner.Align(stream.Data, aligned)
	}
	offset := stream.TimeAt(aligned)

	blob, h, err := e.open(ctx, stream.Data[aligned:], e.cfg.ResumeLoadTimeout)
	if err != nil {
		return e.startFailed(err)
	}
	if err := h.Play(ctx); err != nil {
		e.discard(blob, h)
		return e.startFailed(err)
	}

	e.mu.Lock()
	e.install(blob, h, offset)
	e.mu.Unlock()

	e.resumed(pathSlice, offset)
	return nil
}

// resumed records a successful move to absolute time at.
func (e *Engine) resumed(path string, at float64) {
	e.mu.Lock()
	e.paused = false
	e.ended = false
	e.reported = at
	e.mu.Unlock()

	metrics.ResumePaths.WithLabelValues(path).Inc()
	e.logger.Debug("playback resumed", slog.String("path", path), slog.Float64("at", at))
}

// open registers data as a blob, opens a handle on it and waits up to timeout
// for it to become ready. On timeout the handle is returned anyway so the
// caller makes its single play attempt.
func (e *Engine) open(ctx context.Context, data []byte, timeout time.Duration) (*Blob, Handle, error) {
	blob := e.blobs.Create(data)
	h, err := e.device.Open(ctx, blob)
	if err != nil {
		e.blobs.Revoke(blob.ID)
		return nil, nil, err
	}

	e.mu.Lock()
	h.SetMuted(e.muted)
	e.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.Ready():
	case <-timer.C:
		e.logger.Debug("handle not ready before timeout, playing anyway",
			slog.String("blob", blob.ID),
			slog.Duration("timeout", timeout),
		)
	case <-ctx.Done():
		e.discard(blob, h)
		return nil, nil, ctx.Err()
	}
	return blob, h, nil
}

// install replaces the current blob and handle, releasing the old ones.
// Callers hold mu.
func (e *Engine) install(blob *Blob, h Handle, offset float64) {
	oldBlob, oldHandle := e.blob, e.handle
	e.blob = blob
	e.handle = h
	e.timeOffset = offset

	if e.loopCtx != nil {
		e.watchLocked(e.loopCtx, h)
	}

	if oldHandle != nil {
		e.discard(oldBlob, oldHandle)
	}
}

func (e *Engine) discard(blob *Blob, h Handle) {
	if err := h.Close(); err != nil {
		e.logger.Debug("close handle", slog.String("error", err.Error()))
	}
	e.blobs.Revoke(blob.ID)
}

// release tears down the handle, blob and loops. Callers hold ops.
func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.unwatch != nil {
		e.unwatch()
		e.unwatch = nil
	}
	if e.stopLoop != nil {
		e.stopLoop()
		e.stopLoop = nil
		e.loopCtx = nil
	}
	if e.handle != nil {
		e.discard(e.blob, e.handle)
		e.logger.Info("playback released", slog.String("blob", e.blob.ID))
	}
	e.handle = nil
	e.blob = nil
	e.stream = nil
	e.paused = false
	e.ended = false
	e.timeOffset = 0
}

func (e *Engine) startFailed(err error) error {
	metrics.PlaybackErrors.WithLabelValues("start").Inc()
	e.logger.Warn("playback start failed", slog.String("error", err.Error()))
	if errors.Is(err, ErrPlaybackStart) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPlaybackStart, err)
}

// advanceLocked folds the native position into the reported time and
// returns it. Callers hold mu.
func (e *Engine) advanceLocked() float64 {
	if e.handle == nil || e.paused {
		return e.reported
	}
	abs := math.Min(e.handle.Position()+e.timeOffset, e.stream.Duration)
	if abs > e.reported {
		e.reported = abs
	}
	return e.reported
}

// watchLocked pumps h's events until ctx ends or h is replaced. Callers hold mu.
func (e *Engine) watchLocked(ctx context.Context, h Handle) {
	if e.unwatch != nil {
		e.unwatch()
	}
	watchCtx, cancel := context.WithCancel(ctx)
	e.unwatch = cancel

	go func() {
		events := h.Events()
		for {
			select {
			case <-watchCtx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				e.handleEvent(h, ev)
			}
		}
	}()
}

func (e *Engine) handleEvent(h Handle, ev Event) {
	e.mu.Lock()
	if e.handle != h {
		e.mu.Unlock()
		return
	}
	switch ev.Type {
	case EventTimeUpdate:
		e.mu.Unlock()
		e.update()
	case EventEnded:
		e.mu.Unlock()
		e.end()
	case EventError:
		obs := e.observer
		e.mu.Unlock()

		err := ev.Err
		switch {
		case err == nil:
			err = ErrDecode
		case !errors.Is(err, ErrDecode):
			err = fmt.Errorf("%w: %w", ErrDecode, err)
		}
		metrics.PlaybackErrors.WithLabelValues("decode").Inc()
		e.logger.Error("playback error", slog.String("error", err.Error()))
		if obs != nil {
			obs.OnPlaybackError(err)
		}
	default:
		e.mu.Unlock()
	}
}

// poll re-reads the native position while playing, independent of pushed
// events.
func (e *Engine) poll(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.update()
		}
	}
}

// update is the single position path shared by polling and pushed events.
func (e *Engine) update() {
	e.mu.Lock()
	if e.handle == nil || e.paused {
		e.mu.Unlock()
		return
	}
	abs := e.advanceLocked()
	done := abs >= e.stream.Duration
	obs := e.observer
	e.mu.Unlock()

	if obs != nil {
		obs.OnTimeUpdate(abs)
	}
	if done {
		e.end()
	}
}

// end notifies the observer once per load.
func (e *Engine) end() {
	e.mu.Lock()
	if e.handle == nil || e.ended {
		e.mu.Unlock()
		return
	}
	e.ended = true
	if e.stream != nil {
		e.reported = e.stream.Duration
	}
	obs := e.observer
	e.mu.Unlock()

	if obs != nil {
		obs.OnEnded()
	}
}
