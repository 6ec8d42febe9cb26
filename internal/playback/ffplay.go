package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/maauso/guided-audio/internal/frame"
)

// FFplayDevice plays blobs through an ffplay process reading from stdin.
// ffplay cannot reposition a piped input, so pausing kills the process and
// the decode position is lost; resumes go through the engine's slice path.
// Muting while playing restarts the process at the current frame with the
// new volume.
type FFplayDevice struct {
	// path is the ffplay binary. Defaults to "ffplay".
	path           string
	bytesPerSecond int
	aligner        frame.Aligner
	logger         *slog.Logger
}

// NewFFplayDevice creates an FFplayDevice.
// If path is empty, it defaults to "ffplay" (found via PATH).
func NewFFplayDevice(path string, bytesPerSecond int, logger *slog.Logger) *FFplayDevice {
	if path == "" {
		path = "ffplay"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFplayDevice{path: path, bytesPerSecond: bytesPerSecond, aligner: frame.MPEGAligner{}, logger: logger}
}

// Open creates a handle over blob. No process starts until Play.
func (d *FFplayDevice) Open(_ context.Context, blob *Blob) (Handle, error) {
	if _, err := exec.LookPath(d.path); err != nil {
		return nil, fmt.Errorf("find ffplay: %w", err)
	}
	ready := make(chan struct{})
	close(ready)
	return &ffplayHandle{
		device:   d,
		blob:     blob,
		duration: float64(len(blob.Data)) / float64(d.bytesPerSecond),
		ready:    ready,
		events:   make(chan Event, 4),
	}, nil
}

type ffplayHandle struct {
	device   *FFplayDevice
	blob     *Blob
	duration float64
	ready    chan struct{}
	events   chan Event

	mu        sync.Mutex
	cmd       *exec.Cmd
	startedAt time.Time
	base      float64 // blob position the running process started from
	muted     bool
	closed    bool
}

func (h *ffplayHandle) Play(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrNotLoaded
	}
	if h.cmd != nil {
		return nil
	}
	return h.startLocked(0)
}

// startLocked runs ffplay over the blob from the first frame boundary at or
// after from. Callers hold mu.
func (h *ffplayHandle) startLocked(from float64) error {
	data := h.blob.Data
	base := 0.0
	if from > 0 && len(data) > 0 {
		off := h.device.aligner.Align(data, int(from*float64(h.device.bytesPerSecond)))
		data = data[off:]
		base = float64(off) / float64(h.device.bytesPerSecond)
	}

	volume := "100"
	if h.muted {
		volume = "0"
	}
	// The process outlives the request that started it; Pause and Close stop it.
	cmd := exec.Command(h.device.path,
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-volume", volume,
		"-i", "pipe:0",
	)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	h.cmd = cmd
	h.startedAt = time.Now()
	h.base = base

	go h.wait(cmd, &stderr)
	return nil
}

func (h *ffplayHandle) wait(cmd *exec.Cmd, stderr *bytes.Buffer) {
	err := cmd.Wait()

	h.mu.Lock()
	current := h.cmd == cmd
	if current {
		h.cmd = nil
	}
	h.mu.Unlock()

	// A process we replaced or stopped ourselves is not an event.
	if !current {
		return
	}

	var ev Event
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		h.device.logger.Error("ffplay exited", slog.String("error", err.Error()), slog.String("stderr", msg))
		ev = Event{Type: EventError, Err: fmt.Errorf("%w: %s", ErrDecode, msg)}
	} else {
		ev = Event{Type: EventEnded, Position: h.duration}
	}
	select {
	case h.events <- ev:
	default:
	}
}

// Pause stops the process. The native position returns to zero.
func (h *ffplayHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

// Seek only supports rewinding to the start.
func (h *ffplayHandle) Seek(seconds float64) error {
	if seconds <= 0 {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.stopLocked()
		return nil
	}
	return ErrSeekUnsupported
}

func (h *ffplayHandle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil {
		return 0
	}
	return h.positionLocked()
}

func (h *ffplayHandle) positionLocked() float64 {
	return math.Min(h.base+time.Since(h.startedAt).Seconds(), h.duration)
}

// SetMuted changes the volume. ffplay has no runtime volume control without
// a window, so a running process is replaced by one starting where it was.
func (h *ffplayHandle) SetMuted(muted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.muted == muted {
		return
	}
	h.muted = muted
	if h.cmd == nil || h.closed {
		return
	}
	pos := h.positionLocked()
	h.stopLocked()
	if err := h.startLocked(pos); err != nil {
		h.device.logger.Error("restart ffplay for mute", slog.String("error", err.Error()))
		select {
		case h.events <- Event{Type: EventError, Err: err}:
		default:
		}
	}
}

func (h *ffplayHandle) Ready() <-chan struct{} {
	return h.ready
}

func (h *ffplayHandle) Events() <-chan Event {
	return h.events
}

func (h *ffplayHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.stopLocked()
	return nil
}

func (h *ffplayHandle) stopLocked() {
	if h.cmd == nil {
		return
	}
	cmd := h.cmd
	h.cmd = nil
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.device.logger.Debug("kill ffplay", slog.String("error", err.Error()))
	}
}
