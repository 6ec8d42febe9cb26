// Package compose plans and splices narration clips, silence fillers and tone
// cues into one continuous constant-bitrate stream with a prompt time map.
package compose

import (
	"errors"
	"math"

	"github.com/maauso/guided-audio/internal/asset"
)

// Static errors for composition.
var (
	// ErrNoPrompts is returned when a compose call has no prompts.
	ErrNoPrompts = errors.New("compose: at least one prompt is required")
	// ErrInvalidPrompt is returned for prompts with missing ids or negative pauses.
	ErrInvalidPrompt = errors.New("compose: invalid prompt")
	// ErrInvalidOptions is returned for negative timing options.
	ErrInvalidOptions = errors.New("compose: invalid options")
	// ErrResizeUnsupported is returned when resizing a fixed-length session.
	ErrResizeUnsupported = errors.New("compose: resize requires a target duration")
	// ErrSpliceMismatch is returned when spliced bytes disagree with the plan.
	ErrSpliceMismatch = errors.New("compose: spliced length does not match plan")
)

// KindRetained marks an entry holding bytes carried over from a previous
// stream during a resize.
const KindRetained asset.Kind = "retained"

// Prompt is one narration step of a session. Prompts are immutable once
// handed to the compositor.
type Prompt struct {
	// ID is the stable prompt identifier.
	ID string `json:"id"`
	// Text is the display text; it also drives speaking-time estimates.
	Text string `json:"text"`
	// AudioRef is the narration clip asset key. Empty for text-only prompts.
	AudioRef string `json:"audio_ref,omitempty"`
	// SilenceAfter is the base pause after the prompt in seconds.
	SilenceAfter float64 `json:"silence_after"`
	// Expandable allows the pause to grow toward a session target duration.
	Expandable bool `json:"expandable,omitempty"`
	// SilenceMax caps the total pause after an expandable prompt. Zero means
	// no ceiling.
	SilenceMax float64 `json:"silence_max,omitempty"`
}

// Options controls the stream layout.
type Options struct {
	// PreRollDelay is the silence before the opening tone.
	PreRollDelay float64
	// Preamble is the fixed lead-in before the first prompt starts.
	Preamble float64
	// FinalSilence is the pause before the closing tone.
	FinalSilence float64
	// TargetDuration is the user-visible session length, preamble excluded.
	// Zero composes a fixed-length session.
	TargetDuration float64
}

func (o Options) validate() error {
	if o.PreRollDelay < 0 || o.Preamble < 0 || o.FinalSilence < 0 || o.TargetDuration < 0 {
		return ErrInvalidOptions
	}
	return nil
}

// targetTotal is the absolute stream length the session should reach, or 0.
func (o Options) targetTotal() float64 {
	if o.TargetDuration <= 0 {
		return 0
	}
	return o.Preamble + o.TargetDuration
}

// Entry is one spliced unit of a composed stream, in playback order.
type Entry struct {
	Kind     asset.Kind `json:"kind"`
	Key      string     `json:"key"`
	Duration float64    `json:"duration"`
	Size     int        `json:"size"`
}

// TimeMapEntry locates one prompt inside the composed stream. Times are
// absolute seconds from the start of the session.
type TimeMapEntry struct {
	PromptID   string  `json:"prompt_id"`
	Index      int     `json:"index"`
	AudioStart float64 `json:"audio_start"`
	AudioEnd   float64 `json:"audio_end"`
	SlotEnd    float64 `json:"slot_end"`
}

// Stream is the output of a compose call. Data covers absolute time
// [Offset, Duration]; a fresh composition has Offset 0.
type Stream struct {
	Data           []byte
	Offset         float64
	Duration       float64
	Preamble       float64
	BytesPerSecond int
	TimeMap        []TimeMapEntry
	Entries        []Entry
}

// ByteAt converts an absolute time to a byte offset into Data, clamped to
// [0, len(Data)].
func (s *Stream) ByteAt(t float64) int {
	b := int(math.Round((t - s.Offset) * float64(s.BytesPerSecond)))
	if b < 0 {
		return 0
	}
	if b > len(s.Data) {
		return len(s.Data)
	}
	return b
}

// TimeAt converts a byte offset into Data to an absolute time.
func (s *Stream) TimeAt(b int) float64 {
	return s.Offset + float64(b)/float64(s.BytesPerSecond)
}

// PromptAt returns the time map index of the last prompt whose audio has
// started at absolute time t, or -1 while still in the preamble.
func (s *Stream) PromptAt(t float64) int {
	idx := -1
	for i, e := range s.TimeMap {
		if e.AudioStart > t {
			break
		}
		idx = i
	}
	return idx
}
