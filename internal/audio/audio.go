// Package audio renders and normalizes the encoded assets the compositor
// splices: silence filler blocks, tone cues and narration clips. Every
// output shares one constant-bitrate MP3 format so byte offsets map
// linearly to time.
package audio

import (
	"context"
	"errors"
	"strconv"
)

// Static errors for audio rendering.
var (
	// ErrInvalidFormat is returned when a Format cannot be encoded.
	ErrInvalidFormat = errors.New("audio: invalid format")
	// ErrInvalidDuration is returned for non-positive render lengths.
	ErrInvalidDuration = errors.New("audio: duration must be positive")
)

// Format is the shared stream encoding.
type Format struct {
	// BytesPerSecond is the constant bitrate in bytes. 16000 is 128 kbit/s.
	BytesPerSecond int
	// SampleRate in Hz.
	SampleRate int
}

// DefaultFormat returns 128 kbit/s mono at 44.1 kHz.
func DefaultFormat() Format {
	return Format{BytesPerSecond: 16000, SampleRate: 44100}
}

// Bitrate returns the encoder bitrate argument, e.g. "128k".
func (f Format) Bitrate() string {
	return strconv.Itoa(f.BytesPerSecond*8/1000) + "k"
}

func (f Format) validate() error {
	if f.BytesPerSecond <= 0 || f.BytesPerSecond%125 != 0 || f.SampleRate <= 0 {
		return ErrInvalidFormat
	}
	return nil
}

// Encoder renders assets in a fixed Format.
type Encoder interface {
	// Silence renders seconds of digital silence.
	Silence(ctx context.Context, seconds float64) ([]byte, error)

	// Tone renders a sine cue of the given frequency with a short fade out.
	Tone(ctx context.Context, seconds, frequency float64) ([]byte, error)

	// Transcode re-encodes the audio file at inputPath into the Format.
	Transcode(ctx context.Context, inputPath string) ([]byte, error)
}

// Sink stores rendered assets under their catalog keys. storage.DiskCache
// and storage.S3Source both satisfy it.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error
}
