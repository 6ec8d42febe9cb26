package audio

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/guided-audio/internal/frame"
)

// checkFFmpeg skips test if ffmpeg is not available.
func checkFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
}

// createTestWAV creates a sine WAV file of the given duration.
func createTestWAV(t *testing.T, outputPath string, durationSec float64) {
	t.Helper()
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", "sine=frequency=440:duration="+formatSeconds(durationSec),
		"-ar", "16000", "-ac", "1",
		outputPath,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestFormat(t *testing.T) {
	f := DefaultFormat()
	assert.Equal(t, "128k", f.Bitrate())
	assert.NoError(t, f.validate())

	tests := []struct {
		name   string
		format Format
	}{
		{"zero rate", Format{BytesPerSecond: 0, SampleRate: 44100}},
		{"fractional kbit", Format{BytesPerSecond: 16001, SampleRate: 44100}},
		{"zero sample rate", Format{BytesPerSecond: 16000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFFmpegEncoder("", tt.format)
			assert.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected float64
		wantErr  bool
	}{
		{
			name:     "centiseconds",
			output:   "  Duration: 00:01:05.50, start: 0.000000, bitrate: 128 kb/s",
			expected: 65.5,
		},
		{
			name:     "hours and milliseconds",
			output:   "Duration: 01:00:00.125, bitrate: 256 kb/s",
			expected: 3600.125,
		},
		{
			name:    "missing",
			output:  "Input #0, lavfi",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDuration(tt.output)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 0.0001)
		})
	}
}

func TestFFmpegEncoder_InvalidDuration(t *testing.T) {
	enc, err := NewFFmpegEncoder("", DefaultFormat())
	require.NoError(t, err)

	_, err = enc.Silence(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	_, err = enc.Tone(context.Background(), -1, 440)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestFFmpegEncoder_TranscodeMissingInput(t *testing.T) {
	enc, err := NewFFmpegEncoder("", DefaultFormat())
	require.NoError(t, err)

	_, err = enc.Transcode(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestFFmpegEncoder_Silence(t *testing.T) {
	checkFFmpeg(t)
	enc, err := NewFFmpegEncoder("", DefaultFormat())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := enc.Silence(ctx, 2)
	require.NoError(t, err)

	// CBR output maps bytes to time within one frame of padding per side.
	assert.InDelta(t, 2*16000, len(data), 0.05*2*16000)

	// Output starts on a frame header, so it can be spliced.
	_, ok := frame.ParseHeader(data)
	assert.True(t, ok)
}

func TestFFmpegEncoder_Tone(t *testing.T) {
	checkFFmpeg(t)
	enc, err := NewFFmpegEncoder("", DefaultFormat())
	require.NoError(t, err)

	data, err := enc.Tone(context.Background(), 1, 660)
	require.NoError(t, err)
	assert.InDelta(t, 16000, len(data), 0.05*16000)
}

func TestFFmpegEncoder_TranscodeAndDuration(t *testing.T) {
	checkFFmpeg(t)
	enc, err := NewFFmpegEncoder("", DefaultFormat())
	require.NoError(t, err)

	input := filepath.Join(t.TempDir(), "clip.wav")
	createTestWAV(t, input, 3)

	d, err := enc.Duration(context.Background(), input)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, d, 0.05)

	data, err := enc.Transcode(context.Background(), input)
	require.NoError(t, err)
	assert.InDelta(t, 3*16000, len(data), 0.05*3*16000)
}
