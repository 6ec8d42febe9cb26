package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
)

// FFmpegEncoder implements Encoder using ffmpeg CLI.
type FFmpegEncoder struct {
	ffmpegPath string
	format     Format
}

// NewFFmpegEncoder creates a new FFmpegEncoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegEncoder(ffmpegPath string, format Format) (*FFmpegEncoder, error) {
	if err := format.validate(); err != nil {
		return nil, err
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegEncoder{ffmpegPath: ffmpegPath, format: format}, nil
}

// Silence implements Encoder.Silence using the anullsrc source.
func (e *FFmpegEncoder) Silence(ctx context.Context, seconds float64) ([]byte, error) {
	if seconds <= 0 {
		return nil, ErrInvalidDuration
	}
	src := fmt.Sprintf("anullsrc=channel_layout=mono:sample_rate=%d", e.format.SampleRate)
	return e.encode(ctx, []string{"-f", "lavfi", "-t", formatSeconds(seconds), "-i", src})
}

// Tone implements Encoder.Tone using the sine source.
func (e *FFmpegEncoder) Tone(ctx context.Context, seconds, frequency float64) ([]byte, error) {
	if seconds <= 0 {
		return nil, ErrInvalidDuration
	}
	src := fmt.Sprintf("sine=frequency=%g:sample_rate=%d:duration=%s", frequency, e.format.SampleRate, formatSeconds(seconds))
	fade := fmt.Sprintf("afade=t=out:st=%s:d=%s", formatSeconds(seconds*0.6), formatSeconds(seconds*0.4))
	return e.encode(ctx, []string{"-f", "lavfi", "-i", src, "-af", fade})
}

// Transcode implements Encoder.Transcode.
func (e *FFmpegEncoder) Transcode(ctx context.Context, inputPath string) ([]byte, error) {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("input file does not exist: %s", inputPath)
	}
	return e.encode(ctx, []string{"-i", inputPath, "-vn"})
}

// Duration returns the duration of an audio file in seconds.
func (e *FFmpegEncoder) Duration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-i", inputPath,
		"-hide_banner",
		"-f", "null", "-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// ffmpeg writes duration info to stderr
	_ = cmd.Run() // Ignore error as ffmpeg exits with error when output is null

	return parseDuration(stderr.String())
}

// encode runs ffmpeg with input args and the shared CBR output settings,
// returning the encoded bytes from stdout. Xing and ID3 headers are
// suppressed so concatenated assets stay a plain frame sequence.
func (e *FFmpegEncoder) encode(ctx context.Context, input []string) ([]byte, error) {
	args := append([]string{"-hide_banner", "-loglevel", "error"}, input...)
	args = append(args,
		"-ac", "1",
		"-ar", strconv.Itoa(e.format.SampleRate),
		"-c:a", "libmp3lame",
		"-b:a", e.format.Bitrate(),
		"-write_xing", "0",
		"-id3v2_version", "0",
		"-f", "mp3",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w, stderr: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output, stderr: %s", stderr.String())
	}
	return stdout.Bytes(), nil
}

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

// parseDuration extracts "Duration: HH:MM:SS.ms" from ffmpeg stderr.
func parseDuration(output string) (float64, error) {
	matches := durationRe.FindStringSubmatch(output)
	if len(matches) < 5 {
		return 0, fmt.Errorf("could not parse duration from ffmpeg output: %s", output)
	}

	hours, _ := strconv.ParseFloat(matches[1], 64)
	minutes, _ := strconv.ParseFloat(matches[2], 64)
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	frac, _ := strconv.ParseFloat("0."+matches[4], 64)

	return hours*3600 + minutes*60 + seconds + frac, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// Verify interface implementation at compile time.
var _ Encoder = (*FFmpegEncoder)(nil)
