package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// mp3Frames builds a synthetic MPEG-1 Layer III 128kbps 44.1kHz stream. Each
// entry in padding selects whether that frame carries the padding byte.
func mp3Frames(padding ...bool) []byte {
	var out []byte
	for _, p := range padding {
		hdr := []byte{0xFF, 0xFB, 0x90, 0x00}
		n := 417
		if p {
			hdr[2] |= 0x02
			n = 418
		}
		f := make([]byte, n)
		copy(f, hdr)
		out = append(out, f...)
	}
	return out
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		ok     bool
		length int
	}{
		{"mpeg1 layer3 128k", []byte{0xFF, 0xFB, 0x90, 0x00}, true, 417},
		{"mpeg1 layer3 128k padded", []byte{0xFF, 0xFB, 0x92, 0x00}, true, 418},
		{"mpeg1 layer3 320k 48k", []byte{0xFF, 0xFB, 0xE4, 0x00}, true, 960},
		{"mpeg2 layer3 64k 22.05k", []byte{0xFF, 0xF3, 0x80, 0x00}, true, 208},
		{"mpeg1 layer2 192k 48k", []byte{0xFF, 0xFD, 0xA4, 0x00}, true, 576},
		{"no sync", []byte{0x00, 0xFB, 0x90, 0x00}, false, 0},
		{"reserved version", []byte{0xFF, 0xEB, 0x90, 0x00}, false, 0},
		{"reserved layer", []byte{0xFF, 0xF9, 0x90, 0x00}, false, 0},
		{"free format bitrate", []byte{0xFF, 0xFB, 0x00, 0x00}, false, 0},
		{"bad bitrate", []byte{0xFF, 0xFB, 0xF0, 0x00}, false, 0},
		{"reserved sample rate", []byte{0xFF, 0xFB, 0x9C, 0x00}, false, 0},
		{"short", []byte{0xFF, 0xFB}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ok := ParseHeader(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.length, h.Length)
		})
	}
}

func TestMPEGAligner_Align(t *testing.T) {
	data := mp3Frames(false, true, false, false, true, false)
	// boundaries: 0, 417, 835, 1252, 1669, 2087; len 2504
	a := MPEGAligner{}

	tests := []struct {
		name   string
		offset int
		want   int
	}{
		{"start", 0, 0},
		{"inside first frame", 1, 417},
		{"exact boundary", 835, 835},
		{"inside padded frame", 500, 835},
		{"last frame start", 2087, 2087},
		{"inside last frame moves to end", 2200, 2503},
		{"negative clamps", -10, 0},
		{"past end clamps", 99999, 2503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Align(data, tt.offset))
		})
	}
}

func TestMPEGAligner_Properties(t *testing.T) {
	data := mp3Frames(false, true, false, true, true, false, false, true)
	a := MPEGAligner{}
	for off := 0; off < len(data); off++ {
		got := a.Align(data, off)
		assert.GreaterOrEqual(t, got, off)
		assert.LessOrEqual(t, got, len(data)-1)
	}
}

func TestMPEGAligner_NonMPEGDataFallsBack(t *testing.T) {
	data := make([]byte, 100)
	assert.Equal(t, 42, MPEGAligner{}.Align(data, 42))
	assert.Equal(t, 0, MPEGAligner{}.Align(nil, 5))
}

func TestFixedAligner_Align(t *testing.T) {
	data := make([]byte, 1000)
	a := FixedAligner{FrameSize: 100}

	assert.Equal(t, 0, a.Align(data, 0))
	assert.Equal(t, 100, a.Align(data, 1))
	assert.Equal(t, 300, a.Align(data, 300))
	assert.Equal(t, 999, a.Align(data, 950))
	assert.Equal(t, 999, a.Align(data, 5000))
	assert.Equal(t, 37, FixedAligner{}.Align(data, 37))

	for off := 0; off < len(data); off++ {
		got := a.Align(data, off)
		assert.GreaterOrEqual(t, got, off)
		assert.LessOrEqual(t, got, len(data)-1)
	}
}
