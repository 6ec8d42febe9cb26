package frame

// Header is a parsed MPEG audio frame header.
type Header struct {
	Version    int // 1, 2, or 25 for MPEG-2.5
	Layer      int // 1, 2 or 3
	Bitrate    int // bits per second
	SampleRate int // Hz
	Padding    bool
	Length     int // total frame length in bytes, header included
}

var bitrates = map[[2]int][16]int{
	{1, 1}: {0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, -1},
	{1, 2}: {0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, -1},
	{1, 3}: {0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, -1},
	{2, 1}: {0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, -1},
	{2, 2}: {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},
	{2, 3}: {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},
}

var sampleRates = map[int][3]int{
	1:  {44100, 48000, 32000},
	2:  {22050, 24000, 16000},
	25: {11025, 12000, 8000},
}

// ParseHeader decodes the four header bytes at the start of b.
// Free-format and reserved values are rejected.
func ParseHeader(b []byte) (Header, bool) {
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return Header{}, false
	}

	var h Header
	switch (b[1] >> 3) & 0x03 {
	case 0:
		h.Version = 25
	case 2:
		h.Version = 2
	case 3:
		h.Version = 1
	default:
		return Header{}, false
	}

	switch (b[1] >> 1) & 0x03 {
	case 1:
		h.Layer = 3
	case 2:
		h.Layer = 2
	case 3:
		h.Layer = 1
	default:
		return Header{}, false
	}

	tableVersion := h.Version
	if tableVersion == 25 {
		tableVersion = 2
	}
	kbps := bitrates[[2]int{tableVersion, h.Layer}][b[2]>>4]
	if kbps <= 0 {
		return Header{}, false
	}
	h.Bitrate = kbps * 1000

	srIndex := (b[2] >> 2) & 0x03
	if srIndex == 3 {
		return Header{}, false
	}
	h.SampleRate = sampleRates[h.Version][srIndex]
	h.Padding = b[2]&0x02 != 0

	pad := 0
	if h.Padding {
		pad = 1
	}
	switch {
	case h.Layer == 1:
		h.Length = (12*h.Bitrate/h.SampleRate + pad) * 4
	case h.Layer == 3 && h.Version != 1:
		h.Length = 72*h.Bitrate/h.SampleRate + pad
	default:
		h.Length = 144*h.Bitrate/h.SampleRate + pad
	}
	if h.Length < 4 {
		return Header{}, false
	}
	return h, true
}

// maxFrameSpan bounds the backward scan for the frame containing an offset;
// no MPEG audio frame is longer.
const maxFrameSpan = 4096

// MPEGAligner finds MPEG audio frame boundaries by scanning for a frame sync
// whose declared length lands on another valid header or on the exact end of
// the buffer. An offset inside the last frame has no boundary after it and
// aligns to len(data)-1, leaving a one-byte tail that decodes to nothing.
// Data with no frame around the offset is not frame-based and keeps the
// clamped raw offset.
type MPEGAligner struct{}

// Align implements Aligner.
func (MPEGAligner) Align(data []byte, offset int) int {
	if len(data) == 0 {
		return 0
	}
	offset = clamp(offset, len(data))

	for i := offset; i+4 <= len(data); i++ {
		if _, ok := verified(data, i); ok {
			return i
		}
	}
	if inFrame(data, offset) {
		return len(data) - 1
	}
	return offset
}

// verified parses a header at i and checks that the frame it declares ends on
// another header or on the end of data.
func verified(data []byte, i int) (Header, bool) {
	h, ok := ParseHeader(data[i:])
	if !ok {
		return Header{}, false
	}
	next := i + h.Length
	if next == len(data) {
		return h, true
	}
	if next < len(data) {
		if _, ok := ParseHeader(data[next:]); ok {
			return h, true
		}
	}
	return Header{}, false
}

// inFrame reports whether offset falls inside a verified frame that starts
// before it.
func inFrame(data []byte, offset int) bool {
	for j := offset - 1; j >= 0 && offset-j < maxFrameSpan; j-- {
		if h, ok := verified(data, j); ok && j+h.Length > offset {
			return true
		}
	}
	return false
}

// Verify interface implementation at compile time.
var (
	_ Aligner = FixedAligner{}
	_ Aligner = MPEGAligner{}
)
