// Package frame locates safe slicing points in constant-bitrate encoded audio.
// Slicing a frame-based stream anywhere but a frame boundary yields a corrupt
// leading frame, so every slice offset goes through an Aligner.
package frame

// Aligner maps a raw byte offset to a frame boundary at or after it.
type Aligner interface {
	// Align returns a boundary b with offset <= b <= len(data)-1, after
	// clamping offset into [0, len(data)-1]. data must be non-empty.
	Align(data []byte, offset int) int
}

// clamp bounds offset to a valid index of a buffer of length n.
func clamp(offset, n int) int {
	if offset < 0 {
		return 0
	}
	if offset > n-1 {
		return n - 1
	}
	return offset
}

// FixedAligner aligns to multiples of a fixed frame size, for encodings whose
// frames all occupy the same byte span.
type FixedAligner struct {
	FrameSize int
}

// Align rounds offset up to the next multiple of FrameSize.
func (a FixedAligner) Align(data []byte, offset int) int {
	if len(data) == 0 {
		return 0
	}
	offset = clamp(offset, len(data))
	if a.FrameSize <= 1 {
		return offset
	}
	aligned := (offset + a.FrameSize - 1) / a.FrameSize * a.FrameSize
	return clamp(aligned, len(data))
}
