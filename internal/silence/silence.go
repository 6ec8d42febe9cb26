// Package silence decomposes arbitrary pause lengths into pre-rendered
// filler blocks from a fixed catalog.
package silence

import (
	"fmt"
	"math"
)

// Granularity is the smallest block duration in seconds. All decompositions
// are rounded to a multiple of it.
const Granularity = 0.5

// Block is a reference to a single pre-rendered silence filler asset.
type Block struct {
	// Seconds is the nominal duration of the block.
	Seconds float64
}

// Blocks is the descending catalog of available filler durations in seconds.
var Blocks = []float64{60, 30, 10, 5, 2, 1, 0.5}

// Key returns the asset key of the block, e.g. "silence/silence-0.5s.mp3".
func (b Block) Key() string {
	return fmt.Sprintf("silence/silence-%gs.mp3", b.Seconds)
}

// Round rounds seconds to the nearest multiple of Granularity.
func Round(seconds float64) float64 {
	return math.Round(seconds/Granularity) * Granularity
}

// RoundUp rounds seconds up to the next multiple of Granularity.
func RoundUp(seconds float64) float64 {
	// Tolerate float noise just above an exact multiple.
	return math.Ceil(seconds/Granularity-1e-9) * Granularity
}

// Decompose converts a pause length into an ordered list of filler blocks
// whose nominal durations sum to seconds rounded to Granularity. Blocks are
// chosen greedily, largest first. Zero or negative input yields nil.
func Decompose(seconds float64) []Block {
	remaining := Round(seconds)
	if remaining <= 0 {
		return nil
	}

	var blocks []Block
	for _, size := range Blocks {
		for remaining >= size {
			blocks = append(blocks, Block{Seconds: size})
			// Re-round after every subtraction so float error never accumulates
			// into a phantom remainder.
			remaining = Round(remaining - size)
		}
	}
	return blocks
}

// Sum returns the total nominal duration of blocks.
func Sum(blocks []Block) float64 {
	total := 0.0
	for _, b := range blocks {
		total += b.Seconds
	}
	return total
}
