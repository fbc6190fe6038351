package device

import (
	"github.com/wavesort/wavesort/internal/bitops"
)

// Wave-level cross-lane primitives. A wave is WaveWidth lock-step lanes;
// these helpers operate on a slice holding one value per lane and mirror
// the hardware intrinsics (ballot, shuffle-up scan, broadcast) that the
// kernels are written against.

// Ballot evaluates pred for every lane of a wave of the given width and
// returns a bitmask with bit i set when lane i voted true.
func Ballot(width int, pred func(lane int) bool) uint64 {
	var mask uint64
	for lane := 0; lane < width; lane++ {
		if pred(lane) {
			mask |= uint64(1) << uint(lane)
		}
	}
	return mask & bitops.WidthMask(width)
}

// WaveInclusiveScan replaces vals with its inclusive prefix sum using the
// shuffle-up doubling schedule: after step k, each lane holds the sum of
// the 2^k lanes ending at itself.
func WaveInclusiveScan(vals []uint32) {
	n := len(vals)
	for offset := 1; offset < n; offset <<= 1 {
		for lane := n - 1; lane >= offset; lane-- {
			vals[lane] += vals[lane-offset]
		}
	}
}

// WaveExclusiveScan replaces vals with its exclusive prefix sum and
// returns the wave total.
func WaveExclusiveScan(vals []uint32) uint32 {
	WaveInclusiveScan(vals)
	n := len(vals)
	total := uint32(0)
	if n > 0 {
		total = vals[n-1]
	}
	for lane := n - 1; lane > 0; lane-- {
		vals[lane] = vals[lane-1]
	}
	if n > 0 {
		vals[0] = 0
	}
	return total
}

// WaveSum reduces a wave's lane values to their sum.
func WaveSum(vals []uint32) uint32 {
	var total uint32
	for _, v := range vals {
		total += v
	}
	return total
}
