// Package bitops provides low-level lane-mask primitives shared by the
// device model and the sort kernels.
package bitops

import "math/bits"

// LaneMaskLT returns a mask with one bit set for every lane index below
// lane. This is the cross-lane "lanes before me" mask used to turn a
// ballot result into a rank.
func LaneMaskLT(lane int) uint64 {
	return (uint64(1) << uint(lane)) - 1
}

// RankInMask counts how many lanes below lane are set in mask.
func RankInMask(mask uint64, lane int) int {
	return bits.OnesCount64(mask & LaneMaskLT(lane))
}

// LowestLane returns the index of the lowest set lane in mask.
// mask must be non-zero.
func LowestLane(mask uint64) int {
	return bits.TrailingZeros64(mask)
}

// WidthMask returns a mask covering all lanes of a wave of the given width.
// For width 64 this is all ones.
func WidthMask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width)) - 1
}
