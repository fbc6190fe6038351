package wavesort

import "github.com/wavesort/wavesort/device"

// groupExclusiveScan converts vals, held one value per thread across a
// group, into its exclusive prefix sum and returns the grand total.
//
// The shape is the standard two-level scan: each wave computes an
// inclusive scan over its span with cross-lane shuffles, parks its total
// in shared memory at a rotated slot (spreading the stores across banks),
// a single wave combines the parked totals, and every lane then folds in
// its wave's exclusive prefix while downshifting to an exclusive result.
//
// totals is caller-provided shared scratch with room for one word per
// wave; callers running the scan in a loop reuse the same scratch.
func groupExclusiveScan(waveWidth int, vals, totals []uint32) uint32 {
	w := waveWidth
	waves := (len(vals) + w - 1) / w

	for i := 0; i < waves; i++ {
		lo := i * w
		hi := lo + w
		if hi > len(vals) {
			hi = len(vals)
		}
		span := vals[lo:hi]
		device.WaveInclusiveScan(span)
		totals[(i+1)%waves] = span[len(span)-1]
	}

	// Combine the parked wave totals into per-wave exclusive prefixes,
	// unrotating as we go, and downshift each wave's inclusive span.
	var run uint32
	for i := 0; i < waves; i++ {
		lo := i * w
		hi := lo + w
		if hi > len(vals) {
			hi = len(vals)
		}
		span := vals[lo:hi]
		waveTotal := totals[(i+1)%waves]
		for lane := len(span) - 1; lane > 0; lane-- {
			span[lane] = span[lane-1] + run
		}
		span[0] = run
		run += waveTotal
	}
	return run
}
