package wavesort

import (
	"runtime"

	"github.com/wavesort/wavesort/device"
)

// Decoupled look-back: the Onesweep offset-resolution protocol.
//
// Per pass, every bucket has one descriptor cell per partition rank. A
// cell packs a 30-bit value with a 2-bit tag in the low bits and is
// written by exactly one producer rank, read by any number of later ranks:
//
//	invalid    seeded or zeroed; value not yet usable
//	aggregate  the producer's own bucket count
//	prefix     the producer's inclusive global prefix for the bucket
//
// Rank 0's cells are pre-seeded with the global per-bucket base offsets
// (still tagged invalid); the rank-0 group fetch-adds its counts with a
// prefix tag delta, both claiming the seeded base for itself and
// finalizing cell 0 in one atomic. Later ranks publish their counts as
// aggregates, then walk backwards accumulating aggregate values until a
// prefix cell stops the walk; the accumulated sum is the group's true
// exclusive base. Each finished walker folds its sum into its own cell
// with an aggregate→prefix tag delta, so later walkers stop sooner.
//
// The walk spins while a predecessor cell is still invalid. Nothing
// bounds that wait except the scheduler: the walk can only terminate once
// some earlier rank has published. The device model admits groups in
// launch order and never evicts a running group, which makes the spin
// terminating here; on schedulers without that property this protocol can
// stall, which is why the Traditional strategy exists.

// descCell flattens (pass, rank, bucket) into the descriptor buffer,
// which is strided by the engine-wide maximum group count so the layout
// is call-independent.
func descCell(maxSlots, pass, rank, bucket int) int {
	return (pass*maxSlots+rank)*radixBuckets + bucket
}

// seedKernel scans each pass's 256 global bucket counts into exclusive
// base offsets and parks them in the rank-0 descriptor cells, tagged
// invalid. Runs as a single group, reusing the two-level scan primitive.
func seedKernel(upfrontHist, desc *device.Buffer, maxSlots int) device.KernelFunc {
	return func(g *device.GroupContext) {
		w := g.WaveWidth()
		vals := g.Shared(radixBuckets)
		totals := g.Shared(groupThreads / w)
		for pass := 0; pass < radixPasses; pass++ {
			copy(vals, upfrontHist.Words()[pass*radixBuckets:(pass+1)*radixBuckets])
			groupExclusiveScan(w, vals, totals)
			for b := 0; b < radixBuckets; b++ {
				desc.Words()[descCell(maxSlots, pass, 0, b)] = vals[b]<<valueShift | flagInvalid
			}
		}
	}
}

// sweepClearKernel resets the Onesweep coordination state for a call:
// each group zeroes its own descriptor row for every pass, and group 0
// additionally zeroes the global histogram and the virtual-partition
// counters. Runs on the scatter grid so the cleared region always covers
// exactly the ranks that will be launched.
func sweepClearKernel(upfrontHist, desc, passIndex *device.Buffer, maxSlots int) device.KernelFunc {
	return func(g *device.GroupContext) {
		descW := desc.Words()
		for pass := 0; pass < radixPasses; pass++ {
			row := descCell(maxSlots, pass, g.Index, 0)
			for b := 0; b < radixBuckets; b++ {
				descW[row+b] = 0
			}
		}
		if g.Index == 0 {
			histW := upfrontHist.Words()
			for i := range histW {
				histW[i] = 0
			}
			for pass := 0; pass < radixPasses; pass++ {
				passIndex.Words()[pass] = 0
			}
		}
	}
}

// lookbackResolver implements baseResolver with the protocol above.
type lookbackResolver struct {
	pass      int
	desc      *device.Buffer
	passIndex *device.Buffer
	maxSlots  int
}

// chunkOf draws the group's virtual partition rank. Ranks form a
// contiguous permutation of the launched group count, assigned in the
// dynamic processing order rather than hardware launch order.
func (r *lookbackResolver) chunkOf(g *device.GroupContext) int {
	return int(r.passIndex.AtomicAdd(r.pass, 1))
}

func (r *lookbackResolver) bases(g *device.GroupContext, chunk int, counts *[radixBuckets]uint32) [radixBuckets]uint32 {
	var bases [radixBuckets]uint32

	if chunk == 0 {
		// Rank 0 needs no look-back: its base was seeded into its own
		// cells, and the fetch-add returns it while finalizing the cell.
		for b := 0; b < radixBuckets; b++ {
			cell := descCell(r.maxSlots, r.pass, 0, b)
			prev := r.desc.AtomicAdd(cell, counts[b]<<valueShift|flagPrefix)
			bases[b] = prev >> valueShift
		}
		return bases
	}

	// Publish this rank's aggregates so successors can make progress
	// while we walk.
	own := descCell(r.maxSlots, r.pass, chunk, 0)
	for b := 0; b < radixBuckets; b++ {
		r.desc.AtomicCAS(own+b, flagInvalid, counts[b]<<valueShift|flagAggregate)
	}

	for b := 0; b < radixBuckets; b++ {
		var sum uint32
	walk:
		for back := chunk - 1; ; {
			cell := r.desc.AtomicLoad(descCell(r.maxSlots, r.pass, back, b))
			switch cell & flagMask {
			case flagInvalid:
				// Predecessor hasn't published yet. Unbounded wait.
				runtime.Gosched()
			case flagAggregate:
				sum += cell >> valueShift
				back--
			default: // flagPrefix
				sum += cell >> valueShift
				break walk
			}
		}
		// Fold the discovered prefix into our own cell so later ranks
		// stop here instead of walking further back.
		r.desc.AtomicAdd(own+b, sum<<valueShift|(flagPrefix-flagAggregate))
		bases[b] = sum
	}
	return bases
}
