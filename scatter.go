package wavesort

import (
	"math/bits"

	"github.com/wavesort/wavesort/device"
	"github.com/wavesort/wavesort/internal/bitops"
)

// baseResolver supplies the two strategy-specific pieces of a scatter
// pass: which chunk of the input a group processes, and the group's global
// exclusive base offset per bucket.
type baseResolver interface {
	// chunkOf returns the group's position in the processing order.
	// Traditional uses the hardware group id directly; Onesweep draws a
	// virtual partition rank from an atomic counter, because chunk order
	// must match descriptor order and the device guarantees nothing
	// about launch order.
	chunkOf(g *device.GroupContext) int

	// bases resolves the group's global exclusive prefix per bucket.
	// counts holds the group's own per-bucket tally with tail sentinels
	// already excluded. Called after the local sort so Onesweep can
	// publish its aggregate before walking predecessors.
	bases(g *device.GroupContext, chunk int, counts *[radixBuckets]uint32) [radixBuckets]uint32
}

// scatterPass describes one pass of the sort for the scatter kernel.
type scatterPass struct {
	pass    int
	src     *device.Buffer
	dst     *device.Buffer
	srcPay  *device.Buffer // nil in KeysOnly mode
	dstPay  *device.Buffer
	count   func() uint32 // resolved element count
	codec   keyCodec
	resolve baseResolver
}

func (sp *scatterPass) first() bool { return sp.pass == 0 }
func (sp *scatterPass) last() bool  { return sp.pass == radixPasses-1 }

// scatterKernel builds the local-sort-and-scatter kernel for one pass.
//
// Each group: loads its chunk of keys (tail lanes past the element count
// get an all-ones sentinel so they sort to the very end locally), ranks
// every key among the same-digit lanes of its wave with an 8-round ballot
// multi-split, combines the wave histograms into group-wide offsets with
// the two-level scan, reorders keys and payload through shared memory,
// resolves its global per-bucket bases, and writes the live slots out.
//
// The reorder is a stable partition by the pass digit: within-wave ranks
// follow lane order, waves follow wave order, and chunks follow chunk
// order, so equal digits keep their relative input order and the composed
// four-pass sort is stable.
func scatterKernel(sp *scatterPass) device.KernelFunc {
	return func(g *device.GroupContext) {
		w := g.WaveWidth()
		waves := groupThreads / w
		waveKeys := keysPerThread * w
		shift := uint(sp.pass * radixBits)
		count := sp.count()
		// The uint32-ascending surrogate is the raw key; skip the
		// transform entirely in that case.
		transform := sp.first() && !sp.codec.identity()
		untransform := sp.last() && !sp.codec.identity()

		chunk := sp.resolve.chunkOf(g)
		base := chunk * partitionSize
		valid := 0
		if uint32(base) < count {
			valid = int(count) - base
			if valid > partitionSize {
				valid = partitionSize
			}
		}

		// Shared memory.
		waveHist := g.Shared(waves * radixBuckets)
		bucketExcl := g.Shared(radixBuckets)
		scanTotals := g.Shared(waves)
		reKeys := g.Shared(partitionSize)
		var rePay []uint32
		if sp.srcPay != nil {
			rePay = g.Shared(partitionSize)
		}
		for i := range waveHist {
			waveHist[i] = 0
		}

		// Registers: one surrogate key, digit, and within-wave rank per
		// element.
		var keys [partitionSize]uint32
		var digits [partitionSize]uint8
		var waveRank [partitionSize]uint16

		srcW := sp.src.Words()
		for e := 0; e < partitionSize; e++ {
			k := ^uint32(0)
			if e < valid {
				k = srcW[base+e]
				if transform {
					k = sp.codec.forward(k)
				}
			}
			keys[e] = k
			digits[e] = uint8(k >> shift)
		}

		// Wave-level multi-split: for each row of W lanes, eight ballot
		// rounds intersect down to each lane's same-digit peer mask.
		var peers [64]uint64
		for wv := 0; wv < waves; wv++ {
			wh := waveHist[wv*radixBuckets : (wv+1)*radixBuckets]
			for k := 0; k < keysPerThread; k++ {
				row := wv*waveKeys + k*w
				full := bitops.WidthMask(w)
				for lane := 0; lane < w; lane++ {
					peers[lane] = full
				}
				for bit := 0; bit < radixBits; bit++ {
					ballot := device.Ballot(w, func(lane int) bool {
						return digits[row+lane]>>uint(bit)&1 == 1
					})
					for lane := 0; lane < w; lane++ {
						if digits[row+lane]>>uint(bit)&1 == 1 {
							peers[lane] &= ballot
						} else {
							peers[lane] &^= ballot
						}
					}
				}
				// Every lane ranks against the pre-round histogram;
				// the lowest peer then commits the round's total.
				for lane := 0; lane < w; lane++ {
					d := digits[row+lane]
					waveRank[row+lane] = uint16(wh[d]) + uint16(bitops.RankInMask(peers[lane], lane))
				}
				for lane := 0; lane < w; lane++ {
					if bitops.LowestLane(peers[lane]) == lane {
						wh[digits[row+lane]] += uint32(bits.OnesCount64(peers[lane]))
					}
				}
			}
		}

		// Per bucket, convert wave tallies to exclusive-across-waves
		// offsets and collect the group totals.
		var counts [radixBuckets]uint32
		for b := 0; b < radixBuckets; b++ {
			var run uint32
			for wv := 0; wv < waves; wv++ {
				t := waveHist[wv*radixBuckets+b]
				waveHist[wv*radixBuckets+b] = run
				run += t
			}
			counts[b] = run
		}

		// Group-wide exclusive bucket offsets via the two-level scan.
		copy(bucketExcl, counts[:])
		groupExclusiveScan(w, bucketExcl, scanTotals)

		// Stable reorder into shared memory.
		var payW []uint32
		if sp.srcPay != nil {
			payW = sp.srcPay.Words()
		}
		for e := 0; e < partitionSize; e++ {
			d := digits[e]
			p := bucketExcl[d] + waveHist[(e/waveKeys)*radixBuckets+int(d)] + uint32(waveRank[e])
			reKeys[p] = keys[e]
			if rePay != nil && e < valid {
				rePay[p] = payW[base+e]
			}
		}

		// Publish this group's live tallies (sentinels excluded — they
		// were never counted by the histogram) and resolve the global
		// per-bucket bases.
		counts[radixBuckets-1] -= uint32(partitionSize - valid)
		bases := sp.resolve.bases(g, chunk, &counts)

		// Sentinels sorted to the tail of the tile, so slots [0, valid)
		// are exactly the live keys.
		dstW := sp.dst.Words()
		var dstPayW []uint32
		if sp.dstPay != nil {
			dstPayW = sp.dstPay.Words()
		}
		for s := 0; s < valid; s++ {
			k := reKeys[s]
			d := k >> shift & (radixBuckets - 1)
			idx := bases[d] + uint32(s) - bucketExcl[d]
			if untransform {
				dstW[idx] = sp.codec.inverse(k)
			} else {
				dstW[idx] = k
			}
			if rePay != nil {
				dstPayW[idx] = rePay[s]
			}
		}
	}
}
