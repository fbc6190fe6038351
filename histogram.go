package wavesort

import "github.com/wavesort/wavesort/device"

// Histogram kernels. Both variants accumulate digit counts in shared
// memory split across two interleaved banks, waves alternating between
// them by parity, which halves contention on hot buckets before the single
// atomic flush to the global table.

// histogramKernel builds the Traditional per-pass kernel: each group
// counts the digits of its own scatter chunk and adds the tally into its
// column of the bucket × group table. Columns are zeroed by their owning
// group on entry, so the table needs no separate clear dispatch.
func histogramKernel(pass int, src *device.Buffer, hist *device.Buffer,
	count func() uint32, groupCount func() uint32, codec keyCodec) device.KernelFunc {
	return func(g *device.GroupContext) {
		w := g.WaveWidth()
		waveKeys := keysPerThread * w
		shift := uint(pass * radixBits)
		n := count()
		cols := int(groupCount())
		transform := pass == 0 && !codec.identity()

		bank0 := g.Shared(radixBuckets)
		bank1 := g.Shared(radixBuckets)
		for b := 0; b < radixBuckets; b++ {
			bank0[b] = 0
			bank1[b] = 0
			hist.Words()[b*cols+g.Index] = 0
		}

		srcW := src.Words()
		base := g.Index * partitionSize
		for e := 0; e < partitionSize; e++ {
			idx := base + e
			if uint32(idx) >= n {
				break
			}
			k := srcW[idx]
			if transform {
				k = codec.forward(k)
			}
			d := int(k >> shift & (radixBuckets - 1))
			if (e/waveKeys)&1 == 0 {
				bank0[d]++
			} else {
				bank1[d]++
			}
		}

		for b := 0; b < radixBuckets; b++ {
			if t := bank0[b] + bank1[b]; t != 0 {
				hist.AtomicAdd(b*cols+g.Index, t)
			}
		}
	}
}

// upfrontHistogramKernel builds the Onesweep global histogram: one
// dispatch reads every key once and counts all four digits into the
// radixPasses × radixBuckets table, amortizing the key read across passes.
// The table is zeroed by the sweep-clear kernel beforehand.
func upfrontHistogramKernel(src *device.Buffer, hist *device.Buffer,
	count func() uint32, codec keyCodec) device.KernelFunc {
	return func(g *device.GroupContext) {
		w := g.WaveWidth()
		waveKeys := keysPerThread * w
		n := count()
		transform := !codec.identity()

		bank0 := g.Shared(radixPasses * radixBuckets)
		bank1 := g.Shared(radixPasses * radixBuckets)
		for i := range bank0 {
			bank0[i] = 0
			bank1[i] = 0
		}

		srcW := src.Words()
		base := g.Index * upfrontPartitionSize
		for e := 0; e < upfrontPartitionSize; e++ {
			idx := base + e
			if uint32(idx) >= n {
				break
			}
			k := srcW[idx]
			if transform {
				k = codec.forward(k)
			}
			bank := bank0
			if (e/waveKeys)&1 == 1 {
				bank = bank1
			}
			for pass := 0; pass < radixPasses; pass++ {
				d := int(k >> uint(pass*radixBits) & (radixBuckets - 1))
				bank[pass*radixBuckets+d]++
			}
		}

		for i := 0; i < radixPasses*radixBuckets; i++ {
			if t := bank0[i] + bank1[i]; t != 0 {
				hist.AtomicAdd(i, t)
			}
		}
	}
}
