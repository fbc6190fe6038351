package wavesort

import (
	"context"

	"github.com/wavesort/wavesort/device"
)

// traditionalPipeline is the conservative multi-kernel strategy: per pass
// it issues histogram, two offset-scan kernels, and scatter as four
// sequential dispatches against the same buffers, so every stage sees a
// full device barrier before the next. No cross-group protocol, no
// unbounded waits.
type traditionalPipeline struct {
	e *Engine
}

func (p *traditionalPipeline) run(ctx context.Context, job *sortJob) error {
	e := p.e
	plan, err := e.plan(ctx, job)
	if err != nil {
		return err
	}

	srcK, dstK := job.keys, e.bufs.altKeys
	srcP, dstP := job.payload, e.bufs.altPayload

	for pass := 0; pass < radixPasses; pass++ {
		hist := histogramKernel(pass, srcK, e.bufs.hist, plan.count, plan.groupCount, e.codec)
		if err := plan.dispatchChunked(ctx, "pass-histogram", hist); err != nil {
			return err
		}

		scanHist := scanHistKernel(e.bufs.hist, e.bufs.bucketTotals, plan.groupCount)
		if err := e.dev.Dispatch(ctx, "scan-histogram",
			device.Dim3{X: radixBuckets, Y: 1, Z: 1}, scanHist); err != nil {
			return err
		}
		if err := e.dev.Dispatch(ctx, "scan-bucket-totals",
			device.Dim3{X: 1, Y: 1, Z: 1}, scanTotalsKernel(e.bufs.bucketTotals)); err != nil {
			return err
		}

		scatter := scatterKernel(&scatterPass{
			pass:   pass,
			src:    srcK,
			dst:    dstK,
			srcPay: srcP,
			dstPay: dstP,
			count:  plan.count,
			codec:  e.codec,
			resolve: &directResolver{
				hist:       e.bufs.hist,
				totals:     e.bufs.bucketTotals,
				groupCount: plan.groupCount,
			},
		})
		if err := plan.dispatchChunked(ctx, "pass-scatter", scatter); err != nil {
			return err
		}

		srcK, dstK = dstK, srcK
		srcP, dstP = dstP, srcP
	}
	return nil
}

// scanHistKernel is the first offset-resolution kernel: one group per
// bucket exclusive-scans that bucket's row of the bucket × group table,
// turning counts into per-group local base offsets, and parks the bucket's
// grand total. Rows longer than one group tile are covered with a running
// carry across tiles.
func scanHistKernel(hist, totals *device.Buffer, groupCount func() uint32) device.KernelFunc {
	return func(g *device.GroupContext) {
		w := g.WaveWidth()
		cols := int(groupCount())
		row := hist.Words()[g.Index*cols : (g.Index+1)*cols]
		scratch := g.Shared(groupThreads / w)

		var carry uint32
		for t := 0; t < cols; t += groupThreads {
			hi := t + groupThreads
			if hi > cols {
				hi = cols
			}
			span := row[t:hi]
			tileTotal := groupExclusiveScan(w, span, scratch)
			if carry != 0 {
				for i := range span {
					span[i] += carry
				}
			}
			carry += tileTotal
		}
		totals.Words()[g.Index] = carry
	}
}

// scanTotalsKernel is the second offset-resolution kernel: a single group
// exclusive-scans the 256 bucket grand totals in place, yielding the
// global per-bucket base offsets.
func scanTotalsKernel(totals *device.Buffer) device.KernelFunc {
	return func(g *device.GroupContext) {
		w := g.WaveWidth()
		scratch := g.Shared(groupThreads / w)
		groupExclusiveScan(w, totals.Words()[:radixBuckets], scratch)
	}
}

// directResolver resolves scatter bases from the scanned tables. The
// chunk a group processes is simply its hardware id — dispatch barriers
// already ordered every table write before the scatter launched.
type directResolver struct {
	hist       *device.Buffer
	totals     *device.Buffer
	groupCount func() uint32
}

func (r *directResolver) chunkOf(g *device.GroupContext) int { return g.Index }

func (r *directResolver) bases(g *device.GroupContext, chunk int, counts *[radixBuckets]uint32) [radixBuckets]uint32 {
	cols := int(r.groupCount())
	var bases [radixBuckets]uint32
	for b := 0; b < radixBuckets; b++ {
		bases[b] = r.totals.Words()[b] + r.hist.Words()[b*cols+chunk]
	}
	return bases
}
