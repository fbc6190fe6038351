package wavesort

import (
	"context"

	"github.com/wavesort/wavesort/device"
)

// onesweepPipeline is the single-pass chained-scan strategy: one clear,
// one global histogram over all four passes, one descriptor seeding, then
// exactly one fused scatter dispatch per pass. Cross-group offsets inside
// a scatter dispatch are resolved by the decoupled look-back protocol
// (see lookback.go) instead of barrier-separated scan kernels.
type onesweepPipeline struct {
	e *Engine
}

func (p *onesweepPipeline) run(ctx context.Context, job *sortJob) error {
	e := p.e

	plan, err := e.plan(ctx, job)
	if err != nil {
		return err
	}

	clear := sweepClearKernel(e.bufs.upfrontHist, e.bufs.desc, e.bufs.passIndex, e.maxGroups)
	if err := plan.dispatchChunked(ctx, "sweep-clear", clear); err != nil {
		return err
	}

	hist := upfrontHistogramKernel(job.keys, e.bufs.upfrontHist, plan.count, e.codec)
	if err := plan.dispatchUpfront(ctx, "global-histogram", hist); err != nil {
		return err
	}

	seed := seedKernel(e.bufs.upfrontHist, e.bufs.desc, e.maxGroups)
	if err := e.dev.Dispatch(ctx, "seed-descriptors", device.Dim3{X: 1, Y: 1, Z: 1}, seed); err != nil {
		return err
	}

	srcK, dstK := job.keys, e.bufs.altKeys
	srcP, dstP := job.payload, e.bufs.altPayload

	for pass := 0; pass < radixPasses; pass++ {
		scatter := scatterKernel(&scatterPass{
			pass:   pass,
			src:    srcK,
			dst:    dstK,
			srcPay: srcP,
			dstPay: dstP,
			count:  plan.count,
			codec:  e.codec,
			resolve: &lookbackResolver{
				pass:      pass,
				desc:      e.bufs.desc,
				passIndex: e.bufs.passIndex,
				maxSlots:  e.maxGroups,
			},
		})
		if err := plan.dispatchChunked(ctx, "sweep-scatter", scatter); err != nil {
			return err
		}

		srcK, dstK = dstK, srcK
		srcP, dstP = dstP, srcP
	}
	return nil
}
