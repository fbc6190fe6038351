package wavesort

import (
	"context"

	"github.com/wavesort/wavesort/device"
)

// Indirect-dispatch argument buffer layout, in words. The precompute
// kernel fills it once per call; every later kernel in the call reads the
// packed (count, groupCount) pair instead of a host-supplied scalar, and
// the device reads the dispatch triples when launching.
const (
	argUpfrontGrid   = 0 // 3 words: global-histogram dispatch size
	argPartitionGrid = 3 // 3 words: histogram/scatter dispatch size
	argCount         = 6 // clamped element count
	argGroupCount    = 7 // scatter group count
	indirectArgWords = 8
)

// precomputeKernel derives the call's dispatch sizes from a
// device-resident element count. The count is clamped to limit — the
// configured maximum, bounded by the supplied buffers' capacity — and
// never rejected, however malformed the device-written value is.
func precomputeKernel(countBuf *device.Buffer, countOff int, limit uint32, args *device.Buffer) device.KernelFunc {
	return func(g *device.GroupContext) {
		n := countBuf.Words()[countOff]
		if n > limit {
			n = limit
		}
		groups := (n + partitionSize - 1) / partitionSize
		upfrontGroups := (n + upfrontPartitionSize - 1) / upfrontPartitionSize

		w := args.Words()
		w[argUpfrontGrid] = upfrontGroups
		w[argUpfrontGrid+1] = 1
		w[argUpfrontGrid+2] = 1
		w[argPartitionGrid] = groups
		w[argPartitionGrid+1] = 1
		w[argPartitionGrid+2] = 1
		w[argCount] = n
		w[argGroupCount] = groups
	}
}

// callPlan resolves the per-call dispatch geometry for a pipeline: where
// the element count comes from and how the chunked kernels are launched.
// Direct calls capture host scalars; indirect calls run the precompute
// kernel up front and then read everything from the argument buffer.
type callPlan struct {
	count      func() uint32
	groupCount func() uint32

	// dispatchChunked launches a kernel over the scatter/histogram grid.
	dispatchChunked func(ctx context.Context, name string, k device.KernelFunc) error

	// dispatchUpfront launches over the global-histogram grid.
	dispatchUpfront func(ctx context.Context, name string, k device.KernelFunc) error
}

func (e *Engine) plan(ctx context.Context, job *sortJob) (*callPlan, error) {
	if !job.indirect {
		n := uint32(job.count)
		groups := uint32(groupsFor(job.count))
		upfrontGroups := uint32((job.count + upfrontPartitionSize - 1) / upfrontPartitionSize)
		return &callPlan{
			count:      func() uint32 { return n },
			groupCount: func() uint32 { return groups },
			dispatchChunked: func(ctx context.Context, name string, k device.KernelFunc) error {
				return e.dev.Dispatch(ctx, name, device.Dim3{X: groups, Y: 1, Z: 1}, k)
			},
			dispatchUpfront: func(ctx context.Context, name string, k device.KernelFunc) error {
				return e.dev.Dispatch(ctx, name, device.Dim3{X: upfrontGroups, Y: 1, Z: 1}, k)
			},
		}, nil
	}

	args := e.bufs.indirectArgs
	pre := precomputeKernel(job.countBuf, job.countOff, e.clampLimit(job), args)
	if err := e.dev.Dispatch(ctx, "args-precompute", device.Dim3{X: 1, Y: 1, Z: 1}, pre); err != nil {
		return nil, err
	}
	return &callPlan{
		count:      func() uint32 { return args.Words()[argCount] },
		groupCount: func() uint32 { return args.Words()[argGroupCount] },
		dispatchChunked: func(ctx context.Context, name string, k device.KernelFunc) error {
			return e.dev.DispatchIndirect(ctx, name, args, argPartitionGrid, k)
		},
		dispatchUpfront: func(ctx context.Context, name string, k device.KernelFunc) error {
			return e.dev.DispatchIndirect(ctx, name, args, argUpfrontGrid, k)
		},
	}, nil
}
