package device

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	wserrors "github.com/wavesort/wavesort/errors"
)

// Dim3 is a three-dimensional dispatch size. Sort kernels only use X, but
// the grid is three-dimensional to match the dispatch interface of the
// hardware this model mirrors.
type Dim3 struct {
	X, Y, Z uint32
}

// Count returns the flattened group count of the grid.
func (d Dim3) Count() int {
	return int(d.X) * int(d.Y) * int(d.Z)
}

// KernelFunc is the body of a compute kernel, invoked once per thread
// group. The function simulates every wave and lane of its group; the
// GroupContext supplies the group's grid position, wave geometry, and
// shared-memory scratch.
type KernelFunc func(g *GroupContext)

// GroupContext carries the per-group execution state handed to a
// KernelFunc.
type GroupContext struct {
	// Index is the group's flattened position in the dispatch grid.
	// This is the hardware-assigned id; kernels that need a position in
	// the dynamic processing order must obtain a rank through a buffer
	// atomic instead (see the partition-index protocol in the engine).
	Index int

	// Grid is the dispatch size the kernel was launched with.
	Grid Dim3

	dev     *Device
	scratch []uint32
	used    int
}

// WaveWidth returns the device wave width.
func (g *GroupContext) WaveWidth() int { return g.dev.caps.WaveWidth }

// Shared allocates words of group-shared scratch memory. The contents are
// uninitialized, as on real hardware. Exceeding the per-group budget
// panics: that is a kernel authoring bug, the analogue of a shader failing
// to compile against the local-memory limit.
func (g *GroupContext) Shared(words int) []uint32 {
	if g.used+words > len(g.scratch) {
		panic(fmt.Sprintf("device: group shared memory over budget: %d + %d > %d",
			g.used, words, len(g.scratch)))
	}
	s := g.scratch[g.used : g.used+words]
	g.used += words
	return s
}

// Dispatch launches kernel over a grid of groups and blocks until every
// group has completed. Completion of Dispatch is the device-wide barrier:
// writes performed by any group are visible to every group of the next
// dispatch.
//
// Groups are admitted to execution in flattened grid order, at most
// ResidentGroups at a time, and a running group keeps its execution slot
// until it returns. Kernels relying on dynamically-ordered cross-group
// protocols get their forward progress from exactly this bounded-rotation
// property.
func (d *Device) Dispatch(ctx context.Context, name string, grid Dim3, kernel KernelFunc) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return fmt.Errorf("dispatch %s: %w", name, wserrors.ErrDeviceClosed)
	}
	if grid.X > MaxGroupsPerDispatch || grid.Y > MaxGroupsPerDispatch || grid.Z > MaxGroupsPerDispatch {
		return fmt.Errorf("dispatch %s: %w: %dx%dx%d", name, wserrors.ErrDispatchTooLarge,
			grid.X, grid.Y, grid.Z)
	}
	groups := grid.Count()
	if groups == 0 {
		return nil
	}

	// The errgroup-derived context is only for cutting the admission
	// loop short; it is canceled as soon as Wait returns, so completion
	// must be judged against the caller's context.
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(d.caps.ResidentGroups)
	for i := 0; i < groups; i++ {
		if err := gctx.Err(); err != nil {
			break
		}
		g := &GroupContext{
			Index: i,
			Grid:  grid,
			dev:   d,
		}
		eg.Go(func() error {
			g.scratch = d.sharedPool.Get().([]uint32)
			kernel(g)
			g.used = 0
			d.sharedPool.Put(g.scratch)
			g.scratch = nil
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("dispatch %s: %w", name, err)
	}
	return ctx.Err()
}

// DispatchIndirect launches kernel with a grid read from three consecutive
// words of args at argWordOffset. The words were written by an earlier
// dispatch against the same device, so the read is ordered by that
// dispatch's completion barrier.
func (d *Device) DispatchIndirect(ctx context.Context, name string, args *Buffer, argWordOffset int, kernel KernelFunc) error {
	if args.Released() {
		return fmt.Errorf("dispatch %s: %w", name, wserrors.ErrBufferReleased)
	}
	var triple [3]uint32
	if err := args.Read(argWordOffset, triple[:]); err != nil {
		return fmt.Errorf("dispatch %s: read args: %w", name, err)
	}
	return d.Dispatch(ctx, name, Dim3{X: triple[0], Y: triple[1], Z: triple[2]}, kernel)
}
