package device

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	wserrors "github.com/wavesort/wavesort/errors"
)

func openTestDevice(t testing.TB, opts ...Option) *Device {
	t.Helper()
	dev, err := Open(opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := dev.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return dev
}

func TestProbe(t *testing.T) {
	caps := Probe()
	if caps.WaveWidth != 32 && caps.WaveWidth != 64 {
		t.Errorf("WaveWidth = %d, want 32 or 64", caps.WaveWidth)
	}
	if caps.ResidentGroups < 1 {
		t.Errorf("ResidentGroups = %d, want >= 1", caps.ResidentGroups)
	}
	if caps.Name == "" {
		t.Error("empty device name")
	}
}

func TestOpenValidatesCapabilities(t *testing.T) {
	if _, err := Open(WithWaveWidth(16)); !errors.Is(err, wserrors.ErrUnsupportedWaveWidth) {
		t.Errorf("width 16: err = %v, want ErrUnsupportedWaveWidth", err)
	}
	if _, err := Open(WithWaveWidth(48)); !errors.Is(err, wserrors.ErrUnsupportedWaveWidth) {
		t.Errorf("width 48: err = %v, want ErrUnsupportedWaveWidth", err)
	}
	if _, err := Open(WithResidentGroups(0)); !errors.Is(err, wserrors.ErrResidentGroups) {
		t.Errorf("0 resident groups: err = %v, want ErrResidentGroups", err)
	}

	for _, width := range []int{32, 64} {
		dev := openTestDevice(t, WithWaveWidth(width))
		if dev.WaveWidth() != width {
			t.Errorf("WaveWidth() = %d, want %d", dev.WaveWidth(), width)
		}
	}
}

func TestBufferLifecycle(t *testing.T) {
	dev := openTestDevice(t)

	if _, err := dev.NewBuffer(0); !errors.Is(err, wserrors.ErrInvalidBufferSize) {
		t.Errorf("0 elems: err = %v, want ErrInvalidBufferSize", err)
	}
	if _, err := dev.NewBufferStrided(8, 0); !errors.Is(err, wserrors.ErrInvalidBufferSize) {
		t.Errorf("0 stride: err = %v, want ErrInvalidBufferSize", err)
	}

	buf, err := dev.NewBuffer(1000)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if buf.Len() != 1000 || buf.Stride() != 4 {
		t.Errorf("Len/Stride = %d/%d, want 1000/4", buf.Len(), buf.Stride())
	}

	src := make([]uint32, 1000)
	for i := range src {
		src[i] = uint32(i * 7)
	}
	if err := buf.Write(0, src); err != nil {
		t.Fatalf("Write: %v", err)
	}
	dst := make([]uint32, 1000)
	if err := buf.Read(0, dst); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("readback mismatch at %d: got %d, want %d", i, dst[i], src[i])
		}
	}

	sum := buf.Checksum()
	if buf.Checksum() != sum {
		t.Error("checksum not deterministic")
	}
	fullSum, err := buf.ChecksumRange(0, 1000)
	if err != nil {
		t.Fatalf("ChecksumRange: %v", err)
	}
	if fullSum != sum {
		t.Error("full-range checksum differs from Checksum")
	}
	prefixSum, err := buf.ChecksumRange(0, 500)
	if err != nil {
		t.Fatalf("ChecksumRange: %v", err)
	}
	if prefixSum == sum {
		t.Error("prefix checksum unexpectedly equals full checksum")
	}
	if _, err := buf.ChecksumRange(999, 2); !errors.Is(err, wserrors.ErrBufferTooSmall) {
		t.Errorf("out-of-range checksum: err = %v", err)
	}
	if _, err := buf.ChecksumRange(-1, 1); !errors.Is(err, wserrors.ErrBufferTooSmall) {
		t.Errorf("negative-offset checksum: err = %v", err)
	}
	if err := buf.Fill(0xAA); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if buf.Checksum() == sum {
		t.Error("checksum unchanged after Fill")
	}
	if buf.AtomicLoad(500) != 0xAA {
		t.Error("Fill did not reach element 500")
	}

	if err := buf.Write(999, []uint32{1, 2}); !errors.Is(err, wserrors.ErrBufferTooSmall) {
		t.Errorf("out-of-range write: err = %v", err)
	}
	if err := buf.Read(-1, dst[:1]); !errors.Is(err, wserrors.ErrBufferTooSmall) {
		t.Errorf("negative-offset read: err = %v", err)
	}

	if err := buf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !buf.Released() {
		t.Error("Released() false after Release")
	}
	if err := buf.Release(); err != nil {
		t.Errorf("double release: err = %v, want nil", err)
	}
	if err := buf.Write(0, src[:1]); !errors.Is(err, wserrors.ErrBufferReleased) {
		t.Errorf("write after release: err = %v, want ErrBufferReleased", err)
	}
}

func TestCloseReleasesTrackedBuffers(t *testing.T) {
	dev, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	a, err := dev.NewBuffer(64)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	b, err := dev.NewBuffer(64)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.Released() || !b.Released() {
		t.Error("Close left tracked buffers mapped")
	}
	if _, err := dev.NewBuffer(64); !errors.Is(err, wserrors.ErrDeviceClosed) {
		t.Errorf("alloc after close: err = %v, want ErrDeviceClosed", err)
	}
	if err := dev.Close(); err != nil {
		t.Errorf("double close: err = %v, want nil", err)
	}
}

func TestBufferAtomics(t *testing.T) {
	dev := openTestDevice(t)
	buf, err := dev.NewBuffer(8)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	buf.AtomicStore(3, 10)
	if prev := buf.AtomicAdd(3, 5); prev != 10 {
		t.Errorf("AtomicAdd prior = %d, want 10", prev)
	}
	if buf.AtomicLoad(3) != 15 {
		t.Errorf("AtomicLoad = %d, want 15", buf.AtomicLoad(3))
	}
	if buf.AtomicCAS(3, 14, 99) {
		t.Error("CAS with stale old value succeeded")
	}
	if !buf.AtomicCAS(3, 15, 99) {
		t.Error("CAS with current value failed")
	}
	if buf.AtomicLoad(3) != 99 {
		t.Errorf("AtomicLoad = %d, want 99", buf.AtomicLoad(3))
	}
}

func TestDispatchRunsEveryGroup(t *testing.T) {
	dev := openTestDevice(t)
	grid := Dim3{X: 37, Y: 3, Z: 1}

	var ran atomic.Uint32
	seen := make([]atomic.Bool, grid.Count())
	err := dev.Dispatch(context.Background(), "count-groups", grid, func(g *GroupContext) {
		ran.Add(1)
		if seen[g.Index].Swap(true) {
			t.Errorf("group %d ran twice", g.Index)
		}
		if g.WaveWidth() != dev.WaveWidth() {
			t.Errorf("group wave width %d != device %d", g.WaveWidth(), dev.WaveWidth())
		}
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if int(ran.Load()) != grid.Count() {
		t.Errorf("ran %d groups, want %d", ran.Load(), grid.Count())
	}
}

func TestDispatchSharedMemory(t *testing.T) {
	dev := openTestDevice(t)

	// Successive allocations within a group must not alias.
	err := dev.Dispatch(context.Background(), "shared-alias", Dim3{X: 4, Y: 1, Z: 1}, func(g *GroupContext) {
		a := g.Shared(256)
		b := g.Shared(256)
		for i := range a {
			a[i] = 1
		}
		for i := range b {
			b[i] = 2
		}
		for i := range a {
			if a[i] != 1 {
				t.Error("shared allocations alias")
				return
			}
		}
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// Exceeding the per-group budget is an authoring bug and panics.
	err = dev.Dispatch(context.Background(), "shared-budget", Dim3{X: 1, Y: 1, Z: 1}, func(g *GroupContext) {
		defer func() {
			if recover() == nil {
				t.Error("over-budget Shared did not panic")
			}
		}()
		g.Shared(groupSharedWords + 1)
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

func TestDispatchLimits(t *testing.T) {
	dev := openTestDevice(t)
	ctx := context.Background()
	nop := func(g *GroupContext) {}

	if err := dev.Dispatch(ctx, "oversized", Dim3{X: MaxGroupsPerDispatch + 1, Y: 1, Z: 1}, nop); !errors.Is(err, wserrors.ErrDispatchTooLarge) {
		t.Errorf("oversized grid: err = %v, want ErrDispatchTooLarge", err)
	}
	if err := dev.Dispatch(ctx, "empty", Dim3{}, nop); err != nil {
		t.Errorf("empty grid: err = %v, want nil", err)
	}

	closed, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	closed.Close()
	if err := closed.Dispatch(ctx, "closed", Dim3{X: 1, Y: 1, Z: 1}, nop); !errors.Is(err, wserrors.ErrDeviceClosed) {
		t.Errorf("closed device: err = %v, want ErrDeviceClosed", err)
	}
}

func TestDispatchHonorsCallerContext(t *testing.T) {
	dev := openTestDevice(t)
	nop := func(g *GroupContext) {}

	// A clean completion must come back nil, including across repeated
	// dispatches on one device: internal coordination contexts must not
	// leak out as a cancellation of a successful launch.
	for i := 0; i < 3; i++ {
		if err := dev.Dispatch(context.Background(), "clean", Dim3{X: 64, Y: 1, Z: 1}, nop); err != nil {
			t.Fatalf("dispatch %d: err = %v, want nil", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := dev.Dispatch(ctx, "canceled", Dim3{X: 64, Y: 1, Z: 1}, nop); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled context: err = %v, want context.Canceled", err)
	}
}

func TestDispatchIndirect(t *testing.T) {
	dev := openTestDevice(t)
	args, err := dev.NewBuffer(8)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if err := args.Write(0, []uint32{0, 0, 0, 5, 2, 1, 0, 0}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var ran atomic.Uint32
	err = dev.DispatchIndirect(context.Background(), "indirect", args, 3, func(g *GroupContext) {
		ran.Add(1)
		if g.Grid != (Dim3{X: 5, Y: 2, Z: 1}) {
			t.Errorf("grid = %+v, want {5 2 1}", g.Grid)
		}
	})
	if err != nil {
		t.Fatalf("DispatchIndirect: %v", err)
	}
	if ran.Load() != 10 {
		t.Errorf("ran %d groups, want 10", ran.Load())
	}

	if err := dev.DispatchIndirect(context.Background(), "bad-offset", args, 6, func(g *GroupContext) {}); !errors.Is(err, wserrors.ErrBufferTooSmall) {
		t.Errorf("triple past end: err = %v, want ErrBufferTooSmall", err)
	}
}

func TestWavePrimitives(t *testing.T) {
	pred := func(lane int) bool { return lane%3 == 0 }
	mask := Ballot(8, pred)
	if mask != 0b01001001 {
		t.Errorf("Ballot = %#b, want 0b01001001", mask)
	}

	vals := []uint32{3, 1, 4, 1, 5}
	WaveInclusiveScan(vals)
	want := []uint32{3, 4, 8, 9, 14}
	for i := range want {
		if vals[i] != want[i] {
			t.Fatalf("inclusive scan = %v, want %v", vals, want)
		}
	}

	vals = []uint32{3, 1, 4, 1, 5}
	total := WaveExclusiveScan(vals)
	wantEx := []uint32{0, 3, 4, 8, 9}
	for i := range wantEx {
		if vals[i] != wantEx[i] {
			t.Fatalf("exclusive scan = %v, want %v", vals, wantEx)
		}
	}
	if total != 14 {
		t.Errorf("exclusive scan total = %d, want 14", total)
	}

	if got := WaveSum([]uint32{2, 2, 2, 2}); got != 8 {
		t.Errorf("WaveSum = %d, want 8", got)
	}
}
