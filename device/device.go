// Package device implements the compute-device model the wavesort engine
// runs on: 4-byte-stride buffers in device memory, compute kernels
// dispatched over a grid of thread groups, lock-step waves with cross-lane
// primitives, and word-granular global atomics.
//
// # Execution model
//
// A dispatch launches groups in grid order onto a bounded set of resident
// execution slots. Groups sharing a dispatch observe no ordering guarantee
// beyond one property: a group that has started running keeps its slot
// until it returns, and groups are admitted in launch order. Cross-group
// communication must go through the buffer atomics; plain loads and stores
// are only coherent within a single group.
//
// # Capability detection
//
// The device reports a wave width of 32 or 64 lanes. Probe derives the
// width from the host CPU's vector capabilities; callers can pin a width
// explicitly with WithWaveWidth, which fails if it names anything else.
// The capability value is threaded explicitly through Open — there is no
// process-wide cached probe result.
package device

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"

	wserrors "github.com/wavesort/wavesort/errors"
)

// MaxGroupsPerDispatch is the per-axis limit on dispatch group counts,
// matching the 16-bit grid limits of the hardware this model mirrors.
const MaxGroupsPerDispatch = 65535

// Capabilities describes the execution resources a device exposes.
type Capabilities struct {
	// WaveWidth is the number of lock-step lanes per wave, 32 or 64.
	WaveWidth int

	// ResidentGroups is the number of thread groups that can execute
	// concurrently. Groups beyond this count wait for a slot.
	ResidentGroups int

	// Name identifies the probed device.
	Name string
}

// Probe inspects the host and returns the capabilities a freshly opened
// device would report. Wide vector units (AVX-512 class) map to 64-lane
// waves; everything else reports 32.
func Probe() Capabilities {
	width := 32
	if cpuid.CPU.Supports(cpuid.AVX512F) {
		width = 64
	}
	name := cpuid.CPU.BrandName
	if name == "" {
		name = "generic-" + runtime.GOARCH
	}
	return Capabilities{
		WaveWidth:      width,
		ResidentGroups: runtime.GOMAXPROCS(0),
		Name:           name,
	}
}

// Option configures a Device at Open time.
type Option func(*Capabilities)

// WithWaveWidth pins the device wave width. Only 32 and 64 are valid;
// Open fails for any other value.
func WithWaveWidth(width int) Option {
	return func(c *Capabilities) {
		c.WaveWidth = width
	}
}

// WithResidentGroups sets the number of concurrently executing groups.
func WithResidentGroups(n int) Option {
	return func(c *Capabilities) {
		c.ResidentGroups = n
	}
}

// Device is a simulated compute device. A Device owns the buffers
// allocated from it; Close releases all of them. All methods are safe for
// use from a single host goroutine per the engine contract; independent
// devices may be used concurrently.
type Device struct {
	caps Capabilities

	mu      sync.Mutex
	buffers map[*Buffer]struct{}
	closed  bool

	sharedPool sync.Pool // per-group shared-memory scratch
}

// groupSharedWords is the per-group local-memory budget in 4-byte words.
// Kernels requesting more than this panic, mirroring a shader that fails
// to compile against the hardware limit.
const groupSharedWords = 8192

// Open creates a device from the probed capabilities, adjusted by opts.
func Open(opts ...Option) (*Device, error) {
	caps := Probe()
	for _, opt := range opts {
		opt(&caps)
	}
	if caps.WaveWidth != 32 && caps.WaveWidth != 64 {
		return nil, fmt.Errorf("%w: got %d", wserrors.ErrUnsupportedWaveWidth, caps.WaveWidth)
	}
	if caps.ResidentGroups < 1 {
		return nil, fmt.Errorf("%w: got %d", wserrors.ErrResidentGroups, caps.ResidentGroups)
	}
	d := &Device{
		caps:    caps,
		buffers: make(map[*Buffer]struct{}),
	}
	d.sharedPool.New = func() any {
		return make([]uint32, groupSharedWords)
	}
	return d, nil
}

// Capabilities returns the device's effective capabilities.
func (d *Device) Capabilities() Capabilities {
	return d.caps
}

// WaveWidth returns the device wave width (32 or 64).
func (d *Device) WaveWidth() int {
	return d.caps.WaveWidth
}

// Close releases every live buffer allocated from the device and marks it
// closed. Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	var firstErr error
	for b := range d.buffers {
		if err := b.unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.buffers = nil
	return firstErr
}

func (d *Device) track(b *Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return wserrors.ErrDeviceClosed
	}
	d.buffers[b] = struct{}{}
	return nil
}

func (d *Device) untrack(b *Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buffers != nil {
		delete(d.buffers, b)
	}
}
