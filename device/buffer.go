package device

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"

	wserrors "github.com/wavesort/wavesort/errors"
)

// Buffer is a block of device memory with a fixed element stride. Sort
// buffers use the canonical 4-byte stride; NewBufferStrided exists so that
// callers holding differently-strided memory get a contract error from the
// engine instead of silent reinterpretation.
//
// Host access (Write, Read, Fill, Checksum) must not race with a dispatch
// that touches the same buffer. Kernel access goes through Words for plain
// loads/stores and through the Atomic methods for cross-group mutation.
type Buffer struct {
	owner    *Device
	raw      mmap.MMap
	words    []uint32
	elems    int
	stride   int
	released bool
}

// NewBuffer allocates a buffer of elems 4-byte elements in device memory.
func (d *Device) NewBuffer(elems int) (*Buffer, error) {
	return d.NewBufferStrided(elems, 4)
}

// NewBufferStrided allocates a buffer of elems elements with the given
// byte stride. The sort engine only accepts 4-byte strides; other strides
// are allocatable so stride violations are observable.
func (d *Device) NewBufferStrided(elems, stride int) (*Buffer, error) {
	if elems < 1 {
		return nil, fmt.Errorf("%w: got %d", wserrors.ErrInvalidBufferSize, elems)
	}
	if stride < 1 {
		return nil, fmt.Errorf("%w: stride %d", wserrors.ErrInvalidBufferSize, stride)
	}
	size := elems * stride
	// Round up to whole words so the uint32 view covers the tail.
	size = (size + 3) &^ 3
	raw, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("map device memory: %w", err)
	}
	adviseHugePages(raw)
	b := &Buffer{
		owner:  d,
		raw:    raw,
		words:  unsafe.Slice((*uint32)(unsafe.Pointer(&raw[0])), size/4),
		elems:  elems,
		stride: stride,
	}
	if err := d.track(b); err != nil {
		_ = raw.Unmap()
		return nil, err
	}
	return b, nil
}

// Len returns the element count the buffer was allocated with.
func (b *Buffer) Len() int { return b.elems }

// Stride returns the element stride in bytes.
func (b *Buffer) Stride() int { return b.stride }

// Released reports whether the buffer's memory has been returned.
func (b *Buffer) Released() bool { return b.released }

// Words exposes the buffer as device words. Kernels index this slice
// directly for plain access; host code should prefer Read and Write.
func (b *Buffer) Words() []uint32 { return b.words }

// Release unmaps the buffer. Releasing twice is a no-op.
func (b *Buffer) Release() error {
	if b.released {
		return nil
	}
	b.owner.untrack(b)
	return b.unmap()
}

func (b *Buffer) unmap() error {
	if b.released {
		return nil
	}
	b.released = true
	b.words = nil
	raw := b.raw
	b.raw = nil
	return raw.Unmap()
}

// Write copies src into the buffer starting at word offset off.
func (b *Buffer) Write(off int, src []uint32) error {
	if b.released {
		return wserrors.ErrBufferReleased
	}
	if off < 0 || off+len(src) > len(b.words) {
		return fmt.Errorf("%w: write [%d, %d) into %d words",
			wserrors.ErrBufferTooSmall, off, off+len(src), len(b.words))
	}
	copy(b.words[off:], src)
	return nil
}

// Read copies words [off, off+len(dst)) into dst.
func (b *Buffer) Read(off int, dst []uint32) error {
	if b.released {
		return wserrors.ErrBufferReleased
	}
	if off < 0 || off+len(dst) > len(b.words) {
		return fmt.Errorf("%w: read [%d, %d) from %d words",
			wserrors.ErrBufferTooSmall, off, off+len(dst), len(b.words))
	}
	copy(dst, b.words[off:])
	return nil
}

// Fill sets every word of the buffer to v.
func (b *Buffer) Fill(v uint32) error {
	if b.released {
		return wserrors.ErrBufferReleased
	}
	for i := range b.words {
		b.words[i] = v
	}
	return nil
}

// Checksum returns an xxHash64 digest of the buffer's raw bytes. Callers
// use it to assert that an operation left a buffer untouched, or that only
// a defined prefix changed.
func (b *Buffer) Checksum() uint64 {
	if b.released {
		return 0
	}
	return xxhash.Sum64(b.raw)
}

// ChecksumRange returns an xxHash64 digest of words [off, off+n), letting
// callers checksum a defined prefix separately from an unspecified tail.
func (b *Buffer) ChecksumRange(off, n int) (uint64, error) {
	if b.released {
		return 0, wserrors.ErrBufferReleased
	}
	if off < 0 || n < 0 || off+n > len(b.words) {
		return 0, fmt.Errorf("%w: checksum [%d, %d) of %d words",
			wserrors.ErrBufferTooSmall, off, off+n, len(b.words))
	}
	return xxhash.Sum64(b.raw[off*4 : (off+n)*4]), nil
}

// AtomicLoad returns word i with acquire semantics.
func (b *Buffer) AtomicLoad(i int) uint32 {
	return atomic.LoadUint32(&b.words[i])
}

// AtomicStore writes word i with release semantics.
func (b *Buffer) AtomicStore(i int, v uint32) {
	atomic.StoreUint32(&b.words[i], v)
}

// AtomicAdd adds delta to word i and returns the value the word held
// before the addition (fetch-add).
func (b *Buffer) AtomicAdd(i int, delta uint32) uint32 {
	return atomic.AddUint32(&b.words[i], delta) - delta
}

// AtomicCAS installs next at word i if it still holds old.
func (b *Buffer) AtomicCAS(i int, old, next uint32) bool {
	return atomic.CompareAndSwapUint32(&b.words[i], old, next)
}
