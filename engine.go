package wavesort

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/wavesort/wavesort/device"
	wserrors "github.com/wavesort/wavesort/errors"
)

// Engine is a device-resident radix sorter. An engine is configured once
// at construction — key type, order, sort mode, dispatch mode, algorithm —
// and owns every internal buffer it needs, sized to its maximum element
// count and reused across calls.
//
// An engine is single-threaded from the host's perspective: one sort call
// must fully complete before the next reuses the same internal buffers.
// Concurrent calls on one engine are detected and rejected. Independent
// engines, each with their own buffers, may run interleaved.
//
// Usage:
//
//	dev, err := device.Open()
//	if err != nil { return err }
//	defer dev.Close()
//
//	eng, err := wavesort.New(dev, maxElements, wavesort.WithPayload())
//	if err != nil { return err }
//	defer eng.Close()
//
//	err = eng.Sort(ctx, keyBuf, payloadBuf, n)
type Engine struct {
	dev  *device.Device
	cfg  *engineConfig
	pipe pipeline

	maxCount  int
	maxGroups int // scatter groups at maxCount
	codec     keyCodec

	bufs     engineBuffers
	inFlight atomic.Bool
	closed   bool
}

// engineBuffers is the engine's internal buffer arena. Every handle is
// sized to the configured maximum at construction and released together on
// Close or on any construction failure.
type engineBuffers struct {
	altKeys    *device.Buffer // ping-pong temp for keys
	altPayload *device.Buffer // ping-pong temp for payload (payload mode)

	// Traditional strategy.
	hist         *device.Buffer // radixBuckets × maxGroups counts, scanned in place
	bucketTotals *device.Buffer // radixBuckets grand totals, scanned in place

	// Onesweep strategy.
	upfrontHist *device.Buffer // radixPasses × radixBuckets global histogram
	desc        *device.Buffer // partition descriptors, radixPasses × maxGroups × radixBuckets
	passIndex   *device.Buffer // radixPasses virtual-partition counters

	// Indirect dispatch.
	indirectArgs *device.Buffer // see indirect.go for the word layout
}

func (b *engineBuffers) release() error {
	var errs []error
	for _, buf := range []*device.Buffer{
		b.altKeys, b.altPayload, b.hist, b.bucketTotals,
		b.upfrontHist, b.desc, b.passIndex, b.indirectArgs,
	} {
		if buf != nil {
			errs = append(errs, buf.Release())
		}
	}
	return errors.Join(errs...)
}

// New creates an engine on dev able to sort up to maxElements keys.
// All internal buffers are allocated here; if any allocation or
// configuration step fails, everything already acquired is released before
// the error is returned.
func New(dev *device.Device, maxElements int, opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if maxElements < 1 {
		return nil, fmt.Errorf("%w: got %d", wserrors.ErrInvalidMaxCount, maxElements)
	}
	maxGroups := groupsFor(maxElements)
	if maxElements > maxSortableCount || maxGroups > device.MaxGroupsPerDispatch {
		return nil, fmt.Errorf("%w: max %d needs %d groups (limit %d, count limit %d)",
			wserrors.ErrCapacityExceeded, maxElements, maxGroups,
			device.MaxGroupsPerDispatch, maxSortableCount)
	}

	switch cfg.waveWidth {
	case 0:
		// Auto: adopt the device's detected width.
	case 32, 64:
		if cfg.waveWidth != dev.WaveWidth() {
			return nil, fmt.Errorf("%w: requested %d, device reports %d",
				wserrors.ErrWaveWidthMismatch, cfg.waveWidth, dev.WaveWidth())
		}
	default:
		return nil, fmt.Errorf("%w: got %d", wserrors.ErrUnsupportedWaveWidth, cfg.waveWidth)
	}

	e := &Engine{
		dev:       dev,
		cfg:       cfg,
		maxCount:  maxElements,
		maxGroups: maxGroups,
		codec:     keyCodec{keyType: cfg.keyType, order: cfg.order},
	}

	if err := e.allocBuffers(); err != nil {
		return nil, errors.Join(err, e.bufs.release())
	}

	pipe, err := newPipeline(cfg.algorithm, e)
	if err != nil {
		return nil, errors.Join(err, e.bufs.release())
	}
	e.pipe = pipe
	return e, nil
}

func (e *Engine) allocBuffers() error {
	var err error
	alloc := func(elems int) *device.Buffer {
		if err != nil {
			return nil
		}
		var b *device.Buffer
		b, err = e.dev.NewBuffer(elems)
		return b
	}

	e.bufs.altKeys = alloc(e.maxCount)
	if e.cfg.mode == KeysAndPayload {
		e.bufs.altPayload = alloc(e.maxCount)
	}
	switch e.cfg.algorithm {
	case Traditional:
		e.bufs.hist = alloc(radixBuckets * e.maxGroups)
		e.bufs.bucketTotals = alloc(radixBuckets)
	case Onesweep:
		e.bufs.upfrontHist = alloc(radixPasses * radixBuckets)
		e.bufs.desc = alloc(radixPasses * e.maxGroups * radixBuckets)
		e.bufs.passIndex = alloc(radixPasses)
	}
	if e.cfg.dispatch == IndirectDispatch {
		e.bufs.indirectArgs = alloc(indirectArgWords)
	}
	if err != nil {
		return fmt.Errorf("allocate engine buffers: %w", err)
	}
	return nil
}

// groupsFor returns the scatter group count covering n elements.
func groupsFor(n int) int {
	return (n + partitionSize - 1) / partitionSize
}

// Sort sorts the first count elements of keys (and permutes payload
// identically in KeysAndPayload mode). Only slots [0, count) of the
// buffers are defined on return; slots beyond count may have been
// overwritten by the final partial group.
//
// payload must be nil in KeysOnly mode and non-nil in KeysAndPayload mode.
// The engine must have been configured for direct dispatch.
func (e *Engine) Sort(ctx context.Context, keys, payload *device.Buffer, count int) error {
	if e.closed {
		return wserrors.ErrEngineClosed
	}
	if e.cfg.dispatch != DirectDispatch {
		return wserrors.ErrDispatchModeMismatch
	}
	if count < 0 {
		return fmt.Errorf("%w: got %d", wserrors.ErrInvalidCount, count)
	}
	if count > e.maxCount {
		return fmt.Errorf("%w: count %d exceeds configured maximum %d",
			wserrors.ErrCapacityExceeded, count, e.maxCount)
	}
	if err := e.validateStreams(keys, payload, count); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return e.run(ctx, &sortJob{keys: keys, payload: payload, count: count})
}

// SortIndirect sorts with the element count read from countBuf at word
// offset countOff. The count is clamped on the device to the configured
// maximum and to the capacity of the supplied buffers; malformed counts
// are never rejected. The engine must have been configured for indirect
// dispatch.
func (e *Engine) SortIndirect(ctx context.Context, keys, payload, countBuf *device.Buffer, countOff int) error {
	if e.closed {
		return wserrors.ErrEngineClosed
	}
	if e.cfg.dispatch != IndirectDispatch {
		return wserrors.ErrDispatchModeMismatch
	}
	if countBuf == nil || countBuf.Released() {
		return wserrors.ErrBufferReleased
	}
	if countBuf.Stride() != 4 {
		return fmt.Errorf("%w: count buffer stride %d", wserrors.ErrInvalidStride, countBuf.Stride())
	}
	if countOff < 0 || countOff >= countBuf.Len() {
		return fmt.Errorf("%w: offset %d in %d-element buffer",
			wserrors.ErrCountOutOfRange, countOff, countBuf.Len())
	}
	if err := e.validateStreams(keys, payload, 0); err != nil {
		return err
	}
	return e.run(ctx, &sortJob{
		keys:     keys,
		payload:  payload,
		indirect: true,
		countBuf: countBuf,
		countOff: countOff,
	})
}

// validateStreams enforces the buffer contracts shared by both entry
// points. count is 0 for indirect calls, where sizing is enforced by the
// device-side clamp instead.
func (e *Engine) validateStreams(keys, payload *device.Buffer, count int) error {
	if e.closed {
		return wserrors.ErrEngineClosed
	}
	if keys == nil || keys.Released() {
		return wserrors.ErrBufferReleased
	}
	if keys.Stride() != 4 {
		return fmt.Errorf("%w: key buffer stride %d", wserrors.ErrInvalidStride, keys.Stride())
	}
	if keys.Len() < count {
		return fmt.Errorf("%w: key buffer holds %d elements, count %d",
			wserrors.ErrBufferTooSmall, keys.Len(), count)
	}
	switch e.cfg.mode {
	case KeysOnly:
		if payload != nil {
			return wserrors.ErrUnexpectedPayload
		}
	case KeysAndPayload:
		if payload == nil {
			return wserrors.ErrMissingPayload
		}
		if payload.Released() {
			return wserrors.ErrBufferReleased
		}
		if payload.Stride() != 4 {
			return fmt.Errorf("%w: payload buffer stride %d", wserrors.ErrInvalidStride, payload.Stride())
		}
		if payload.Len() < count {
			return fmt.Errorf("%w: payload buffer holds %d elements, count %d",
				wserrors.ErrBufferTooSmall, payload.Len(), count)
		}
	}
	return nil
}

func (e *Engine) run(ctx context.Context, job *sortJob) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return wserrors.ErrSortInProgress
	}
	defer e.inFlight.Store(false)
	return e.pipe.run(ctx, job)
}

// clampLimit is the device-side clamp for indirect counts: the configured
// maximum, further bounded by the capacity of this call's buffers.
func (e *Engine) clampLimit(job *sortJob) uint32 {
	limit := e.maxCount
	if job.keys.Len() < limit {
		limit = job.keys.Len()
	}
	if job.payload != nil && job.payload.Len() < limit {
		limit = job.payload.Len()
	}
	return uint32(limit)
}

// Algorithm returns the configured offset-resolution strategy.
func (e *Engine) Algorithm() Algorithm { return e.cfg.algorithm }

// MaxCount returns the configured maximum element count.
func (e *Engine) MaxCount() int { return e.maxCount }

// Close releases the engine's internal buffers. Close is idempotent and
// does not close the underlying device.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.bufs.release()
}
