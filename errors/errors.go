// Package errors defines all exported error sentinels for the wavesort library.
//
// This is the single source of truth for error values. Both the top-level
// wavesort package and the device package import from here, ensuring
// errors.Is checks work across package boundaries.
package errors

import "errors"

// Device errors
var (
	ErrDeviceClosed         = errors.New("wavesort: device is closed")
	ErrUnsupportedWaveWidth = errors.New("wavesort: wave width must be 32 or 64")
	ErrWaveWidthMismatch    = errors.New("wavesort: requested wave width conflicts with device capability")
	ErrResidentGroups       = errors.New("wavesort: resident group count must be at least 1")
	ErrBufferReleased       = errors.New("wavesort: buffer has been released")
	ErrInvalidBufferSize    = errors.New("wavesort: buffer element count must be at least 1")
	ErrDispatchTooLarge     = errors.New("wavesort: dispatch group count exceeds device limit")
)

// Engine configuration errors (raised at New)
var (
	ErrEngineClosed     = errors.New("wavesort: engine is closed")
	ErrInvalidMaxCount  = errors.New("wavesort: maximum element count must be at least 1")
	ErrCapacityExceeded = errors.New("wavesort: element count exceeds dispatch capacity")
)

// Sort call errors (raised before any dispatch)
var (
	ErrSortInProgress       = errors.New("wavesort: engine already has a sort in flight")
	ErrInvalidCount         = errors.New("wavesort: element count is negative")
	ErrInvalidStride        = errors.New("wavesort: buffer stride must be 4 bytes")
	ErrBufferTooSmall       = errors.New("wavesort: buffer is smaller than the element count")
	ErrMissingPayload       = errors.New("wavesort: payload buffer required for KeysAndPayload mode")
	ErrUnexpectedPayload    = errors.New("wavesort: payload buffer provided in KeysOnly mode")
	ErrDispatchModeMismatch = errors.New("wavesort: sort call does not match the configured dispatch mode")
	ErrCountOutOfRange      = errors.New("wavesort: count offset lies outside the count buffer")
)
