package wavesort

// signBit is the sign bit of a 32-bit key.
const signBit = uint32(1) << 31

// KeyType declares how the 32-bit values in a key buffer are interpreted.
type KeyType uint8

const (
	// KeyUnsigned treats keys as uint32.
	KeyUnsigned KeyType = iota

	// KeySigned treats keys as two's-complement int32.
	KeySigned

	// KeyFloat treats keys as IEEE-754 binary32.
	KeyFloat
)

// String returns the key type name.
func (t KeyType) String() string {
	switch t {
	case KeyUnsigned:
		return "unsigned"
	case KeySigned:
		return "signed"
	case KeyFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Order is the requested output ordering.
type Order uint8

const (
	Ascending Order = iota
	Descending
)

// String returns the order name.
func (o Order) String() string {
	if o == Descending {
		return "descending"
	}
	return "ascending"
}

// SortMode selects whether a payload stream rides along with the keys.
type SortMode uint8

const (
	// KeysOnly sorts the key buffer alone.
	KeysOnly SortMode = iota

	// KeysAndPayload permutes a 1:1 payload buffer identically to the keys.
	KeysAndPayload
)

// String returns the sort mode name.
func (m SortMode) String() string {
	if m == KeysAndPayload {
		return "keys+payload"
	}
	return "keys"
}

// DispatchMode selects where the element count comes from.
type DispatchMode uint8

const (
	// DirectDispatch takes the count as a host-side argument to Sort.
	DirectDispatch DispatchMode = iota

	// IndirectDispatch reads the count from a device buffer; dispatch
	// sizes are derived on the device (see the precompute kernel).
	IndirectDispatch
)

// String returns the dispatch mode name.
func (m DispatchMode) String() string {
	if m == IndirectDispatch {
		return "indirect"
	}
	return "direct"
}

// forwardKey maps a raw key to its unsigned sorting surrogate. The mapping
// is a bijection and is order-preserving: comparing surrogates as uint32
// reproduces the configured ordering of the raw values.
//
// Signed keys flip the sign bit. Float keys use the monotonic radix trick:
// negative values are complemented entirely, non-negative values have the
// sign bit set, which interleaves negatives, zero, and positives correctly
// under unsigned comparison. Descending orders complement the result.
func forwardKey(raw uint32, t KeyType, o Order) uint32 {
	s := raw
	switch t {
	case KeySigned:
		s = raw ^ signBit
	case KeyFloat:
		mask := uint32(int32(raw)>>31) | signBit
		s = raw ^ mask
	}
	if o == Descending {
		s = ^s
	}
	return s
}

// inverseKey recovers the raw key from its sorting surrogate. Exact
// inverse of forwardKey for every bit pattern.
func inverseKey(s uint32, t KeyType, o Order) uint32 {
	if o == Descending {
		s = ^s
	}
	switch t {
	case KeySigned:
		return s ^ signBit
	case KeyFloat:
		mask := ^uint32(int32(s)>>31) | signBit
		return s ^ mask
	}
	return s
}

// keyCodec carries the per-pass load/store transforms for a configured
// key type and order. Only the first pass transforms on load and only the
// last pass untransforms on store; intermediate passes move surrogates.
type keyCodec struct {
	keyType KeyType
	order   Order
}

// identity reports whether the surrogate equals the raw key, letting
// kernels skip the transform for the common uint32-ascending case.
func (c keyCodec) identity() bool {
	return c.keyType == KeyUnsigned && c.order == Ascending
}

func (c keyCodec) forward(raw uint32) uint32 {
	return forwardKey(raw, c.keyType, c.order)
}

func (c keyCodec) inverse(s uint32) uint32 {
	return inverseKey(s, c.keyType, c.order)
}
