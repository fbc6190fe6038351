package wavesort

import (
	"math"
	"testing"
)

// rawCompare orders two raw 32-bit keys under the declared type and order.
// Returns a negative value when a sorts before b.
func rawCompare(a, b uint32, t KeyType, o Order) int {
	var c int
	switch t {
	case KeyUnsigned:
		switch {
		case a < b:
			c = -1
		case a > b:
			c = 1
		}
	case KeySigned:
		ai, bi := int32(a), int32(b)
		switch {
		case ai < bi:
			c = -1
		case ai > bi:
			c = 1
		}
	case KeyFloat:
		af, bf := math.Float32frombits(a), math.Float32frombits(b)
		switch {
		case af < bf:
			c = -1
		case af > bf:
			c = 1
		}
	}
	if o == Descending {
		c = -c
	}
	return c
}

func TestKeyTransformRoundTrip(t *testing.T) {
	patterns := []uint32{
		0, 1, 0x7FFFFFFF, 0x80000000, 0x80000001, 0xFFFFFFFF,
		0x3F800000, 0xBF800000, // 1.0, -1.0
		0x7F800000, 0xFF800000, // +Inf, -Inf
		0x7FC00000, // NaN
	}
	for _, kt := range []KeyType{KeyUnsigned, KeySigned, KeyFloat} {
		for _, o := range []Order{Ascending, Descending} {
			t.Run(kt.String()+"/"+o.String(), func(t *testing.T) {
				rng := newTestRNG(t)
				for _, raw := range patterns {
					if got := inverseKey(forwardKey(raw, kt, o), kt, o); got != raw {
						t.Errorf("roundtrip(0x%08X) = 0x%08X", raw, got)
					}
				}
				for i := 0; i < 10000; i++ {
					raw := rng.Uint32()
					if got := inverseKey(forwardKey(raw, kt, o), kt, o); got != raw {
						t.Fatalf("roundtrip(0x%08X) = 0x%08X", raw, got)
					}
				}
			})
		}
	}
}

func TestKeyTransformOrderPreserving(t *testing.T) {
	for _, kt := range []KeyType{KeyUnsigned, KeySigned, KeyFloat} {
		for _, o := range []Order{Ascending, Descending} {
			t.Run(kt.String()+"/"+o.String(), func(t *testing.T) {
				rng := newTestRNG(t)
				for i := 0; i < 20000; i++ {
					a, b := rng.Uint32(), rng.Uint32()
					if kt == KeyFloat && (isNaNBits(a) || isNaNBits(b)) {
						// NaN has no IEEE ordering; the surrogate
						// assigns it a consistent slot instead.
						continue
					}
					want := rawCompare(a, b, kt, o)
					sa, sb := forwardKey(a, kt, o), forwardKey(b, kt, o)
					got := 0
					switch {
					case sa < sb:
						got = -1
					case sa > sb:
						got = 1
					}
					if want != 0 && got != want {
						t.Fatalf("order(0x%08X, 0x%08X): surrogate %d, raw %d", a, b, got, want)
					}
					if want == 0 && got != 0 && a == b {
						t.Fatalf("equal keys 0x%08X map to distinct surrogates", a)
					}
				}
			})
		}
	}
}

func TestKeyCodecIdentity(t *testing.T) {
	// Only the uint32-ascending codec is a no-op; kernels use this to
	// skip the load/store transform.
	for _, kt := range []KeyType{KeyUnsigned, KeySigned, KeyFloat} {
		for _, o := range []Order{Ascending, Descending} {
			c := keyCodec{keyType: kt, order: o}
			want := kt == KeyUnsigned && o == Ascending
			if got := c.identity(); got != want {
				t.Errorf("keyCodec{%v, %v}.identity() = %v, want %v", kt, o, got, want)
			}
			if want {
				rng := newTestRNG(t)
				for i := 0; i < 1000; i++ {
					raw := rng.Uint32()
					if c.forward(raw) != raw || c.inverse(raw) != raw {
						t.Fatalf("identity codec transforms 0x%08X", raw)
					}
				}
			}
		}
	}
}

func isNaNBits(b uint32) bool {
	return b&0x7F800000 == 0x7F800000 && b&0x007FFFFF != 0
}

func TestKeyTransformFloatInterleave(t *testing.T) {
	// Negative, zero, and positive floats must interleave correctly
	// under unsigned surrogate comparison.
	ordered := []float32{
		float32(math.Inf(-1)), -3.5, -1.5, -0.5, 0, 0.5, 1.5, 2.0, float32(math.Inf(1)),
	}
	for i := 1; i < len(ordered); i++ {
		a := forwardKey(math.Float32bits(ordered[i-1]), KeyFloat, Ascending)
		b := forwardKey(math.Float32bits(ordered[i]), KeyFloat, Ascending)
		if a >= b {
			t.Errorf("surrogate(%v) = 0x%08X not below surrogate(%v) = 0x%08X",
				ordered[i-1], a, ordered[i], b)
		}
	}
	// Negative zero sorts below positive zero but both recover exactly.
	nz := math.Float32bits(float32(math.Copysign(0, -1)))
	pz := math.Float32bits(0)
	if forwardKey(nz, KeyFloat, Ascending) >= forwardKey(pz, KeyFloat, Ascending) {
		t.Error("-0.0 surrogate not below +0.0 surrogate")
	}
}
