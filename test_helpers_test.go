package wavesort

import (
	"encoding/binary"
	"hash/fnv"
	randv2 "math/rand/v2"
	"sort"
	"testing"

	"github.com/wavesort/wavesort/device"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x9E3779B97F4A7C15
	testSeed2 = 0xC2B2AE3D27D4EB4F
)

func newTestRNG(t testing.TB) *randv2.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return randv2.New(randv2.NewPCG(testSeed1^s1, testSeed2^s2))
}

func newTestDevice(t testing.TB, waveWidth int) *device.Device {
	t.Helper()
	dev, err := device.Open(device.WithWaveWidth(waveWidth))
	if err != nil {
		t.Fatalf("open device: %v", err)
	}
	t.Cleanup(func() {
		if err := dev.Close(); err != nil {
			t.Errorf("close device: %v", err)
		}
	})
	return dev
}

func newTestBuffer(t testing.TB, dev *device.Device, data []uint32) *device.Buffer {
	t.Helper()
	buf, err := dev.NewBuffer(len(data))
	if err != nil {
		t.Fatalf("alloc buffer: %v", err)
	}
	if err := buf.Write(0, data); err != nil {
		t.Fatalf("write buffer: %v", err)
	}
	return buf
}

func readBuffer(t testing.TB, buf *device.Buffer, n int) []uint32 {
	t.Helper()
	out := make([]uint32, n)
	if err := buf.Read(0, out); err != nil {
		t.Fatalf("read buffer: %v", err)
	}
	return out
}

// hostSort is the CPU reference: a stable sort of key/payload pairs under
// the configured interpretation. payload may be nil.
func hostSort(keys, payload []uint32, kt KeyType, o Order) (outKeys, outPayload []uint32) {
	type pair struct {
		k, p uint32
	}
	pairs := make([]pair, len(keys))
	for i := range keys {
		pairs[i].k = keys[i]
		if payload != nil {
			pairs[i].p = payload[i]
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		// Surrogate comparison is the reference ordering; for non-NaN
		// floats it coincides with IEEE order (see keys_test.go).
		return forwardKey(pairs[i].k, kt, o) < forwardKey(pairs[j].k, kt, o)
	})
	outKeys = make([]uint32, len(keys))
	if payload != nil {
		outPayload = make([]uint32, len(keys))
	}
	for i, p := range pairs {
		outKeys[i] = p.k
		if payload != nil {
			outPayload[i] = p.p
		}
	}
	return outKeys, outPayload
}

func equalWords(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
