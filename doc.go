// Package wavesort implements a device-resident least-significant-digit
// radix sort for 32-bit keys with optional 32-bit payloads.
//
// Keys are sorted in four 8-bit passes entirely on a compute device (see
// the device subpackage for the execution model): per pass, a histogram
// counts digit occupancy, cross-group base offsets are resolved, and a
// group-local stable sort scatters keys to their global positions, with
// key and payload buffers ping-ponging roles between passes. Signed and
// floating-point keys are handled through a bijective, order-preserving
// transform to unsigned surrogates, so every pass operates on plain uint32
// digits regardless of key type or direction.
//
// Two strategies are available behind the same Engine contract:
//
//   - Onesweep: a single scatter dispatch per pass. Cross-group offsets
//     are discovered in flight through the decoupled look-back protocol —
//     groups draw a virtual partition rank from an atomic counter, publish
//     per-bucket aggregates in tagged descriptor cells, and walk
//     predecessor cells until a finalized prefix is found. No device-wide
//     barriers between histogram and scatter.
//   - Traditional: explicit scan kernels with a full barrier between every
//     dispatch. Two extra dispatches per pass, but no reliance on the
//     scheduler for forward progress; it doubles as the correctness oracle
//     for Onesweep.
//
// # Basic Usage
//
//	dev, err := device.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	eng, err := wavesort.New(dev, 1<<20,
//	    wavesort.WithKeyType(wavesort.KeyFloat),
//	    wavesort.WithPayload())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	if err := eng.Sort(ctx, keys, payload, n); err != nil {
//	    log.Fatal(err)
//	}
//
// Only the first n slots of the buffers are defined after a call; slots
// beyond n may be overwritten by the final partial group.
//
// # Package Structure
//
//   - Public API: engine.go (New, Sort, SortIndirect, Close),
//     options.go (Option, With* functions), keys.go (enums)
//   - Strategy selection: algorithm.go (pipeline interface, geometry)
//   - Kernels: histogram.go, scan.go, scatter.go, lookback.go,
//     traditional.go, onesweep.go, indirect.go
//   - Device model: device/ (buffers, dispatch, waves, capabilities)
//   - Errors: errors/ (sentinel values shared across packages)
package wavesort
