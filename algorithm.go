package wavesort

import (
	"context"
	"fmt"

	"github.com/wavesort/wavesort/device"
)

// Algorithm identifies the offset-resolution strategy a sort engine runs.
type Algorithm uint16

const (
	// Onesweep resolves cross-group offsets with the decoupled look-back
	// protocol: one upfront histogram over all passes, then a single
	// fused scatter dispatch per pass with no intervening barriers.
	Onesweep Algorithm = 0

	// Traditional resolves offsets with an explicit scan-kernel chain
	// and a full device barrier between every dispatch. Slower by two
	// dispatches per pass, but free of the look-back protocol's
	// forward-progress hazard, and the correctness oracle for Onesweep.
	Traditional Algorithm = 1
)

// String returns the algorithm name.
func (a Algorithm) String() string {
	switch a {
	case Onesweep:
		return "onesweep"
	case Traditional:
		return "traditional"
	default:
		return "unknown"
	}
}

// Kernel geometry. Keys are 32 bits wide and are consumed 8 bits per pass,
// so every sort is exactly four stable partition passes.
const (
	radixBits    = 8
	radixBuckets = 1 << radixBits
	radixPasses  = 4

	// groupThreads is the thread count of every kernel's groups; with a
	// 32-lane wave that is 8 waves, with 64 lanes it is 4.
	groupThreads = 256

	// keysPerThread and partitionSize fix the scatter chunking. The
	// per-pass histogram shares this chunking so its table columns line
	// up one-to-one with scatter groups.
	keysPerThread = 4
	partitionSize = groupThreads * keysPerThread

	// upfrontPartitionSize is the chunk of the Onesweep global
	// histogram, which reads each key once for all four passes and can
	// afford bigger tiles.
	upfrontPartitionSize = 2 * partitionSize
)

// Descriptor cells pack a 30-bit value with a 2-bit state tag in the low
// bits. A cell's tag only ever moves forward: invalid, then aggregate,
// then prefix.
const (
	flagInvalid   = uint32(0)
	flagAggregate = uint32(1)
	flagPrefix    = uint32(2)
	flagMask      = uint32(3)
	valueShift    = 2

	// maxSortableCount keeps every exclusive prefix representable in a
	// descriptor cell's 30-bit value field.
	maxSortableCount = 1<<30 - 1
)

// sortJob is one validated sort call, handed to the configured pipeline.
type sortJob struct {
	keys    *device.Buffer
	payload *device.Buffer // nil in KeysOnly mode

	// Direct mode.
	count int

	// Indirect mode.
	indirect bool
	countBuf *device.Buffer
	countOff int
}

// pipeline is the contract both strategies implement: enqueue the full
// per-call kernel sequence against the engine's persistent buffers.
// A pipeline holds no per-call state and is reused across calls.
type pipeline interface {
	// run executes all four sort passes for job. The caller has already
	// validated buffers, count, and dispatch mode.
	run(ctx context.Context, job *sortJob) error
}

// newPipeline builds the strategy selected at engine construction.
func newPipeline(algo Algorithm, e *Engine) (pipeline, error) {
	switch algo {
	case Onesweep:
		return &onesweepPipeline{e: e}, nil
	case Traditional:
		return &traditionalPipeline{e: e}, nil
	default:
		return nil, fmt.Errorf("wavesort: unknown algorithm %d", algo)
	}
}
