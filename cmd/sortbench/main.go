// Sortbench is a benchmarking tool for measuring sort throughput across
// strategies, key types, and concurrent engine instances.
//
// Usage:
//
//	go run ./cmd/sortbench --count 16777216 --algo onesweep --workers 4
//
// Each worker owns an independent device and engine; workers run
// concurrently, so aggregate throughput scales with --workers until the
// host saturates.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/spaolacci/murmur3"
	"github.com/urfave/cli/v2"
	"github.com/zeebo/xxh3"

	"github.com/wavesort/wavesort"
	"github.com/wavesort/wavesort/device"
)

func main() {
	app := &cli.App{
		Name:  "sortbench",
		Usage: "benchmark device radix sort throughput",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Value: 1 << 22, Usage: "keys per sort"},
			&cli.StringFlag{Name: "algo", Value: "onesweep", Usage: "onesweep or traditional"},
			&cli.StringFlag{Name: "key-type", Value: "unsigned", Usage: "unsigned, signed, or float"},
			&cli.StringFlag{Name: "order", Value: "ascending", Usage: "ascending or descending"},
			&cli.BoolFlag{Name: "payload", Usage: "carry a 32-bit payload per key"},
			&cli.IntFlag{Name: "workers", Value: 1, Usage: "concurrent engine instances"},
			&cli.IntFlag{Name: "runs", Value: 8, Usage: "sorts per worker"},
			&cli.IntFlag{Name: "wave-width", Usage: "pin wave width (32 or 64, 0 = probe)"},
			&cli.Uint64Flag{Name: "seed", Value: 0x9E3779B97F4A7C15, Usage: "key generation seed"},
			&cli.BoolFlag{Name: "verify", Value: true, Usage: "check output ordering after each sort"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	count := c.Int("count")
	workers := c.Int("workers")
	runs := c.Int("runs")

	algo, err := parseAlgo(c.String("algo"))
	if err != nil {
		return err
	}
	keyType, err := parseKeyType(c.String("key-type"))
	if err != nil {
		return err
	}
	order, err := parseOrder(c.String("order"))
	if err != nil {
		return err
	}

	caps := device.Probe()
	fmt.Printf("device: %s, wave width %d, %d resident groups\n",
		caps.Name, caps.WaveWidth, caps.ResidentGroups)
	fmt.Printf("config: %s, %s %s, %d keys, payload=%v, %d workers x %d runs\n",
		algo, keyType, order, count, c.Bool("payload"), workers, runs)

	pool, err := ants.NewPool(workers)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg        sync.WaitGroup
		sorted    atomic.Uint64
		elapsed   atomic.Int64
		firstErr  atomic.Pointer[error]
		recordErr = func(err error) {
			firstErr.CompareAndSwap(nil, &err)
		}
	)

	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if err := runWorker(c, w, algo, keyType, order, runs, count, &sorted, &elapsed); err != nil {
				recordErr(fmt.Errorf("worker %d: %w", w, err))
			}
		}); err != nil {
			wg.Done()
			recordErr(fmt.Errorf("submit worker %d: %w", w, err))
		}
	}
	wg.Wait()
	wall := time.Since(start)

	if errp := firstErr.Load(); errp != nil {
		return *errp
	}

	total := sorted.Load()
	busy := time.Duration(elapsed.Load())
	fmt.Printf("sorted %d keys in %v wall time\n", total, wall.Round(time.Millisecond))
	fmt.Printf("aggregate: %.1f Mkeys/s, per-engine: %.1f Mkeys/s\n",
		float64(total)/wall.Seconds()/1e6,
		float64(total)/busy.Seconds()/1e6)
	return nil
}

func runWorker(c *cli.Context, worker int, algo wavesort.Algorithm, keyType wavesort.KeyType,
	order wavesort.Order, runs, count int, sorted *atomic.Uint64, elapsed *atomic.Int64) error {

	var devOpts []device.Option
	if w := c.Int("wave-width"); w != 0 {
		devOpts = append(devOpts, device.WithWaveWidth(w))
	}
	dev, err := device.Open(devOpts...)
	if err != nil {
		return err
	}
	defer dev.Close()

	opts := []wavesort.Option{
		wavesort.WithAlgorithm(algo),
		wavesort.WithKeyType(keyType),
		wavesort.WithOrder(order),
	}
	if c.Bool("payload") {
		opts = append(opts, wavesort.WithPayload())
	}
	eng, err := wavesort.New(dev, count, opts...)
	if err != nil {
		return err
	}
	defer eng.Close()

	keyBuf, err := dev.NewBuffer(count)
	if err != nil {
		return err
	}
	var payBuf *device.Buffer
	if c.Bool("payload") {
		if payBuf, err = dev.NewBuffer(count); err != nil {
			return err
		}
	}

	keys := genKeys(c.Uint64("seed"), worker, count, keyType)
	payload := genPayload(worker, count)

	ctx := context.Background()
	for r := 0; r < runs; r++ {
		if err := keyBuf.Write(0, keys); err != nil {
			return err
		}
		if payBuf != nil {
			if err := payBuf.Write(0, payload); err != nil {
				return err
			}
		}
		start := time.Now()
		if err := eng.Sort(ctx, keyBuf, payBuf, count); err != nil {
			return err
		}
		elapsed.Add(int64(time.Since(start)))
		sorted.Add(uint64(count))

		if c.Bool("verify") {
			if err := verifyOrder(keyBuf, count, keyType, order); err != nil {
				return fmt.Errorf("run %d: %w", r, err)
			}
		}
	}
	return nil
}

// genKeys derives a deterministic key stream from the seed and worker id.
// Float keys are kept finite so ordering verification has no NaN islands.
func genKeys(seed uint64, worker, count int, kt wavesort.KeyType) []uint32 {
	keys := make([]uint32, count)
	var b [16]byte
	binary.LittleEndian.PutUint64(b[8:], uint64(worker))
	for i := range keys {
		binary.LittleEndian.PutUint64(b[:8], uint64(i))
		h := uint32(xxh3.HashSeed(b[:], seed))
		if kt == wavesort.KeyFloat {
			f := float32(int32(h)) / 1024
			h = math.Float32bits(f)
		}
		keys[i] = h
	}
	return keys
}

func genPayload(worker, count int) []uint32 {
	payload := make([]uint32, count)
	var b [8]byte
	binary.LittleEndian.PutUint32(b[4:], uint32(worker))
	for i := range payload {
		binary.LittleEndian.PutUint32(b[:4], uint32(i))
		payload[i] = murmur3.Sum32(b[:])
	}
	return payload
}

// surrogate maps a raw key to a uint32 whose unsigned order matches the
// requested comparison order.
func surrogate(raw uint32, kt wavesort.KeyType, o wavesort.Order) uint32 {
	const signBit = uint32(1) << 31
	s := raw
	switch kt {
	case wavesort.KeySigned:
		s ^= signBit
	case wavesort.KeyFloat:
		s ^= uint32(int32(raw)>>31) | signBit
	}
	if o == wavesort.Descending {
		s = ^s
	}
	return s
}

func verifyOrder(buf *device.Buffer, count int, kt wavesort.KeyType, o wavesort.Order) error {
	out := make([]uint32, count)
	if err := buf.Read(0, out); err != nil {
		return err
	}
	for i := 1; i < count; i++ {
		if surrogate(out[i-1], kt, o) > surrogate(out[i], kt, o) {
			return fmt.Errorf("output not sorted at index %d: %#x then %#x", i, out[i-1], out[i])
		}
	}
	return nil
}

func parseAlgo(s string) (wavesort.Algorithm, error) {
	switch s {
	case "onesweep":
		return wavesort.Onesweep, nil
	case "traditional":
		return wavesort.Traditional, nil
	}
	return 0, fmt.Errorf("unknown algorithm %q", s)
}

func parseKeyType(s string) (wavesort.KeyType, error) {
	switch s {
	case "unsigned":
		return wavesort.KeyUnsigned, nil
	case "signed":
		return wavesort.KeySigned, nil
	case "float":
		return wavesort.KeyFloat, nil
	}
	return 0, fmt.Errorf("unknown key type %q", s)
}

func parseOrder(s string) (wavesort.Order, error) {
	switch s {
	case "ascending":
		return wavesort.Ascending, nil
	case "descending":
		return wavesort.Descending, nil
	}
	return 0, fmt.Errorf("unknown order %q", s)
}
