// Package benchmark runs timed generation passes over a grid of
// (batch size, prompt length, new tokens) combinations and reduces them
// to one result row each: per-token latency, throughput, and a peak
// device memory estimate.
package benchmark

import (
	"context"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/aptsunny/optimum/device"
	"github.com/aptsunny/optimum/gptq"
	"github.com/aptsunny/optimum/inference"
)

// Invariant violations. Both mean the measurement is untrustworthy, so
// the run aborts instead of recording a suspect number.
var (
	// ErrWarmupLength reports a generation that did not produce the
	// pinned token budget.
	ErrWarmupLength = errors.New("warmup produced an unexpected sequence length")
	// ErrMemoryEstimate reports a non-positive externally-visible peak,
	// meaning the sampling methodology broke down.
	ErrMemoryEstimate = errors.New("externally-visible peak memory is not positive")
)

// Tracker opens out-of-band sampling windows over the device-wide
// memory counter. *device.MemoryTracker implements it.
type Tracker interface {
	Track() device.Session
}

// Options configures a harness.
type Options struct {
	Engine     inference.Engine
	Tracker    Tracker
	Timer      *device.Timer
	NumBatches int
	IsDecoder  bool
	PadTokenID int64
	VocabSize  int

	LoadTime time.Duration
	GPTQ     bool
	Quant    *gptq.Config
	Kernel   string

	Logger zerolog.Logger
	// ProgressOut receives the iteration progress bar. Defaults to
	// stderr; tests discard it.
	ProgressOut io.Writer
	// Rand seeds the synthetic prompts. Defaults to a time-seeded
	// source.
	Rand *rand.Rand
}

// Harness executes the sweep. Combinations run strictly sequentially:
// the device and its allocator are shared mutable state, and concurrent
// use would corrupt both timing and memory readings.
type Harness struct {
	engine     inference.Engine
	tracker    Tracker
	timer      *device.Timer
	numBatches int
	isDecoder  bool
	padTokenID int64
	vocabSize  int

	loadTime time.Duration
	gptqMode bool
	quant    *gptq.Config
	kernel   string

	log      zerolog.Logger
	progress io.Writer
	rng      *rand.Rand
}

// New builds a harness from options, filling in defaults.
func New(opts Options) *Harness {
	timer := opts.Timer
	if timer == nil {
		timer = device.NewTimer()
	}
	progress := opts.ProgressOut
	if progress == nil {
		progress = os.Stderr
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Harness{
		engine:     opts.Engine,
		tracker:    opts.Tracker,
		timer:      timer,
		numBatches: opts.NumBatches,
		isDecoder:  opts.IsDecoder,
		padTokenID: opts.PadTokenID,
		vocabSize:  opts.VocabSize,
		loadTime:   opts.LoadTime,
		gptqMode:   opts.GPTQ,
		quant:      opts.Quant,
		kernel:     opts.Kernel,
		log:        opts.Logger,
		progress:   progress,
		rng:        rng,
	}
}

// Run executes every combination of the grid in order, appending one
// row per combination. Any failure aborts the whole sweep; a
// combination either completes both sub-benchmarks and emits its row,
// or emits nothing.
func (h *Harness) Run(ctx context.Context, grid Grid, w *Writer) error {
	if h.numBatches < 1 {
		return errors.Errorf("iteration count must be at least 1, got %d", h.numBatches)
	}

	h.log.Warn().Msg("the reported peak memory is a rough estimate and cannot be relied upon to predict an OOM limit")

	for _, comb := range grid.Combinations() {
		result, err := h.RunCombination(ctx, comb)
		if err != nil {
			return errors.Wrapf(err, "combination batch_size=%d prompt_length=%d new_tokens=%d",
				comb.BatchSize, comb.PromptLength, comb.NewTokens)
		}
		if err := w.Append(result); err != nil {
			return err
		}
	}
	return nil
}

// RunCombination measures one grid point: memory pass first, then the
// latency pass, each against freshly reset allocator counters.
func (h *Harness) RunCombination(ctx context.Context, comb Combination) (Result, error) {
	h.log.Info().
		Int("batch_size", comb.BatchSize).
		Int("prompt_length", comb.PromptLength).
		Int("new_tokens", comb.NewTokens).
		Msg("running combination")

	alloc := h.engine.Allocator()
	alloc.EmptyCache()
	alloc.ResetPeakStats()

	batch, err := inference.NewRandomBatch(h.rng, comb.BatchSize, comb.PromptLength, h.vocabSize)
	if err != nil {
		return Result{}, err
	}

	peakMemoryMB, err := h.benchmarkMemory(ctx, batch, comb)
	if err != nil {
		return Result{}, err
	}

	alloc.EmptyCache()
	alloc.ResetPeakStats()

	meanLatencyMS, err := h.benchmarkLatency(ctx, batch, comb)
	if err != nil {
		return Result{}, err
	}

	perTokenMS, tokPerS := DeriveMetrics(meanLatencyMS, comb)
	h.log.Info().
		Float64("per_token_latency_ms", perTokenMS).
		Float64("throughput_tok_s", tokPerS).
		Float64("peak_memory_mb", peakMemoryMB).
		Msg("combination complete")

	return Result{
		Combination:       comb,
		GPTQ:              h.gptqMode,
		Quant:             h.quant,
		Kernel:            h.kernel,
		NumBatches:        h.numBatches,
		LoadTime:          h.loadTime,
		PerTokenLatencyMS: perTokenMS,
		ThroughputTokS:    tokPerS,
		PeakMemoryMB:      peakMemoryMB,
	}, nil
}

// warmup runs one full untimed pass to absorb one-time costs. For
// decoder models it pins generation to a fixed token budget with early
// stopping disabled, and checks the produced sequence length. The check
// is not a retry point: on mismatch the run aborts.
func (h *Harness) warmup(ctx context.Context, batch *inference.Batch, comb Combination) (*inference.GenerationConfig, error) {
	h.log.Info().Msg("warmup")

	if !h.isDecoder {
		if err := h.engine.Forward(ctx, batch); err != nil {
			return nil, errors.Wrap(err, "warmup forward pass")
		}
		return nil, h.engine.Synchronize()
	}

	cfg := inference.FixedLengthGeneration(comb.NewTokens, h.padTokenID)
	res, err := h.engine.Generate(ctx, batch, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "warmup generation")
	}

	want := comb.PromptLength + comb.NewTokens
	if res.SequenceLength != want {
		return nil, errors.Wrapf(ErrWarmupLength, "got %d tokens, want %d", res.SequenceLength, want)
	}
	if err := h.engine.Synchronize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// measuredCall is one full generation (or forward pass) over the batch.
func (h *Harness) measuredCall(ctx context.Context, batch *inference.Batch, genCfg *inference.GenerationConfig) error {
	if genCfg != nil {
		_, err := h.engine.Generate(ctx, batch, *genCfg)
		return err
	}
	return h.engine.Forward(ctx, batch)
}

// benchmarkMemory samples the three memory counters around one measured
// call. Its warmup runs inside the tracking window too, because the
// window must cover whatever the warmup allocates.
func (h *Harness) benchmarkMemory(ctx context.Context, batch *inference.Batch, comb Combination) (float64, error) {
	alloc := h.engine.Allocator()
	alloc.EmptyCache()

	h.log.Info().Msg("measuring peak memory")
	session := h.tracker.Track()

	genCfg, err := h.warmup(ctx, batch, comb)
	if err != nil {
		session.Stop()
		return 0, err
	}
	if err := h.measuredCall(ctx, batch, genCfg); err != nil {
		session.Stop()
		return 0, err
	}
	if err := h.engine.Synchronize(); err != nil {
		session.Stop()
		return 0, err
	}
	if err := session.Stop(); err != nil {
		return 0, errors.Wrap(err, "stopping memory tracking")
	}

	peakAllocatedMB := device.BytesToMB(alloc.PeakAllocated())
	peakReservedMB := device.BytesToMB(alloc.PeakReserved())
	peakDriverMB := session.PeakMB()

	// The driver-level reading covers everything resident on the
	// device; the allocator's reserved bytes appear in it, so they are
	// subtracted to isolate the non-allocator share (driver context,
	// extension buffers). What remains is added to the actual allocated
	// peak. A rough estimate, kept as-is for comparability with
	// historical logs.
	peakExternalMB := peakDriverMB - peakReservedMB
	if peakExternalMB <= 0 {
		return 0, errors.Wrapf(ErrMemoryEstimate, "driver peak %.2f MB minus reserved peak %.2f MB", peakDriverMB, peakReservedMB)
	}
	peakMemoryMB := peakAllocatedMB + peakExternalMB

	h.log.Debug().
		Float64("peak_allocated_mb", peakAllocatedMB).
		Float64("peak_reserved_mb", peakReservedMB).
		Float64("peak_driver_mb", peakDriverMB).
		Float64("peak_external_mb", peakExternalMB).
		Float64("peak_memory_mb", peakMemoryMB).
		Msg("memory counters")

	return peakMemoryMB, nil
}

// benchmarkLatency times numBatches full calls over the same input and
// returns the mean elapsed milliseconds. The cache is deliberately not
// emptied between timed iterations: that would negate the warmup.
func (h *Harness) benchmarkLatency(ctx context.Context, batch *inference.Batch, comb Combination) (float64, error) {
	h.engine.Allocator().EmptyCache()

	genCfg, err := h.warmup(ctx, batch, comb)
	if err != nil {
		return 0, err
	}

	h.log.Info().Msg("measuring latency")
	bar := pb.New(h.numBatches)
	bar.SetWriter(h.progress)
	bar.Start()
	defer bar.Finish()

	totalMS := 0.0
	for i := 0; i < h.numBatches; i++ {
		elapsed, err := h.timer.Time(h.engine.Synchronize, func() error {
			return h.measuredCall(ctx, batch, genCfg)
		})
		if err != nil {
			return 0, errors.Wrapf(err, "timed iteration %d", i)
		}

		latencyMS := float64(elapsed.Nanoseconds()) * 1e-6
		h.log.Debug().
			Float64("latency_ms", latencyMS).
			Float64("per_token_ms", latencyMS/float64(comb.NewTokens)).
			Msg("timed pass")

		totalMS += latencyMS
		bar.Increment()
	}

	return totalMS / float64(h.numBatches), nil
}
