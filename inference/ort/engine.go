// Package ort runs models through ONNX Runtime with the CUDA execution
// provider. It implements the fixed-length greedy decode loop the
// benchmark times and the arena accounting its memory pass reads.
package ort

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/aptsunny/optimum/device"
	"github.com/aptsunny/optimum/inference"
)

// ModelFileName is the graph file expected inside the model folder.
const ModelFileName = "model.onnx"

var (
	runtimeInit    sync.Once
	runtimeInitErr error
)

// initRuntime initializes the ONNX Runtime environment once per
// process. The environment is global; sessions share it.
func initRuntime(libraryPath string) error {
	runtimeInit.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		runtimeInitErr = ort.InitializeEnvironment()
	})
	return runtimeInitErr
}

// Options configures engine construction.
type Options struct {
	// ModelPath is the folder holding model.onnx. In quantized mode
	// this is the GPTQ folder with the packed weights.
	ModelPath string
	// Device is the accelerator the CUDA provider binds to.
	Device device.Device
	// VocabSize, when set, is checked against the logits width.
	VocabSize int
	// SharedLibraryPath optionally points at the onnxruntime shared
	// library when it is not on the loader path.
	SharedLibraryPath string
}

// Engine is a loaded ONNX Runtime session in evaluation mode.
type Engine struct {
	session  *ort.DynamicAdvancedSession
	arena    *arena
	vocab    int
	loadTime time.Duration
}

var _ inference.Engine = (*Engine)(nil)

// NewEngine loads the model and binds it to the device. Load time,
// session construction included, is recorded for the result row.
func NewEngine(opts Options) (*Engine, error) {
	start := time.Now()

	if err := initRuntime(opts.SharedLibraryPath); err != nil {
		return nil, errors.Wrap(err, "initializing onnxruntime")
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating session options")
	}
	defer sessOpts.Destroy()

	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating CUDA provider options")
	}
	defer cudaOpts.Destroy()

	if err := cudaOpts.Update(map[string]string{
		"device_id": strconv.Itoa(opts.Device.Index),
	}); err != nil {
		return nil, errors.Wrap(err, "configuring CUDA provider")
	}
	if err := sessOpts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return nil, errors.Wrap(err, "appending CUDA execution provider")
	}

	modelFile := filepath.Join(opts.ModelPath, ModelFileName)
	session, err := ort.NewDynamicAdvancedSession(
		modelFile,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		sessOpts,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", modelFile)
	}

	return &Engine{
		session:  session,
		arena:    newArena(),
		vocab:    opts.VocabSize,
		loadTime: time.Since(start),
	}, nil
}

// LoadTime reports how long model loading took.
func (e *Engine) LoadTime() time.Duration {
	return e.loadTime
}

// Allocator implements inference.Engine.
func (e *Engine) Allocator() device.Allocator {
	return e.arena
}

// Synchronize implements inference.Engine. Run blocks until the device
// stream drains, so the barrier has nothing left to wait on.
func (e *Engine) Synchronize() error {
	return nil
}

// Close releases the session.
func (e *Engine) Close() error {
	return e.session.Destroy()
}

// Forward runs a single forward pass and discards the output.
func (e *Engine) Forward(ctx context.Context, batch *inference.Batch) error {
	batchSize, promptLength := batch.Dims()
	_, err := e.step(ctx, batch.IDs(), batch.Mask(), batchSize, promptLength)
	return err
}

// Generate greedily decodes a fixed number of new tokens, feeding each
// argmax token back into the next step.
func (e *Engine) Generate(
	ctx context.Context, batch *inference.Batch, cfg inference.GenerationConfig,
) (inference.GenerateResult, error) {
	if err := cfg.Validate(); err != nil {
		return inference.GenerateResult{}, err
	}

	batchSize, promptLength := batch.Dims()
	ids := append([]int64(nil), batch.IDs()...)
	mask := append([]int64(nil), batch.Mask()...)
	seqLen := promptLength
	finished := make([]bool, batchSize)

	for step := 0; step < cfg.MaxNewTokens; step++ {
		rows, err := e.step(ctx, ids, mask, batchSize, seqLen)
		if err != nil {
			return inference.GenerateResult{}, errors.Wrapf(err, "decode step %d", step)
		}

		next := make([]int64, batchSize)
		ones := make([]int64, batchSize)
		allFinished := cfg.EOSTokenID != nil
		for b := range rows {
			tok := inference.Greedy(rows[b])
			if cfg.EOSTokenID != nil {
				if finished[b] || tok == *cfg.EOSTokenID {
					finished[b] = true
					tok = cfg.PadTokenID
				} else {
					allFinished = false
				}
			}
			next[b] = tok
			ones[b] = 1
		}

		ids = appendColumn(ids, next, batchSize, seqLen)
		mask = appendColumn(mask, ones, batchSize, seqLen)
		seqLen++

		if cfg.EOSTokenID != nil && allFinished {
			break
		}
	}

	return inference.GenerateResult{SequenceLength: seqLen}, nil
}

// step runs one session pass over (batchSize, seqLen) inputs and
// returns the last-position logit row for each sequence.
func (e *Engine) step(
	ctx context.Context, ids, mask []int64, batchSize, seqLen int,
) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shape := ort.NewShape(int64(batchSize), int64(seqLen))
	inputIDs, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, errors.Wrap(err, "creating input_ids tensor")
	}
	defer inputIDs.Destroy()

	attention, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, errors.Wrap(err, "creating attention_mask tensor")
	}
	defer attention.Destroy()

	inputBytes := int64(len(ids)+len(mask)) * 8
	e.arena.alloc(inputBytes)
	defer e.arena.free(inputBytes)

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputIDs, attention}, outputs); err != nil {
		return nil, errors.Wrap(err, "running session")
	}

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		outputs[0].Destroy()
		return nil, errors.New("model output \"logits\" is not a float32 tensor")
	}
	defer logits.Destroy()

	data := logits.GetData()
	outputBytes := int64(len(data)) * 4
	e.arena.alloc(outputBytes)
	defer e.arena.free(outputBytes)

	outShape := logits.GetShape()
	if len(outShape) != 3 {
		return nil, errors.Errorf("logits shape %v is not (batch, sequence, vocab)", outShape)
	}
	vocab := int(outShape[2])
	if e.vocab > 0 && vocab != e.vocab {
		return nil, errors.Errorf("logits width %d does not match model vocab size %d", vocab, e.vocab)
	}

	rows := make([][]float32, batchSize)
	for b := 0; b < batchSize; b++ {
		base := (b*seqLen + seqLen - 1) * vocab
		row := make([]float32, vocab)
		copy(row, data[base:base+vocab])
		rows[b] = row
	}
	return rows, nil
}

// appendColumn grows every row of a flat (rows, cols) matrix by one
// value.
func appendColumn(flat, col []int64, rows, cols int) []int64 {
	out := make([]int64, 0, rows*(cols+1))
	for r := 0; r < rows; r++ {
		out = append(out, flat[r*cols:(r+1)*cols]...)
		out = append(out, col[r])
	}
	return out
}
