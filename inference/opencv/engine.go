//go:build opencv

// Package opencv provides a forward-only engine backed by OpenCV's DNN
// module, for benchmarking non-generative models without ONNX Runtime.
// It is compiled behind the opencv build tag; default builds get a
// capability-gated stub.
package opencv

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/aptsunny/optimum/device"
	"github.com/aptsunny/optimum/inference"
)

// Engine wraps a gocv network. Forward passes only; Generate always
// errors.
type Engine struct {
	net   gocv.Net
	stats *stats
}

var _ inference.Engine = (*Engine)(nil)

// NewEngine loads model.onnx from the model folder into the DNN module
// and targets the CUDA backend.
func NewEngine(modelPath string, dev device.Device) (inference.Engine, error) {
	modelFile := filepath.Join(modelPath, "model.onnx")
	net := gocv.ReadNet(modelFile, "")
	if net.Empty() {
		return nil, errors.Errorf("reading %s into the DNN module failed", modelFile)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err != nil {
		return nil, errors.Wrap(err, "selecting CUDA DNN backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCUDA); err != nil {
		return nil, errors.Wrap(err, "selecting CUDA DNN target")
	}

	return &Engine{net: net, stats: &stats{}}, nil
}

// Forward runs one pass over the batch and discards the output.
func (e *Engine) Forward(ctx context.Context, batch *inference.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batchSize, promptLength := batch.Dims()
	blob := gocv.NewMatWithSize(batchSize, promptLength, gocv.MatTypeCV32F)
	defer blob.Close()

	ids := batch.IDs()
	for r := 0; r < batchSize; r++ {
		for c := 0; c < promptLength; c++ {
			blob.SetFloatAt(r, c, float32(ids[r*promptLength+c]))
		}
	}

	blobBytes := int64(batchSize*promptLength) * 4
	e.stats.alloc(blobBytes)
	defer e.stats.free(blobBytes)

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	outBytes := int64(out.Total()) * 4
	e.stats.alloc(outBytes)
	defer e.stats.free(outBytes)

	return nil
}

// Generate implements inference.Engine. The DNN module has no decode
// loop.
func (e *Engine) Generate(
	ctx context.Context, batch *inference.Batch, cfg inference.GenerationConfig,
) (inference.GenerateResult, error) {
	return inference.GenerateResult{}, errors.New("opencv backend is forward-only; use it for non-generative tasks")
}

// Allocator implements inference.Engine.
func (e *Engine) Allocator() device.Allocator {
	return e.stats
}

// Synchronize implements inference.Engine. Forward blocks until the
// device finishes.
func (e *Engine) Synchronize() error {
	return nil
}

// Close releases the network.
func (e *Engine) Close() error {
	return e.net.Close()
}

// stats is a minimal allocator view over the blobs the engine creates.
// The DNN module manages its own device memory, so reserved tracks the
// allocated high-water mark directly.
type stats struct {
	mu            sync.Mutex
	allocated     int64
	peakAllocated int64
}

var _ device.Allocator = (*stats)(nil)

func (s *stats) alloc(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocated += n
	if s.allocated > s.peakAllocated {
		s.peakAllocated = s.allocated
	}
}

func (s *stats) free(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocated -= n
}

func (s *stats) PeakAllocated() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peakAllocated
}

func (s *stats) PeakReserved() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peakAllocated
}

func (s *stats) ResetPeakStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peakAllocated = s.allocated
}

func (s *stats) EmptyCache() {}
