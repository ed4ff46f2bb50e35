// Package inference defines the engine contract the benchmark harness
// drives: fixed-length generation for decoder models, a single forward
// pass for everything else, and the allocator and drain hooks the
// measurement passes depend on.
package inference

import (
	"context"

	"github.com/pkg/errors"

	"github.com/aptsunny/optimum/device"
)

// GenerationConfig pins a generation call to a fixed token budget so
// that per-token latency arithmetic stays meaningful.
type GenerationConfig struct {
	MinNewTokens int
	MaxNewTokens int
	UseCache     bool
	PadTokenID   int64
	NumBeams     int
	DoSample     bool
	// EOSTokenID is left nil to disable early stopping, so exactly
	// MaxNewTokens tokens are produced for every sequence.
	EOSTokenID *int64
}

// FixedLengthGeneration builds the greedy, fixed-budget config used for
// benchmarking.
func FixedLengthGeneration(newTokens int, padTokenID int64) GenerationConfig {
	return GenerationConfig{
		MinNewTokens: newTokens,
		MaxNewTokens: newTokens,
		UseCache:     true,
		PadTokenID:   padTokenID,
		NumBeams:     1,
	}
}

// Validate rejects configs the benchmark cannot time.
func (c GenerationConfig) Validate() error {
	if c.MinNewTokens != c.MaxNewTokens {
		return errors.Errorf("generation budget must be fixed: min %d != max %d", c.MinNewTokens, c.MaxNewTokens)
	}
	if c.MaxNewTokens < 1 {
		return errors.Errorf("generation budget must be at least one token, got %d", c.MaxNewTokens)
	}
	if c.NumBeams > 1 || c.DoSample {
		return errors.New("benchmarking uses greedy single-beam decoding")
	}
	return nil
}

// GenerateResult reports what a generation call produced.
type GenerateResult struct {
	// SequenceLength is the per-sequence token count after generation,
	// prompt included.
	SequenceLength int
}

// Engine is a loaded, evaluation-mode model the harness can drive.
type Engine interface {
	// Generate runs one full fixed-length generation over the batch.
	Generate(ctx context.Context, batch *Batch, cfg GenerationConfig) (GenerateResult, error)
	// Forward runs a single forward pass over the batch.
	Forward(ctx context.Context, batch *Batch) error
	// Allocator returns the engine's device arena statistics handle.
	Allocator() device.Allocator
	// Synchronize blocks until all pending device work completes.
	Synchronize() error
	// Close releases the model and its device resources.
	Close() error
}
