package inference

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Batch holds the inputs for one benchmark combination: token ids and
// an all-ones attention mask, both shaped (batch_size, prompt_length).
type Batch struct {
	InputIDs      *tensor.Dense
	AttentionMask *tensor.Dense
}

// NewRandomBatch builds a batch of synthetic prompts with token ids
// drawn uniformly from [1, vocabSize-1). Real text is irrelevant here;
// the model does the same work either way.
//
// Arguments:
// - rng: Source of token ids.
// - batchSize: Number of sequences.
// - promptLength: Tokens per sequence.
// - vocabSize: Model vocabulary size.
//
// Returns:
// - *Batch: The device-ready inputs.
// - error: Error if the shape or vocabulary is unusable.
func NewRandomBatch(rng *rand.Rand, batchSize, promptLength, vocabSize int) (*Batch, error) {
	if batchSize < 1 || promptLength < 1 {
		return nil, errors.Errorf("batch shape (%d, %d) is not benchmarkable", batchSize, promptLength)
	}
	if vocabSize < 3 {
		return nil, errors.Errorf("vocab size %d leaves no ids to sample", vocabSize)
	}

	n := batchSize * promptLength
	ids := make([]int64, n)
	mask := make([]int64, n)
	for i := range ids {
		ids[i] = 1 + rng.Int63n(int64(vocabSize-2))
		mask[i] = 1
	}

	return &Batch{
		InputIDs:      tensor.New(tensor.WithShape(batchSize, promptLength), tensor.WithBacking(ids)),
		AttentionMask: tensor.New(tensor.WithShape(batchSize, promptLength), tensor.WithBacking(mask)),
	}, nil
}

// Dims returns (batch_size, prompt_length).
func (b *Batch) Dims() (int, int) {
	shape := b.InputIDs.Shape()
	return shape[0], shape[1]
}

// IDs returns the flat row-major token ids.
func (b *Batch) IDs() []int64 {
	return b.InputIDs.Data().([]int64)
}

// Mask returns the flat row-major attention mask.
func (b *Batch) Mask() []int64 {
	return b.AttentionMask.Data().([]int64)
}
