package inference

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRandomBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	batch, err := NewRandomBatch(rng, 4, 16, 32000)
	require.NoError(t, err)

	bs, prompt := batch.Dims()
	assert.Equal(t, 4, bs)
	assert.Equal(t, 16, prompt)

	ids := batch.IDs()
	require.Len(t, ids, 64)
	for _, id := range ids {
		assert.GreaterOrEqual(t, id, int64(1))
		assert.Less(t, id, int64(31999))
	}

	for _, m := range batch.Mask() {
		assert.Equal(t, int64(1), m)
	}
}

func TestNewRandomBatchRejectsBadShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	_, err := NewRandomBatch(rng, 0, 16, 32000)
	assert.Error(t, err)

	_, err = NewRandomBatch(rng, 1, 0, 32000)
	assert.Error(t, err)

	_, err = NewRandomBatch(rng, 1, 16, 2)
	assert.Error(t, err)
}

func TestFixedLengthGeneration(t *testing.T) {
	cfg := FixedLengthGeneration(512, 50256)

	assert.Equal(t, 512, cfg.MinNewTokens)
	assert.Equal(t, 512, cfg.MaxNewTokens)
	assert.Equal(t, int64(50256), cfg.PadTokenID)
	assert.Equal(t, 1, cfg.NumBeams)
	assert.True(t, cfg.UseCache)
	assert.False(t, cfg.DoSample)
	assert.Nil(t, cfg.EOSTokenID, "early stop must stay disabled")
	assert.NoError(t, cfg.Validate())
}

func TestGenerationConfigValidate(t *testing.T) {
	cfg := FixedLengthGeneration(8, 0)
	cfg.MinNewTokens = 4
	assert.Error(t, cfg.Validate())

	cfg = FixedLengthGeneration(0, 0)
	assert.Error(t, cfg.Validate())

	cfg = FixedLengthGeneration(8, 0)
	cfg.NumBeams = 4
	assert.Error(t, cfg.Validate())

	cfg = FixedLengthGeneration(8, 0)
	cfg.DoSample = true
	assert.Error(t, cfg.Validate())
}

func TestGreedy(t *testing.T) {
	assert.Equal(t, int64(2), Greedy([]float32{0.1, -3, 7.5, 7.4}))
	assert.Equal(t, int64(0), Greedy([]float32{1, 1, 1}), "ties go to the lower id")
	assert.Equal(t, int64(1), Greedy([]float32{-5, -1, -2}))
}

func TestErrBackendUnavailable(t *testing.T) {
	err := ErrBackendUnavailable("opencv", "build with -tags opencv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opencv backend unavailable")
	assert.Contains(t, err.Error(), "-tags opencv")

	var unavailable *BackendUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}
