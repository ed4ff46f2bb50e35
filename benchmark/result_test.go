package benchmark

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aptsunny/optimum/gptq"
)

func TestDeriveMetrics(t *testing.T) {
	comb := Combination{BatchSize: 4, PromptLength: 512, NewTokens: 512}

	perTokenMS, tokPerS := DeriveMetrics(1024.0, comb)
	assert.InDelta(t, 2.0, perTokenMS, 1e-12)
	assert.InDelta(t, 4.0/(2.0/1000.0), tokPerS, 1e-9)

	// Prefill: one new token, per-token latency equals the mean.
	perTokenMS, tokPerS = DeriveMetrics(35.5, Combination{BatchSize: 1, PromptLength: 512, NewTokens: 1})
	assert.InDelta(t, 35.5, perTokenMS, 1e-12)
	assert.InDelta(t, 1.0/(35.5/1000.0), tokPerS, 1e-9)
}

func TestLogFileName(t *testing.T) {
	assert.Equal(t, "log_gpt2_nogptq.csv", LogFileName("gpt2", false))
	assert.Equal(t, "log_meta-llama-Llama-2-7b-hf_gptq.csv", LogFileName("meta-llama/Llama-2-7b-hf", true))
}

func TestResultRowQuantized(t *testing.T) {
	r := Result{
		Combination: Combination{BatchSize: 4, PromptLength: 512, NewTokens: 512},
		GPTQ:        true,
		Quant:       &gptq.Config{ActOrder: true, Bits: 4, GroupSize: 128},
		Kernel:      gptq.KernelExllama,
		NumBatches:  10,
		LoadTime:    12340 * time.Millisecond,
		PerTokenLatencyMS: 25.456,
		ThroughputTokS:    157.139,
		PeakMemoryMB:      8123.449,
	}

	assert.Equal(t, "true,true,4,128,exllama,10,4,512,512,12.34,25.46,157.14,8123.45\n", r.row())
}

func TestResultRowUnquantizedLeavesDescriptorsEmpty(t *testing.T) {
	r := Result{
		Combination: Combination{BatchSize: 2, PromptLength: 128, NewTokens: 32},
		NumBatches:  3,
		LoadTime:    time.Second,
		PerTokenLatencyMS: 10,
		ThroughputTokS:    200,
		PeakMemoryMB:      512,
	}

	assert.Equal(t, "false,,,,,3,2,128,32,1.00,10.00,200.00,512.00\n", r.row())
}

func TestWriterWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName("gpt2", false))

	w, err := NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Append(Result{
		Combination: Combination{BatchSize: 1, PromptLength: 256, NewTokens: 256},
		NumBatches:  10,
	}))
	require.NoError(t, w.Close())
	assert.Equal(t, 1, w.Rows())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.SplitAfter(string(data), "\n")
	assert.Equal(t, csvHeader, lines[0])
	assert.Equal(t, 13, strings.Count(lines[0], ",")+1, "column count")
	assert.Equal(t, 13, strings.Count(strings.TrimSuffix(lines[1], "\n"), ",")+1)
}
