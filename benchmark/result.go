package benchmark

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/aptsunny/optimum/gptq"
)

// csvHeader matches historical benchmark logs column for column,
// spacing included.
const csvHeader = "gptq, act_order, bits, group_size, kernel, num_batches, batch_size, prompt_length, new_tokens, Load time (s), Per-token latency (ms), Throughput (tok/s), Max memory (MB)\n"

// Result is one finalized row: quantization descriptors, configuration,
// and the derived latency/throughput/memory figures. Created once both
// sub-benchmarks for a combination complete; never mutated afterward.
type Result struct {
	Combination

	GPTQ       bool
	Quant      *gptq.Config
	Kernel     string
	NumBatches int

	LoadTime          time.Duration
	PerTokenLatencyMS float64
	ThroughputTokS    float64
	PeakMemoryMB      float64
}

// DeriveMetrics reduces a mean latency to the reported figures:
// per-token latency is the mean divided by the token budget, throughput
// is sequences per second times batch size.
func DeriveMetrics(meanLatencyMS float64, comb Combination) (perTokenMS, tokPerS float64) {
	perTokenMS = meanLatencyMS / float64(comb.NewTokens)
	tokPerS = float64(comb.BatchSize) / (perTokenMS * 1e-3)
	return perTokenMS, tokPerS
}

// LogFileName derives the output file from the model identifier and the
// quantization flag.
func LogFileName(modelID string, quantized bool) string {
	name := "log_" + strings.ReplaceAll(modelID, "/", "-")
	if quantized {
		name += "_gptq"
	} else {
		name += "_nogptq"
	}
	return name + ".csv"
}

// Writer appends result rows to the CSV log as they are produced, one
// write per row so a crash never loses finished combinations.
type Writer struct {
	file *os.File
	rows int
}

// NewWriter creates the log file and writes the header row.
func NewWriter(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating result log")
	}
	if _, err := file.WriteString(csvHeader); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "writing result header")
	}
	return &Writer{file: file}, nil
}

// Append writes one finalized row.
func (w *Writer) Append(r Result) error {
	if _, err := w.file.WriteString(r.row()); err != nil {
		return errors.Wrap(err, "appending result row")
	}
	w.rows++
	return nil
}

// Rows reports how many data rows have been written.
func (w *Writer) Rows() int {
	return w.rows
}

// Close flushes and closes the log.
func (w *Writer) Close() error {
	return w.file.Close()
}

// row renders the CSV line. Quantization descriptor columns stay empty
// for non-quantized runs.
func (r Result) row() string {
	actOrder, bits, groupSize := "", "", ""
	if r.Quant != nil {
		actOrder = strconv.FormatBool(r.Quant.ActOrder)
		bits = strconv.Itoa(r.Quant.Bits)
		groupSize = strconv.Itoa(r.Quant.GroupSize)
	}

	return fmt.Sprintf("%t,%s,%s,%s,%s,%d,%d,%d,%d,%.2f,%.2f,%.2f,%.2f\n",
		r.GPTQ,
		actOrder,
		bits,
		groupSize,
		r.Kernel,
		r.NumBatches,
		r.BatchSize,
		r.PromptLength,
		r.NewTokens,
		r.LoadTime.Seconds(),
		r.PerTokenLatencyMS,
		r.ThroughputTokS,
		r.PeakMemoryMB,
	)
}
