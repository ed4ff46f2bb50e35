package commands

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aptsunny/optimum/benchmark"
	"github.com/aptsunny/optimum/device"
	"github.com/aptsunny/optimum/gptq"
	"github.com/aptsunny/optimum/inference/ort"
	"github.com/aptsunny/optimum/models"
)

type benchFlags struct {
	model          string
	gptqModel      string
	task           string
	numBatches     int
	batchSize      int
	promptLength   int
	newTokens      int
	prefill        bool
	gptq           bool
	sweep          bool
	disableExllama bool
	ortLibrary     string
}

var benchArgs benchFlags

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark a model over a (batch size, prompt length, new tokens) grid",
	Long: `Loads a model (optionally GPTQ-quantized), runs a warmed-up latency
sub-benchmark and a separately warmed-up memory sub-benchmark per grid
combination, and appends one CSV row per combination.`,
	RunE: runBench,
}

func init() {
	flags := benchCmd.Flags()
	flags.StringVar(&benchArgs.model, "model", "", "model to benchmark, or the reference architecture of the quantized model in GPTQ mode")
	flags.StringVar(&benchArgs.gptqModel, "gptq-model", "", "path to a local GPTQ model")
	flags.StringVar(&benchArgs.task, "task", "", "task name; inferred from the model config when omitted")
	flags.IntVar(&benchArgs.numBatches, "num-batches", 10, "timed iterations per combination")
	flags.IntVar(&benchArgs.batchSize, "batch-size", 1, "sequences per call")
	flags.IntVar(&benchArgs.promptLength, "prompt-length", 256, "prompt tokens per sequence")
	flags.IntVar(&benchArgs.newTokens, "new-tokens", 256, "tokens to generate per sequence")
	flags.BoolVar(&benchArgs.prefill, "prefill", false, "benchmark only the prefill step: generate a single new token")
	flags.BoolVar(&benchArgs.gptq, "gptq", false, "the model to benchmark is a GPTQ model")
	flags.BoolVar(&benchArgs.sweep, "sweep", false, "ignore batch/prompt/token flags and run the fixed sweep grid")
	flags.BoolVar(&benchArgs.disableExllama, "disable-exllama", false, "disable the exllama kernel in favor of the CUDA kernels")
	flags.StringVar(&benchArgs.ortLibrary, "ort-library", "", "path to the onnxruntime shared library, when not on the loader path")

	cobra.CheckErr(benchCmd.MarkFlagRequired("model"))
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	// Configuration and environment checks run before anything touches
	// the model: a bad setup must not cost a model load.
	if benchArgs.gptq && benchArgs.gptqModel == "" {
		return errors.New("--gptq-model must be provided when benchmarking GPTQ models")
	}

	dev, err := device.Visible()
	if err != nil {
		return err
	}
	if err := device.Detect(cmd.Context(), dev); err != nil {
		return err
	}

	grid := benchmark.SingleGrid(benchArgs.batchSize, benchArgs.promptLength, benchArgs.newTokens)
	if benchArgs.sweep {
		grid = benchmark.SweepGrid()
	}
	if benchArgs.prefill {
		logger.Info().Msg("prefill benchmark: generating a single new token")
		grid = grid.WithPrefill()
	}

	var quant *gptq.Config
	kernel := ""
	if benchArgs.gptq {
		if quant, err = gptq.LoadConfig(benchArgs.gptqModel); err != nil {
			return err
		}
		kernel = gptq.SelectKernel(benchArgs.disableExllama, quant.ActOrder)
	}

	modelCfg, err := models.LoadConfig(benchArgs.model)
	if err != nil {
		return err
	}

	task := models.Task(benchArgs.task)
	if benchArgs.task == "" {
		task = models.InferTask(modelCfg)
	}

	padTokenID, err := modelCfg.PadToken()
	if err != nil {
		return err
	}

	modelPath := benchArgs.model
	if benchArgs.gptq {
		modelPath = benchArgs.gptqModel
	}
	engine, err := ort.NewEngine(ort.Options{
		ModelPath:         modelPath,
		Device:            dev,
		VocabSize:         modelCfg.VocabSize,
		SharedLibraryPath: benchArgs.ortLibrary,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	loadEvent := logger.Info().
		Float64("load_s", engine.LoadTime().Seconds()).
		Str("task", string(task)).
		Bool("gptq", benchArgs.gptq)
	if quant != nil {
		loadEvent = loadEvent.
			Bool("act_order", quant.ActOrder).
			Int("bits", quant.Bits).
			Int("group_size", quant.GroupSize).
			Str("kernel", kernel)
	}
	loadEvent.Msg("model loaded")

	writer, err := benchmark.NewWriter(benchmark.LogFileName(benchArgs.model, benchArgs.gptq))
	if err != nil {
		return err
	}
	defer writer.Close()

	harness := benchmark.New(benchmark.Options{
		Engine:     engine,
		Tracker:    device.NewMemoryTracker(dev),
		NumBatches: benchArgs.numBatches,
		IsDecoder:  task.IsDecoder(),
		PadTokenID: padTokenID,
		VocabSize:  modelCfg.VocabSize,
		LoadTime:   engine.LoadTime(),
		GPTQ:       benchArgs.gptq,
		Quant:      quant,
		Kernel:     kernel,
		Logger:     logger,
	})

	return harness.Run(cmd.Context(), grid, writer)
}
