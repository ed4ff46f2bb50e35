package models

import "strings"

// Task names the inference shape a model is benchmarked under.
type Task string

const (
	// TaskTextGeneration is decoder-only generation.
	TaskTextGeneration Task = "text-generation"
	// TaskText2TextGeneration is encoder-decoder generation.
	TaskText2TextGeneration Task = "text2text-generation"
	// TaskFeatureExtraction is a single forward pass, no generation.
	TaskFeatureExtraction Task = "feature-extraction"
)

// IsDecoder reports whether the task runs the generation loop rather
// than a single forward pass.
func (t Task) IsDecoder() bool {
	return t == TaskTextGeneration || t == TaskText2TextGeneration
}

// InferTask derives the task from the model's architecture names when
// the caller does not name one explicitly.
func InferTask(cfg *Config) Task {
	for _, arch := range cfg.Architectures {
		switch {
		case strings.HasSuffix(arch, "ForCausalLM"), strings.HasSuffix(arch, "LMHeadModel"):
			return TaskTextGeneration
		case strings.HasSuffix(arch, "ForConditionalGeneration"):
			return TaskText2TextGeneration
		}
	}
	return TaskFeatureExtraction
}
