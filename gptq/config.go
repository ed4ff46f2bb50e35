// Package gptq carries the sideband metadata of GPTQ-quantized models:
// the quantization parameters written next to the packed weights and
// the kernel selected to execute them.
package gptq

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ConfigFileName is the sideband file expected inside the quantized
// model folder.
const ConfigFileName = "quantization_config.json"

// Config mirrors the quantization parameters a GPTQ packing run records.
type Config struct {
	// ActOrder reports whether columns were quantized in decreasing
	// activation order (desc_act).
	ActOrder bool `mapstructure:"desc_act"`
	// Bits is the weight precision.
	Bits int `mapstructure:"bits"`
	// GroupSize is the number of columns sharing quantization
	// parameters, -1 for per-row.
	GroupSize int `mapstructure:"group_size"`
}

// LoadConfig reads the quantization config from the quantized model
// folder.
//
// Arguments:
// - modelDir: Folder holding the packed weights and the sideband JSON.
//
// Returns:
// - *Config: The decoded quantization parameters.
// - error: Error if the file is missing or malformed.
func LoadConfig(modelDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(modelDir, ConfigFileName))
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", ConfigFileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", ConfigFileName)
	}
	return &cfg, nil
}
