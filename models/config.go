// Package models loads the metadata a benchmark run needs from a model
// folder: vocabulary size, special token ids, and the architecture
// names the task is inferred from.
package models

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ConfigFileName is the model metadata file inside the model folder.
const ConfigFileName = "config.json"

// Config is the subset of the model configuration the harness reads.
type Config struct {
	VocabSize     int      `mapstructure:"vocab_size"`
	PadTokenID    *int64   `mapstructure:"pad_token_id"`
	EOSTokenID    *int64   `mapstructure:"eos_token_id"`
	Architectures []string `mapstructure:"architectures"`
}

// LoadConfig reads config.json from the model folder.
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

	if cfg.VocabSize <= 0 {
		return nil, errors.Errorf("%s declares no vocab_size", ConfigFileName)
	}
	return &cfg, nil
}

// PadToken returns the padding token id, falling back to the
// end-of-sequence token when the model defines no pad token.
func (c *Config) PadToken() (int64, error) {
	if c.PadTokenID != nil {
		return *c.PadTokenID, nil
	}
	if c.EOSTokenID != nil {
		return *c.EOSTokenID, nil
	}
	return 0, errors.New("model defines neither pad_token_id nor eos_token_id")
}
