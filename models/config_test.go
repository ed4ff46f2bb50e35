package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModelConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(body), 0o644))
	return dir
}

func TestLoadConfig(t *testing.T) {
	dir := writeModelConfig(t, `{
		"vocab_size": 50257,
		"eos_token_id": 50256,
		"architectures": ["GPT2LMHeadModel"]
	}`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 50257, cfg.VocabSize)
	require.NotNil(t, cfg.EOSTokenID)
	assert.Equal(t, int64(50256), *cfg.EOSTokenID)
	assert.Nil(t, cfg.PadTokenID)
}

func TestLoadConfigRejectsMissingVocab(t *testing.T) {
	dir := writeModelConfig(t, `{"architectures": ["BertModel"]}`)

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestPadTokenFallsBackToEOS(t *testing.T) {
	eos := int64(2)
	pad := int64(0)

	cfg := &Config{VocabSize: 32000, EOSTokenID: &eos}
	got, err := cfg.PadToken()
	require.NoError(t, err)
	assert.Equal(t, eos, got)

	cfg.PadTokenID = &pad
	got, err = cfg.PadToken()
	require.NoError(t, err)
	assert.Equal(t, pad, got)

	_, err = (&Config{VocabSize: 32000}).PadToken()
	assert.Error(t, err)
}

func TestInferTask(t *testing.T) {
	cases := []struct {
		archs []string
		want  Task
	}{
		{[]string{"LlamaForCausalLM"}, TaskTextGeneration},
		{[]string{"GPT2LMHeadModel"}, TaskTextGeneration},
		{[]string{"T5ForConditionalGeneration"}, TaskText2TextGeneration},
		{[]string{"BertModel"}, TaskFeatureExtraction},
		{nil, TaskFeatureExtraction},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, InferTask(&Config{Architectures: tc.archs}))
	}
}

func TestTaskIsDecoder(t *testing.T) {
	assert.True(t, TaskTextGeneration.IsDecoder())
	assert.True(t, TaskText2TextGeneration.IsDecoder())
	assert.False(t, TaskFeatureExtraction.IsDecoder())
}
