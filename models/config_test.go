package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 25, cfg.CharEmbeddingDim)
	assert.Equal(t, 100, cfg.WordUnits)
	assert.Equal(t, 25, cfg.CharUnits)
	assert.Equal(t, 100, cfg.FCDim)
	assert.Equal(t, 0.5, cfg.Dropout)
	assert.True(t, cfg.UseChar)
	assert.True(t, cfg.UseCRF)
	assert.Equal(t, EncoderGRU, cfg.Encoder)
	assert.Equal(t, OptimizerAdam, cfg.Optimizer)
	assert.Equal(t, 0.001, cfg.LearningRate)
}

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.NumLabels = 3
	cfg.NumChars = 10
	cfg.EmbeddingDim = 4
	return cfg
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validTestConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no labels", func(c *Config) { c.NumLabels = 0 }},
		{"no embedding dim", func(c *Config) { c.EmbeddingDim = 0 }},
		{"no word units", func(c *Config) { c.WordUnits = 0 }},
		{"no fc dim", func(c *Config) { c.FCDim = 0 }},
		{"dropout too high", func(c *Config) { c.Dropout = 1 }},
		{"dropout negative", func(c *Config) { c.Dropout = -0.1 }},
		{"char dim missing", func(c *Config) { c.CharEmbeddingDim = 0 }},
		{"char units missing", func(c *Config) { c.CharUnits = 0 }},
		{"char vocab missing", func(c *Config) { c.NumChars = 0 }},
		{"unknown encoder", func(c *Config) { c.Encoder = "rwkv" }},
		{"unknown optimizer", func(c *Config) { c.Optimizer = "lion" }},
		{"bad learning rate", func(c *Config) { c.LearningRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("char checks skipped when disabled", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.UseChar = false
		cfg.CharEmbeddingDim = 0
		cfg.CharUnits = 0
		cfg.NumChars = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfigJSONRoundTrip(t *testing.T) {
	cfg := validTestConfig()
	cfg.Encoder = EncoderLSTM
	cfg.Optimizer = OptimizerSGD
	cfg.Seed = 99

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var back Config
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cfg, back)
}

func TestFeatureDim(t *testing.T) {
	cfg := validTestConfig()
	assert.Equal(t, cfg.EmbeddingDim+2*cfg.CharUnits, cfg.featureDim())

	cfg.UseChar = false
	assert.Equal(t, cfg.EmbeddingDim, cfg.featureDim())
}
