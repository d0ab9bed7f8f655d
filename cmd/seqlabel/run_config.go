package main

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/seqlabel/go-seqlabel/models"
	"github.com/seqlabel/go-seqlabel/tagger"
)

// runConfig is the schema of the train command's --config file. Paths
// are resolved relative to the working directory. The model block is
// optional; absent fields keep the defaults of models.DefaultConfig.
type runConfig struct {
	Embedding string `yaml:"embedding"`
	Train     string `yaml:"train"`
	Valid     string `yaml:"valid"`
	ModelDir  string `yaml:"model_dir"`

	Epochs    int   `yaml:"epochs"`
	BatchSize int   `yaml:"batch_size"`
	Shuffle   *bool `yaml:"shuffle"`
	Verbose   *int  `yaml:"verbose"`
	Seed      int64 `yaml:"seed"`

	Lower        bool     `yaml:"lower"`
	InitialVocab []string `yaml:"initial_vocab"`

	Model modelConfig `yaml:"model"`
}

// modelConfig mirrors the tunable hyperparameters of models.Config.
// Pointer fields distinguish "absent, keep the default" from an
// explicit zero such as dropout: 0.
type modelConfig struct {
	CharEmbeddingDim *int     `yaml:"char_embedding_dim"`
	WordUnits        *int     `yaml:"word_units"`
	CharUnits        *int     `yaml:"char_units"`
	FCDim            *int     `yaml:"fc_dim"`
	Dropout          *float64 `yaml:"dropout"`
	UseChar          *bool    `yaml:"use_char"`
	UseCRF           *bool    `yaml:"use_crf"`
	Encoder          string   `yaml:"encoder"`
	Optimizer        string   `yaml:"optimizer"`
	LearningRate     *float64 `yaml:"learning_rate"`
}

func loadRunConfig(path string) (*runConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read run configuration %s", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var cfg runConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse run configuration %s", path)
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid run configuration %s", path)
	}
	return &cfg, nil
}

func (c *runConfig) validate() error {
	switch {
	case c.Embedding == "":
		return errors.New("embedding path is required")
	case c.Train == "":
		return errors.New("train corpus path is required")
	case c.ModelDir == "":
		return errors.New("model_dir is required")
	}
	return nil
}

// taggerOptions translates the configuration into constructor options,
// passing through only the hyperparameters the file actually set.
func (c *runConfig) taggerOptions() []tagger.Option {
	opts := []tagger.Option{tagger.WithLower(c.Lower), tagger.WithSeed(c.Seed)}
	if len(c.InitialVocab) > 0 {
		opts = append(opts, tagger.WithInitialVocab(c.InitialVocab))
	}
	m := c.Model
	if m.CharEmbeddingDim != nil {
		opts = append(opts, tagger.WithCharEmbeddingDim(*m.CharEmbeddingDim))
	}
	if m.WordUnits != nil {
		opts = append(opts, tagger.WithWordUnits(*m.WordUnits))
	}
	if m.CharUnits != nil {
		opts = append(opts, tagger.WithCharUnits(*m.CharUnits))
	}
	if m.FCDim != nil {
		opts = append(opts, tagger.WithFCDim(*m.FCDim))
	}
	if m.Dropout != nil {
		opts = append(opts, tagger.WithDropout(*m.Dropout))
	}
	if m.UseChar != nil {
		opts = append(opts, tagger.WithChar(*m.UseChar))
	}
	if m.UseCRF != nil {
		opts = append(opts, tagger.WithCRF(*m.UseCRF))
	}
	if m.Encoder != "" {
		opts = append(opts, tagger.WithEncoder(models.Encoder(m.Encoder)))
	}
	if m.Optimizer != "" {
		opts = append(opts, tagger.WithOptimizer(m.Optimizer))
	}
	if m.LearningRate != nil {
		opts = append(opts, tagger.WithLearningRate(*m.LearningRate))
	}
	return opts
}

func (c *runConfig) fitOptions() tagger.FitOptions {
	opts := tagger.DefaultFitOptions()
	if c.Epochs > 0 {
		opts.Epochs = c.Epochs
	}
	if c.BatchSize > 0 {
		opts.BatchSize = c.BatchSize
	}
	if c.Shuffle != nil {
		opts.Shuffle = *c.Shuffle
	}
	if c.Verbose != nil {
		opts.Verbose = *c.Verbose
	}
	opts.Seed = c.Seed
	return opts
}
