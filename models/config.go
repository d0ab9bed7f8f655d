// Package models builds and runs the sequence labeling networks.
//
// The architecture follows the BiLSTM-CRF family: pretrained word vectors,
// optionally concatenated with character features from a bidirectional
// recurrent encoder over each token's runes, feed a bidirectional word
// encoder, a tanh projection, and either a per-token softmax or a
// linear-chain CRF output layer. All arithmetic is float64 and runs on the
// CPU.
package models

import (
	"github.com/pkg/errors"
)

// Encoder selects the recurrent cell of the word and character encoders.
type Encoder string

// Supported recurrent cells.
const (
	EncoderGRU  Encoder = "gru"
	EncoderLSTM Encoder = "lstm"
)

// Optimizer ids accepted by Config.Optimizer.
const (
	OptimizerAdam = "adam"
	OptimizerSGD  = "sgd"
)

// Config are the hyperparameters of a network. It is a value object:
// construction accepts anything, Build validates. NumLabels and
// EmbeddingDim are derived from the fitted preprocessor and embedding
// table rather than chosen by the caller.
type Config struct {
	CharEmbeddingDim int     `json:"char_embedding_dim"`
	WordUnits        int     `json:"word_units"`
	CharUnits        int     `json:"char_units"`
	FCDim            int     `json:"fc_dim"`
	Dropout          float64 `json:"dropout"`
	UseChar          bool    `json:"use_char"`
	UseCRF           bool    `json:"use_crf"`
	Encoder          Encoder `json:"encoder"`
	Optimizer        string  `json:"optimizer"`
	LearningRate     float64 `json:"learning_rate"`

	NumLabels    int `json:"num_labels"`
	NumChars     int `json:"num_chars"`
	EmbeddingDim int `json:"embedding_dim"`

	// Seed fixes the weight initialization and dropout stream. Zero picks
	// a time-based seed.
	Seed int64 `json:"seed,omitempty"`
}

// DefaultConfig returns the standard hyperparameters. NumLabels and
// EmbeddingDim are left at zero to be filled in before Build.
func DefaultConfig() Config {
	return Config{
		CharEmbeddingDim: 25,
		WordUnits:        100,
		CharUnits:        25,
		FCDim:            100,
		Dropout:          0.5,
		UseChar:          true,
		UseCRF:           true,
		Encoder:          EncoderGRU,
		Optimizer:        OptimizerAdam,
		LearningRate:     0.001,
	}
}

// Validate checks that the configuration describes a buildable network.
func (c Config) Validate() error {
	if c.NumLabels <= 0 {
		return errors.Errorf("num_labels must be positive, got %d", c.NumLabels)
	}
	if c.EmbeddingDim <= 0 {
		return errors.Errorf("embedding_dim must be positive, got %d", c.EmbeddingDim)
	}
	if c.WordUnits <= 0 {
		return errors.Errorf("word_units must be positive, got %d", c.WordUnits)
	}
	if c.FCDim <= 0 {
		return errors.Errorf("fc_dim must be positive, got %d", c.FCDim)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.Errorf("dropout must be in [0, 1), got %g", c.Dropout)
	}
	if c.UseChar {
		if c.CharEmbeddingDim <= 0 {
			return errors.Errorf("char_embedding_dim must be positive, got %d", c.CharEmbeddingDim)
		}
		if c.CharUnits <= 0 {
			return errors.Errorf("char_units must be positive, got %d", c.CharUnits)
		}
		if c.NumChars <= 0 {
			return errors.Errorf("num_chars must be positive, got %d", c.NumChars)
		}
	}
	switch c.Encoder {
	case EncoderGRU, EncoderLSTM:
	default:
		return errors.Errorf("unknown encoder %q", c.Encoder)
	}
	switch c.Optimizer {
	case OptimizerAdam, OptimizerSGD:
	default:
		return errors.Errorf("unknown optimizer %q", c.Optimizer)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be positive, got %g", c.LearningRate)
	}
	return nil
}

// featureDim returns the width of the per-token feature vector entering
// the word encoder.
func (c Config) featureDim() int {
	dim := c.EmbeddingDim
	if c.UseChar {
		dim += 2 * c.CharUnits
	}
	return dim
}
