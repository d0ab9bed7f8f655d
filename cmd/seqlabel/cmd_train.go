package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/seqlabel/go-seqlabel/corpus"
	"github.com/seqlabel/go-seqlabel/embeddings"
	"github.com/seqlabel/go-seqlabel/tagger"
)

var trainConfigPath string

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a tagger from a YAML run configuration and save the bundle",
	Long: `Reads corpora and hyperparameters from a YAML run configuration,
trains the network, and saves the resulting model bundle.

A minimal run configuration:

  embedding: glove.6B.100d.txt
  train: data/train.iob
  valid: data/valid.iob
  model_dir: out/ner
  epochs: 15

When a validation corpus is given, the saved model is the epoch snapshot
with the best entity F1, and its classification report is printed. The
optional model block overrides individual hyperparameters, for example:

  model:
    encoder: lstm
    use_crf: false
    dropout: 0.3`,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVarP(&trainConfigPath, "config", "c", "",
		"path to the YAML run configuration (required)")
	_ = trainCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(trainConfigPath)
	if err != nil {
		return err
	}
	table, err := embeddings.Open(cfg.Embedding)
	if err != nil {
		return err
	}
	xTrain, yTrain, _, err := corpus.LoadData(cfg.Train)
	if err != nil {
		return err
	}

	opts := cfg.fitOptions()
	if cfg.Valid != "" {
		xValid, yValid, _, err := corpus.LoadData(cfg.Valid)
		if err != nil {
			return err
		}
		opts.XValid, opts.YValid = xValid, yValid
	}

	printTitle("seqlabel train")
	printKV("Embedding", "%s (%d words, dim %d)", cfg.Embedding, table.Len(), table.Dim())
	printKV("Training corpus", "%s (%d sentences)", cfg.Train, len(xTrain))
	if cfg.Valid != "" {
		printKV("Validation corpus", "%s (%d sentences)", cfg.Valid, len(opts.XValid))
	}

	tg := tagger.New(table, cfg.taggerOptions()...)
	start := time.Now()
	if err := tg.Fit(xTrain, yTrain, opts); err != nil {
		return err
	}
	printKV("Training time", "%s", time.Since(start).Round(time.Millisecond))

	if report := tg.BestReport(); report != nil {
		fmt.Println()
		fmt.Println(report)
	}
	if err := tg.Save(cfg.ModelDir); err != nil {
		return err
	}
	printSuccess("Saved model bundle to %s", cfg.ModelDir)
	return nil
}
