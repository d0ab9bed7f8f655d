package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/seqlabel/go-seqlabel/corpus"
	"github.com/seqlabel/go-seqlabel/metrics"
)

var (
	evalModelDir  string
	evalEmbedding string
	evalCorpus    string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Score a saved tagger against a labeled IOB corpus",
	Long: `Loads a model bundle and reports entity-level precision, recall, and
F1 on a held-out corpus, per entity type and overall. The embedding
table must be the one the model was trained with.`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVarP(&evalModelDir, "model", "m", "",
		"model bundle directory (required)")
	evalCmd.Flags().StringVarP(&evalEmbedding, "embedding", "e", "",
		"path to the embedding table the model was trained with (required)")
	evalCmd.Flags().StringVar(&evalCorpus, "corpus", "",
		"labeled IOB corpus to score against (required)")
	_ = evalCmd.MarkFlagRequired("model")
	_ = evalCmd.MarkFlagRequired("embedding")
	_ = evalCmd.MarkFlagRequired("corpus")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	tg, err := loadTagger(evalModelDir, evalEmbedding)
	if err != nil {
		return err
	}
	x, y, _, err := corpus.LoadData(evalCorpus)
	if err != nil {
		return err
	}
	preds := make([][]string, len(x))
	for i, sentence := range x {
		if preds[i], err = tg.PredictSentence(sentence); err != nil {
			return errors.Wrapf(err, "sentence %d", i)
		}
	}
	report, err := metrics.Evaluate(y, preds)
	if err != nil {
		return err
	}

	printTitle("seqlabel eval")
	printKV("Model", "%s", evalModelDir)
	printKV("Corpus", "%s (%d sentences)", evalCorpus, len(x))
	fmt.Println()
	fmt.Println(report)
	return nil
}
