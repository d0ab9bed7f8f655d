package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	tagModelDir  string
	tagEmbedding string
)

var tagCmd = &cobra.Command{
	Use:   "tag [token]...",
	Short: "Tag a single pre-tokenized sentence",
	Long: `Tags the tokens given on the command line and prints one token/tag
pair per line:

  $ seqlabel tag -m out/ner -e glove.txt Obama visited Paris
  Obama   B-PER
  visited O
  Paris   B-LOC`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTag,
}

func init() {
	tagCmd.Flags().StringVarP(&tagModelDir, "model", "m", "",
		"model bundle directory (required)")
	tagCmd.Flags().StringVarP(&tagEmbedding, "embedding", "e", "",
		"path to the embedding table the model was trained with (required)")
	_ = tagCmd.MarkFlagRequired("model")
	_ = tagCmd.MarkFlagRequired("embedding")
	rootCmd.AddCommand(tagCmd)
}

func runTag(cmd *cobra.Command, args []string) error {
	tg, err := loadTagger(tagModelDir, tagEmbedding)
	if err != nil {
		return err
	}
	tags, err := tg.PredictSentence(args)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
	for i, token := range args {
		fmt.Fprintf(w, "%s\t%s\n", token, tags[i])
	}
	return w.Flush()
}
