package main

import (
	"github.com/spf13/cobra"
)

var (
	exportModelDir  string
	exportEmbedding string
	exportInput     string
	exportOutput    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Tag an IOB corpus file and write the predictions",
	Long: `Reads a token-per-line corpus, replaces its tag column with the
model's predictions, and writes the result. Auxiliary columns between
the token and the tag are preserved; gold tags in the input, if any,
are ignored.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportModelDir, "model", "m", "",
		"model bundle directory (required)")
	exportCmd.Flags().StringVarP(&exportEmbedding, "embedding", "e", "",
		"path to the embedding table the model was trained with (required)")
	exportCmd.Flags().StringVarP(&exportInput, "input", "i", "",
		"input IOB corpus to tag (required)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"output path for the tagged corpus (required)")
	_ = exportCmd.MarkFlagRequired("model")
	_ = exportCmd.MarkFlagRequired("embedding")
	_ = exportCmd.MarkFlagRequired("input")
	_ = exportCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	tg, err := loadTagger(exportModelDir, exportEmbedding)
	if err != nil {
		return err
	}
	if err := tg.PredictToIOB(exportInput, exportOutput); err != nil {
		return err
	}
	printSuccess("Wrote predictions to %s", exportOutput)
	return nil
}
