package main

import (
	"github.com/seqlabel/go-seqlabel/embeddings"
	"github.com/seqlabel/go-seqlabel/tagger"
)

// loadTagger opens the embedding table and loads the model bundle that
// eval, tag, and export all start from.
func loadTagger(modelDir, embeddingPath string) (*tagger.Tagger, error) {
	table, err := embeddings.Open(embeddingPath)
	if err != nil {
		return nil, err
	}
	return tagger.Load(modelDir, table)
}
