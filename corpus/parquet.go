package corpus

import (
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// sentenceRow is the Parquet schema, one row per sentence. The auxiliary
// columns of a token are packed into a single string on the unit
// separator, which cannot occur in whitespace-delimited column values.
type sentenceRow struct {
	Tokens []string `parquet:"tokens,list"`
	Tags   []string `parquet:"tags,list"`
	Aux    []string `parquet:"aux,list"`
}

const auxSeparator = "\x1f"

// WriteParquet stores a corpus as one Parquet row per sentence. aux may
// be nil; sentences without auxiliary columns round-trip as empty
// per-token column sets.
func WriteParquet(path string, sentences, tags [][]string, aux [][][]string) error {
	if len(sentences) != len(tags) {
		return errors.Errorf("got %d sentences but %d tag rows", len(sentences), len(tags))
	}
	if aux != nil && len(aux) != len(sentences) {
		return errors.Errorf("got %d sentences but %d auxiliary rows", len(sentences), len(aux))
	}

	rows := make([]sentenceRow, len(sentences))
	for s, sentence := range sentences {
		if len(tags[s]) != len(sentence) {
			return errors.Errorf("sentence %d has %d tokens but %d tags", s, len(sentence), len(tags[s]))
		}
		row := sentenceRow{
			Tokens: sentence,
			Tags:   tags[s],
			Aux:    make([]string, len(sentence)),
		}
		if aux != nil {
			if len(aux[s]) != len(sentence) {
				return errors.Errorf("sentence %d has %d tokens but %d auxiliary sets", s, len(sentence), len(aux[s]))
			}
			for t, cols := range aux[s] {
				row.Aux[t] = strings.Join(cols, auxSeparator)
			}
		}
		rows[s] = row
	}

	if err := parquet.WriteFile(path, rows); err != nil {
		return errors.Wrapf(err, "failed to write parquet corpus %s", path)
	}
	klog.V(1).Infof("Wrote %d sentences to %s", len(rows), path)
	return nil
}

// ReadParquet loads a corpus written by WriteParquet.
func ReadParquet(path string) ([][]string, [][]string, [][][]string, error) {
	rows, err := parquet.ReadFile[sentenceRow](path)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "failed to read parquet corpus %s", path)
	}

	sentences := make([][]string, len(rows))
	tags := make([][]string, len(rows))
	aux := make([][][]string, len(rows))
	for s, row := range rows {
		if len(row.Tags) != len(row.Tokens) {
			return nil, nil, nil, errors.Errorf("parquet corpus %s: row %d has %d tokens but %d tags",
				path, s, len(row.Tokens), len(row.Tags))
		}
		if len(row.Aux) != 0 && len(row.Aux) != len(row.Tokens) {
			return nil, nil, nil, errors.Errorf("parquet corpus %s: row %d has %d tokens but %d auxiliary sets",
				path, s, len(row.Tokens), len(row.Aux))
		}

		sentences[s] = row.Tokens
		tags[s] = row.Tags
		aux[s] = make([][]string, len(row.Tokens))
		for t := range row.Tokens {
			if t < len(row.Aux) && row.Aux[t] != "" {
				aux[s][t] = strings.Split(row.Aux[t], auxSeparator)
			} else {
				aux[s][t] = []string{}
			}
		}
	}
	klog.V(1).Infof("Loaded %d sentences from %s", len(rows), path)
	return sentences, tags, aux, nil
}
