// Package corpus reads and writes token-per-line IOB corpora and their
// Parquet equivalents. A corpus line holds a token, any number of
// auxiliary columns, and a final tag; a blank line closes the sentence:
//
//	EU NNP B-ORG
//	rejects VBZ O
//
//	Peter NNP B-PER
//
// Auxiliary columns are opaque pass-through data. They are carried next
// to the tokens so exports can reproduce them, but nothing interprets
// them.
package corpus

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const maxLineBytes = 1 << 20

// LoadData reads an IOB corpus file into parallel sentence, tag, and
// auxiliary column collections, all index-aligned per sentence and per
// token.
func LoadData(path string) ([][]string, [][]string, [][][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "failed to open corpus %s", path)
	}
	defer f.Close()

	sentences, tags, aux, err := ReadIOB(f)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "corpus %s", path)
	}
	klog.V(1).Infof("Loaded %d sentences from %s", len(sentences), path)
	return sentences, tags, aux, nil
}

// ReadIOB parses token-per-line IOB data from r. The first field of a
// line is the token, the last is the tag, and everything between is kept
// as auxiliary columns. A trailing sentence without a closing blank line
// is accepted.
func ReadIOB(r io.Reader) ([][]string, [][]string, [][][]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var sentences, tags [][]string
	var aux [][][]string
	var curTokens, curTags []string
	var curAux [][]string

	flush := func() {
		if len(curTokens) == 0 {
			return
		}
		sentences = append(sentences, curTokens)
		tags = append(tags, curTags)
		aux = append(aux, curAux)
		curTokens, curTags, curAux = nil, nil, nil
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			flush()
			continue
		}
		if len(fields) < 2 {
			return nil, nil, nil, errors.Errorf("line %d has a token but no tag", lineNo)
		}
		curTokens = append(curTokens, fields[0])
		curTags = append(curTags, fields[len(fields)-1])
		curAux = append(curAux, fields[1:len(fields)-1])
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to read")
	}
	flush()
	return sentences, tags, aux, nil
}

// WriteIOB emits one "token aux... tag" line per token and a blank line
// after every sentence. An empty predicted tag is written as the literal
// O. Order is preserved exactly. aux may be nil when the corpus carries
// no auxiliary columns.
func WriteIOB(w io.Writer, sentences [][]string, aux [][][]string, predicted [][]string) error {
	if len(sentences) != len(predicted) {
		return errors.Errorf("got %d sentences but %d prediction rows", len(sentences), len(predicted))
	}
	if aux != nil && len(aux) != len(sentences) {
		return errors.Errorf("got %d sentences but %d auxiliary rows", len(sentences), len(aux))
	}

	bw := bufio.NewWriter(w)
	for s, sentence := range sentences {
		if len(predicted[s]) != len(sentence) {
			return errors.Errorf("sentence %d has %d tokens but %d predictions", s, len(sentence), len(predicted[s]))
		}
		for t, token := range sentence {
			bw.WriteString(token)
			if aux != nil && t < len(aux[s]) {
				for _, col := range aux[s][t] {
					bw.WriteByte(' ')
					bw.WriteString(col)
				}
			}
			tag := predicted[s][t]
			if tag == "" {
				tag = "O"
			}
			bw.WriteByte(' ')
			bw.WriteString(tag)
			bw.WriteByte('\n')
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
