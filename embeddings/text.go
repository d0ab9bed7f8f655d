package embeddings

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// OpenText loads a table in the word2vec text format: an optional first
// line "count dim", then one "word v1 v2 ... vd" line per word. GloVe and
// fastText .vec files both fit this shape.
func OpenText(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open embedding file %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var words []string
	var vectors [][]float64
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		// A "count dim" header line is allowed only at the top.
		if lineNo == 1 && len(fields) == 2 {
			count, errCount := strconv.Atoi(fields[0])
			_, errDim := strconv.Atoi(fields[1])
			if errCount == nil && errDim == nil {
				words = make([]string, 0, count)
				vectors = make([][]float64, 0, count)
				continue
			}
		}

		if len(fields) < 2 {
			return nil, errors.Errorf("%s:%d: expected word followed by vector components", path, lineNo)
		}
		vec := make([]float64, len(fields)-1)
		for i, field := range fields[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d: bad vector component %q", path, lineNo, field)
			}
			vec[i] = v
		}
		words = append(words, fields[0])
		vectors = append(vectors, vec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	t, err := New(words, vectors)
	if err != nil {
		return nil, errors.Wrapf(err, "inconsistent embedding file %s", path)
	}
	klog.V(1).Infof("Loaded %d word vectors (dim=%d) from %s", t.Len(), t.Dim(), path)
	return t, nil
}
