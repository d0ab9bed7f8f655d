package embeddings

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/seqlabel/go-seqlabel/safetensors"
)

// EmbeddingTensorName is the tensor holding the [words][dim] vector matrix
// in a safetensors embedding file.
const EmbeddingTensorName = "embeddings"

// OpenSafetensors loads a table from a safetensors file holding one 2-D
// float tensor named "embeddings". The word list lives in a sibling JSON
// file at "<path>.vocab.json" as a JSON array of strings, with entry i
// naming row i of the tensor.
func OpenSafetensors(path string) (*Table, error) {
	vocabPath := path + ".vocab.json"
	vocabBytes, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read word list %s", vocabPath)
	}
	var words []string
	if err := json.Unmarshal(vocabBytes, &words); err != nil {
		return nil, errors.Wrapf(err, "failed to parse word list %s", vocabPath)
	}
	if len(words) == 0 {
		return nil, errors.Errorf("empty word list in %s", vocabPath)
	}

	r, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	meta, ok := r.Header().Tensors[EmbeddingTensorName]
	if !ok {
		return nil, errors.Errorf("tensor %q not found in %s", EmbeddingTensorName, path)
	}
	if len(meta.Shape) != 2 {
		return nil, errors.Errorf("tensor %q in %s has shape %v, expected 2-D", EmbeddingTensorName, path, meta.Shape)
	}
	if meta.Shape[0] != len(words) {
		return nil, errors.Errorf("tensor %q has %d rows but word list has %d entries", EmbeddingTensorName, meta.Shape[0], len(words))
	}

	tensor, err := r.ReadTensor(EmbeddingTensorName)
	if err != nil {
		return nil, err
	}
	flat, err := safetensors.Float64Values(tensor)
	if err != nil {
		return nil, errors.Wrapf(err, "tensor %q in %s", EmbeddingTensorName, path)
	}

	dim := meta.Shape[1]
	vectors := make([][]float64, len(words))
	for i := range words {
		vectors[i] = flat[i*dim : (i+1)*dim : (i+1)*dim]
	}

	t, err := New(words, vectors)
	if err != nil {
		return nil, errors.Wrapf(err, "inconsistent embedding file %s", path)
	}
	klog.V(1).Infof("Loaded %d word vectors (dim=%d) from %s", t.Len(), t.Dim(), path)
	return t, nil
}
