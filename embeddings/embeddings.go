// Package embeddings loads pretrained word-vector tables.
//
// A Table maps words to fixed-width float64 vectors and is treated as an
// immutable resource: the sequence labeling pipeline reads vectors from it
// but never writes back. Two on-disk formats are supported, the word2vec
// text format and safetensors (one 2-D "embeddings" tensor plus a sibling
// word list).
package embeddings

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Table is a fitted word -> vector mapping. All vectors have the same
// width. The table is safe for concurrent readers.
type Table struct {
	words   []string
	index   map[string]int
	vectors [][]float64
	dim     int
	fp      Fingerprint
}

// Fingerprint identifies the content of an embedding table. A model bundle
// records the fingerprint of the table it was trained against, so loading
// the bundle with a different table can be detected.
type Fingerprint struct {
	Words int    `json:"words"`
	Dim   int    `json:"dim"`
	Hash  uint64 `json:"hash"`
}

// Matches reports whether two fingerprints describe the same table content.
func (f Fingerprint) Matches(other Fingerprint) bool { return f == other }

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool { return f == Fingerprint{} }

func (f Fingerprint) String() string {
	return fmt.Sprintf("words=%d dim=%d hash=%016x", f.Words, f.Dim, f.Hash)
}

// New builds an in-memory table from parallel word and vector slices.
// Duplicate words keep their first occurrence. All vectors must share one
// width.
func New(words []string, vectors [][]float64) (*Table, error) {
	if len(words) != len(vectors) {
		return nil, errors.Errorf("got %d words but %d vectors", len(words), len(vectors))
	}
	if len(words) == 0 {
		return nil, errors.New("empty embedding table")
	}

	t := &Table{
		words:   make([]string, 0, len(words)),
		index:   make(map[string]int, len(words)),
		vectors: make([][]float64, 0, len(vectors)),
	}
	for i, word := range words {
		vec := vectors[i]
		if t.dim == 0 {
			if len(vec) == 0 {
				return nil, errors.Errorf("word %q has an empty vector", word)
			}
			t.dim = len(vec)
		}
		if len(vec) != t.dim {
			return nil, errors.Errorf("word %q has vector of width %d, expected %d", word, len(vec), t.dim)
		}
		if _, exists := t.index[word]; exists {
			continue
		}
		t.index[word] = len(t.words)
		t.words = append(t.words, word)
		t.vectors = append(t.vectors, vec)
	}
	t.fp = t.fingerprint()
	return t, nil
}

// Dim returns the vector width.
func (t *Table) Dim() int { return t.dim }

// Len returns the number of words in the table.
func (t *Table) Len() int { return len(t.words) }

// Vector returns the vector for word. The returned slice is shared table
// state and must not be modified.
func (t *Table) Vector(word string) ([]float64, bool) {
	i, ok := t.index[word]
	if !ok {
		return nil, false
	}
	return t.vectors[i], true
}

// Words returns the table's words in insertion order. The returned slice
// must not be modified.
func (t *Table) Words() []string { return t.words }

// Fingerprint returns the content fingerprint of the table.
func (t *Table) Fingerprint() Fingerprint { return t.fp }

// fingerprint hashes words and vector contents with FNV-1a.
func (t *Table) fingerprint() Fingerprint {
	h := fnv.New64a()
	var buf [8]byte
	for i, word := range t.words {
		h.Write([]byte(word))
		h.Write([]byte{0})
		for _, v := range t.vectors[i] {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return Fingerprint{Words: len(t.words), Dim: t.dim, Hash: h.Sum64()}
}

// Open loads a table from path, choosing the format by file extension:
// ".safetensors" uses OpenSafetensors, anything else the word2vec text
// format of OpenText.
func Open(path string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".safetensors") {
		return OpenSafetensors(path)
	}
	return OpenText(path)
}
