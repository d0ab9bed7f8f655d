// Package preprocess turns tokenized sentences into the numeric batches
// consumed by the sequence labeling network, and label ids back into tag
// strings.
//
// A VectorTransformer is fitted once on training data, which derives the
// label and character vocabularies. After fitting, the vocabularies are
// closed: transforms performed before and after a save/load round trip see
// exactly the same state.
package preprocess

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/seqlabel/go-seqlabel/embeddings"
)

// Reserved character ids. Id 0 is kept for padding, id 1 stands in for any
// rune not seen during fitting.
const (
	PadCharID = 0
	UnkCharID = 1
)

// OutsideTag is the tag emitted for positions that cannot be mapped back
// to a fitted label.
const OutsideTag = "O"

// VectorTransformer maps tokens to word vectors and character ids, and
// tags to label ids. The zero value is not usable; construct with
// NewVectorTransformer and call Fit before transforming.
type VectorTransformer struct {
	table        *embeddings.Table
	useChar      bool
	lower        bool
	initialChars []string

	labels *vocab
	chars  *vocab
	fitted bool
}

// Option configures a VectorTransformer.
type Option func(*VectorTransformer)

// WithChar toggles character id extraction. Enabled by default.
func WithChar(enabled bool) Option {
	return func(vt *VectorTransformer) { vt.useChar = enabled }
}

// WithLower lowercases tokens before embedding lookup. Disabled by default.
func WithLower(enabled bool) Option {
	return func(vt *VectorTransformer) { vt.lower = enabled }
}

// WithInitialVocab seeds the character vocabulary with the runes of the
// given words before fitting.
func WithInitialVocab(words []string) Option {
	return func(vt *VectorTransformer) { vt.initialChars = words }
}

// NewVectorTransformer builds an unfitted transformer bound to an
// embedding table.
func NewVectorTransformer(table *embeddings.Table, opts ...Option) *VectorTransformer {
	vt := &VectorTransformer{
		table:   table,
		useChar: true,
	}
	for _, opt := range opts {
		opt(vt)
	}
	return vt
}

// Batch is the numeric form of a batch of sentences, padded to the length
// of the longest sentence in the batch.
type Batch struct {
	// WordVecs[s][t] is the embedding vector of token t of sentence s.
	// Rows past the true sentence length, and tokens without an embedding
	// table entry, hold zero vectors.
	WordVecs [][][]float64
	// CharIDs[s][t] lists the character ids of token t. Positions past the
	// true sentence length hold empty slices. Nil when character features
	// are disabled.
	CharIDs [][][]int
	// Lengths holds the true sentence lengths.
	Lengths []int
	// MaxLen is the padded time dimension, the maximum of Lengths.
	MaxLen int
}

// Size returns the number of sentences in the batch.
func (b *Batch) Size() int { return len(b.Lengths) }

// foldToken canonicalizes a token for embedding and character lookup.
// Tokens are NFC-normalized so canonically equivalent spellings unify.
func (vt *VectorTransformer) foldToken(token string) string {
	token = norm.NFC.String(token)
	if vt.lower {
		token = strings.ToLower(token)
	}
	return token
}

// Fit derives the label and character vocabularies from training data.
// Fitting again re-derives both from scratch, which invalidates any model
// built against the previous vocabularies.
func (vt *VectorTransformer) Fit(sentences [][]string, tags [][]string) error {
	if len(sentences) == 0 {
		return errors.New("cannot fit on empty training data")
	}
	if len(sentences) != len(tags) {
		return errors.Errorf("got %d sentences but %d tag rows", len(sentences), len(tags))
	}

	labels := newVocab()
	chars := newVocab()
	chars.add("<pad>")
	chars.add("<unk>")
	for _, word := range vt.initialChars {
		for _, r := range vt.foldToken(word) {
			chars.add(string(r))
		}
	}

	for i, sentence := range sentences {
		if len(sentence) != len(tags[i]) {
			return errors.Errorf("sentence %d has %d tokens but %d tags", i, len(sentence), len(tags[i]))
		}
		for _, token := range sentence {
			for _, r := range vt.foldToken(token) {
				chars.add(string(r))
			}
		}
		for _, tag := range tags[i] {
			labels.add(tag)
		}
	}
	if labels.size() == 0 {
		return errors.New("training data contains no tags")
	}

	vt.labels = labels
	vt.chars = chars
	vt.fitted = true
	return nil
}

// Fitted reports whether Fit has completed successfully.
func (vt *VectorTransformer) Fitted() bool { return vt.fitted }

// LabelSize returns the number of distinct tags seen at fit time.
func (vt *VectorTransformer) LabelSize() int {
	if !vt.fitted {
		return 0
	}
	return vt.labels.size()
}

// CharSize returns the size of the character vocabulary, including the
// reserved pad and unknown ids.
func (vt *VectorTransformer) CharSize() int {
	if !vt.fitted {
		return 0
	}
	return vt.chars.size()
}

// VectorLen returns the width of the word vectors.
func (vt *VectorTransformer) VectorLen() int { return vt.table.Dim() }

// UseChar reports whether character features are enabled.
func (vt *VectorTransformer) UseChar() bool { return vt.useChar }

// Table returns the embedding table the transformer is bound to.
func (vt *VectorTransformer) Table() *embeddings.Table { return vt.table }

// Transform converts sentences into a padded numeric batch.
func (vt *VectorTransformer) Transform(sentences [][]string) (*Batch, error) {
	if !vt.fitted {
		return nil, errors.New("transformer is not fitted")
	}
	if len(sentences) == 0 {
		return nil, errors.New("empty batch")
	}

	maxLen := 0
	lengths := make([]int, len(sentences))
	for i, sentence := range sentences {
		lengths[i] = len(sentence)
		if len(sentence) > maxLen {
			maxLen = len(sentence)
		}
	}
	if maxLen == 0 {
		return nil, errors.New("batch contains only empty sentences")
	}

	dim := vt.table.Dim()
	batch := &Batch{
		WordVecs: make([][][]float64, len(sentences)),
		Lengths:  lengths,
		MaxLen:   maxLen,
	}
	if vt.useChar {
		batch.CharIDs = make([][][]int, len(sentences))
	}

	for s, sentence := range sentences {
		vecs := make([][]float64, maxLen)
		var charIDs [][]int
		if vt.useChar {
			charIDs = make([][]int, maxLen)
		}
		for t := 0; t < maxLen; t++ {
			vecs[t] = make([]float64, dim)
			if t >= len(sentence) {
				continue
			}
			folded := vt.foldToken(sentence[t])
			if vec, ok := vt.table.Vector(folded); ok {
				copy(vecs[t], vec)
			}
			if vt.useChar {
				ids := make([]int, 0, len(folded))
				for _, r := range folded {
					if id, ok := vt.chars.id(string(r)); ok {
						ids = append(ids, id)
					} else {
						ids = append(ids, UnkCharID)
					}
				}
				charIDs[t] = ids
			}
		}
		batch.WordVecs[s] = vecs
		if vt.useChar {
			batch.CharIDs[s] = charIDs
		}
	}
	return batch, nil
}

// TransformLabels converts tag rows into label id rows. The label
// vocabulary is closed after Fit, so an unseen tag is an error.
func (vt *VectorTransformer) TransformLabels(tags [][]string) ([][]int, error) {
	if !vt.fitted {
		return nil, errors.New("transformer is not fitted")
	}
	out := make([][]int, len(tags))
	for i, row := range tags {
		ids := make([]int, len(row))
		for j, tag := range row {
			id, ok := vt.labels.id(tag)
			if !ok {
				return nil, errors.Errorf("tag %q at sentence %d position %d was not seen at fit time", tag, i, j)
			}
			ids[j] = id
		}
		out[i] = ids
	}
	return out, nil
}

// InverseTransform maps label id rows back to tag strings. Row i is
// truncated to lengths[i]; a nil lengths keeps each row as is. Ids outside
// the fitted vocabulary map to OutsideTag.
func (vt *VectorTransformer) InverseTransform(ids [][]int, lengths []int) [][]string {
	out := make([][]string, len(ids))
	for i, row := range ids {
		n := len(row)
		if lengths != nil && i < len(lengths) && lengths[i] < n {
			n = lengths[i]
		}
		tags := make([]string, n)
		for j := 0; j < n; j++ {
			if vt.fitted {
				if tag, ok := vt.labels.str(row[j]); ok {
					tags[j] = tag
					continue
				}
			}
			tags[j] = OutsideTag
		}
		out[i] = tags
	}
	return out
}

// Labels returns the fitted tags in id order. The returned slice must not
// be modified.
func (vt *VectorTransformer) Labels() []string {
	if !vt.fitted {
		return nil
	}
	return vt.labels.entries()
}
