package preprocess

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/seqlabel/go-seqlabel/embeddings"
)

// FingerprintError reports that saved transformer state was fitted against
// a different embedding table than the one supplied at load time.
type FingerprintError struct {
	Saved, Got embeddings.Fingerprint
}

func (e *FingerprintError) Error() string {
	return fmt.Sprintf("embedding table mismatch: state was fitted against %s, got %s", e.Saved, e.Got)
}

// state is the JSON form of a fitted transformer.
type state struct {
	Labels    []string               `json:"labels"`
	Chars     []string               `json:"chars"`
	UseChar   bool                   `json:"use_char"`
	Lower     bool                   `json:"lower"`
	Embedding embeddings.Fingerprint `json:"embedding"`
}

// Save writes the fitted vocabularies, flags and embedding fingerprint to
// path as JSON.
func (vt *VectorTransformer) Save(path string) error {
	if !vt.fitted {
		return errors.New("cannot save an unfitted transformer")
	}
	st := state{
		Labels:    vt.labels.entries(),
		Chars:     vt.chars.entries(),
		UseChar:   vt.useChar,
		Lower:     vt.lower,
		Embedding: vt.table.Fingerprint(),
	}
	data, err := json.MarshalIndent(&st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode transformer state")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// LoadVectorTransformer restores a fitted transformer from path, binding
// it to table. The stored embedding fingerprint must match the table; a
// mismatch returns a *FingerprintError.
func LoadVectorTransformer(path string, table *embeddings.Table) (*VectorTransformer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.Wrapf(err, "failed to parse transformer state %s", path)
	}
	if len(st.Labels) == 0 {
		return nil, errors.Errorf("transformer state %s has no labels", path)
	}
	if !st.Embedding.Matches(table.Fingerprint()) {
		return nil, &FingerprintError{Saved: st.Embedding, Got: table.Fingerprint()}
	}

	vt := &VectorTransformer{
		table:   table,
		useChar: st.UseChar,
		lower:   st.Lower,
		labels:  vocabFromEntries(st.Labels),
		chars:   vocabFromEntries(st.Chars),
		fitted:  true,
	}
	return vt, nil
}
