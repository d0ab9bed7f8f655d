package preprocess

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqlabel/go-seqlabel/embeddings"
)

func testTable(t *testing.T) *embeddings.Table {
	t.Helper()
	table, err := embeddings.New(
		[]string{"john", "lives", "in", "london", "."},
		[][]float64{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
			{1, 1, 0},
			{0, 1, 1},
		},
	)
	require.NoError(t, err)
	return table
}

func fittedTransformer(t *testing.T, opts ...Option) *VectorTransformer {
	t.Helper()
	vt := NewVectorTransformer(testTable(t), opts...)
	err := vt.Fit(
		[][]string{
			{"John", "lives", "in", "London", "."},
			{"London", "."},
		},
		[][]string{
			{"B-PER", "O", "O", "B-LOC", "O"},
			{"B-LOC", "O"},
		},
	)
	require.NoError(t, err)
	return vt
}

func TestFitDerivesVocabularies(t *testing.T) {
	vt := fittedTransformer(t, WithLower(true))

	assert.True(t, vt.Fitted())
	assert.Equal(t, 3, vt.LabelSize())
	assert.Equal(t, []string{"B-PER", "O", "B-LOC"}, vt.Labels(), "labels keep first-occurrence order")
	assert.Equal(t, 3, vt.VectorLen())
	assert.Greater(t, vt.CharSize(), 2, "char vocabulary holds data runes past the reserved ids")
}

func TestFitErrors(t *testing.T) {
	vt := NewVectorTransformer(testTable(t))

	assert.Error(t, vt.Fit(nil, nil))
	assert.Error(t, vt.Fit([][]string{{"a"}}, nil))
	assert.Error(t, vt.Fit([][]string{{"a", "b"}}, [][]string{{"O"}}))
	assert.False(t, vt.Fitted())
}

func TestTransformShapes(t *testing.T) {
	vt := fittedTransformer(t, WithLower(true))

	batch, err := vt.Transform([][]string{
		{"John", "lives", "in", "London", "."},
		{"London", "."},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Size())
	assert.Equal(t, 5, batch.MaxLen)
	assert.Equal(t, []int{5, 2}, batch.Lengths)

	require.Len(t, batch.WordVecs, 2)
	for _, sentence := range batch.WordVecs {
		assert.Len(t, sentence, 5, "time dimension padded to batch max")
		for _, vec := range sentence {
			assert.Len(t, vec, 3)
		}
	}

	// Lowercasing makes "John" hit the table entry for "john".
	assert.Equal(t, []float64{1, 0, 0}, batch.WordVecs[0][0])
	// Padding positions hold zero vectors.
	assert.Equal(t, []float64{0, 0, 0}, batch.WordVecs[1][3])

	require.Len(t, batch.CharIDs, 2)
	assert.Len(t, batch.CharIDs[0][0], 4, "one id per rune of John")
	assert.Empty(t, batch.CharIDs[1][2], "no char ids past the true length")
}

func TestTransformUnknownWordIsZeroVector(t *testing.T) {
	vt := fittedTransformer(t)

	batch, err := vt.Transform([][]string{{"Zanzibar"}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, batch.WordVecs[0][0])

	for _, id := range batch.CharIDs[0][0] {
		assert.NotEqual(t, PadCharID, id)
	}
}

func TestTransformWithoutChars(t *testing.T) {
	vt := NewVectorTransformer(testTable(t), WithChar(false))
	require.NoError(t, vt.Fit([][]string{{"john"}}, [][]string{{"B-PER"}}))

	batch, err := vt.Transform([][]string{{"john"}})
	require.NoError(t, err)
	assert.Nil(t, batch.CharIDs)
}

func TestTransformUnfitted(t *testing.T) {
	vt := NewVectorTransformer(testTable(t))
	_, err := vt.Transform([][]string{{"john"}})
	assert.Error(t, err)
}

func TestTransformLabelsRoundTrip(t *testing.T) {
	vt := fittedTransformer(t)

	tags := [][]string{
		{"B-PER", "O", "O", "B-LOC", "O"},
		{"B-LOC", "O"},
	}
	ids, err := vt.TransformLabels(tags)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, []int{0, 1, 1, 2, 1}, ids[0])

	back := vt.InverseTransform(ids, []int{5, 2})
	assert.Equal(t, tags, back)
}

func TestTransformLabelsUnknownTag(t *testing.T) {
	vt := fittedTransformer(t)
	_, err := vt.TransformLabels([][]string{{"B-GPE"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "B-GPE")
}

func TestInverseTransformLengthAlignment(t *testing.T) {
	vt := fittedTransformer(t)

	// Rows padded out to a common width come back truncated to the true
	// lengths, and ids outside the vocabulary fall back to O.
	ids := [][]int{
		{0, 1, 1, 1, 1},
		{2, 99, 1, 1, 1},
	}
	tags := vt.InverseTransform(ids, []int{2, 3})
	require.Len(t, tags, 2)
	assert.Equal(t, []string{"B-PER", "O"}, tags[0])
	assert.Equal(t, []string{"B-LOC", "O", "O"}, tags[1])
}

func TestInitialVocabSeedsChars(t *testing.T) {
	seeded := NewVectorTransformer(testTable(t), WithInitialVocab([]string{"xyz"}))
	require.NoError(t, seeded.Fit([][]string{{"john"}}, [][]string{{"B-PER"}}))

	bare := NewVectorTransformer(testTable(t))
	require.NoError(t, bare.Fit([][]string{{"john"}}, [][]string{{"B-PER"}}))

	assert.Equal(t, bare.CharSize()+3, seeded.CharSize())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	table := testTable(t)
	vt := fittedTransformer(t, WithLower(true))

	path := filepath.Join(t.TempDir(), "preprocessor.json")
	require.NoError(t, vt.Save(path))

	loaded, err := LoadVectorTransformer(path, table)
	require.NoError(t, err)

	assert.Equal(t, vt.LabelSize(), loaded.LabelSize())
	assert.Equal(t, vt.CharSize(), loaded.CharSize())
	assert.Equal(t, vt.Labels(), loaded.Labels())

	sentences := [][]string{{"John", "lives", "in", "London", "."}}
	want, err := vt.Transform(sentences)
	require.NoError(t, err)
	got, err := loaded.Transform(sentences)
	require.NoError(t, err)
	assert.Equal(t, want.WordVecs, got.WordVecs)
	assert.Equal(t, want.CharIDs, got.CharIDs)
}

func TestLoadRejectsDifferentTable(t *testing.T) {
	vt := fittedTransformer(t)
	path := filepath.Join(t.TempDir(), "preprocessor.json")
	require.NoError(t, vt.Save(path))

	other, err := embeddings.New([]string{"john"}, [][]float64{{9, 9, 9}})
	require.NoError(t, err)

	_, err = LoadVectorTransformer(path, other)
	require.Error(t, err)
	var fpErr *FingerprintError
	require.ErrorAs(t, err, &fpErr)
	assert.Equal(t, other.Fingerprint(), fpErr.Got)
}

func TestSaveUnfitted(t *testing.T) {
	vt := NewVectorTransformer(testTable(t))
	assert.Error(t, vt.Save(filepath.Join(t.TempDir(), "p.json")))
}
