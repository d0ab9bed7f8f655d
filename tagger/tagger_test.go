package tagger

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqlabel/go-seqlabel/corpus"
	"github.com/seqlabel/go-seqlabel/embeddings"
	"github.com/seqlabel/go-seqlabel/models"
	"github.com/seqlabel/go-seqlabel/safetensors"
)

var (
	trainSentences = [][]string{
		{"John", "lives", "in", "London"},
		{"Mary", "works", "in", "Paris"},
		{"John", "works", "in", "Paris"},
		{"Mary", "lives", "in", "London"},
	}
	trainTags = [][]string{
		{"B-PER", "O", "O", "B-LOC"},
		{"B-PER", "O", "O", "B-LOC"},
		{"B-PER", "O", "O", "B-LOC"},
		{"B-PER", "O", "O", "B-LOC"},
	}
)

func testTable(t *testing.T, seed int64) *embeddings.Table {
	t.Helper()
	words := []string{"john", "mary", "lives", "works", "in", "london", "paris"}
	rng := rand.New(rand.NewSource(seed))
	vectors := make([][]float64, len(words))
	for i := range vectors {
		vec := make([]float64, 5)
		for j := range vec {
			vec[j] = rng.Float64()*2 - 1
		}
		vectors[i] = vec
	}
	table, err := embeddings.New(words, vectors)
	require.NoError(t, err)
	return table
}

func newTestTagger(table *embeddings.Table) *Tagger {
	return New(table,
		WithCharEmbeddingDim(4),
		WithWordUnits(6),
		WithCharUnits(3),
		WithFCDim(6),
		WithDropout(0),
		WithOptimizer(models.OptimizerSGD),
		WithLearningRate(0.1),
		WithSeed(61),
		WithLower(true),
	)
}

func fitOptions() FitOptions {
	opts := DefaultFitOptions()
	opts.Epochs = 3
	opts.BatchSize = 2
	opts.Verbose = 0
	opts.Seed = 5
	return opts
}

func TestFitAdoptsBestWithValidation(t *testing.T) {
	tg := newTestTagger(testTable(t, 3))
	opts := fitOptions()
	opts.XValid, opts.YValid = trainSentences, trainTags

	require.NoError(t, tg.Fit(trainSentences, trainTags, opts))
	assert.True(t, tg.HasModel())
	require.NotNil(t, tg.BestReport())
	assert.Equal(t, 8, tg.BestReport().Micro.Support)

	tags, err := tg.PredictSentence(trainSentences[0])
	require.NoError(t, err)
	assert.Len(t, tags, len(trainSentences[0]))
}

func TestFitWithoutValidation(t *testing.T) {
	tg := newTestTagger(testTable(t, 3))
	require.NoError(t, tg.Fit(trainSentences, trainTags, fitOptions()))
	assert.True(t, tg.HasModel())
	assert.Nil(t, tg.BestReport(), "no validation, no report")
}

func TestFitShapeValidation(t *testing.T) {
	tests := []struct {
		name           string
		xTrain, yTrain [][]string
		opts           func(*FitOptions)
	}{
		{"empty training set", nil, nil, nil},
		{"row count mismatch", trainSentences, trainTags[:2], nil},
		{"token count mismatch", trainSentences, [][]string{
			{"B-PER", "O", "O"}, trainTags[1], trainTags[2], trainTags[3],
		}, nil},
		{"half validation pair", trainSentences, trainTags, func(o *FitOptions) {
			o.XValid = trainSentences
		}},
		{"validation row mismatch", trainSentences, trainTags, func(o *FitOptions) {
			o.XValid, o.YValid = trainSentences, trainTags[:1]
		}},
		{"validation token mismatch", trainSentences, trainTags, func(o *FitOptions) {
			o.XValid = trainSentences
			o.YValid = [][]string{{"O"}, trainTags[1], trainTags[2], trainTags[3]}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tg := newTestTagger(testTable(t, 3))
			opts := fitOptions()
			if tc.opts != nil {
				tc.opts(&opts)
			}
			err := tg.Fit(tc.xTrain, tc.yTrain, opts)
			assert.ErrorIs(t, err, ErrShapeMismatch)
			assert.False(t, tg.HasModel())
		})
	}
}

func TestModelNotLoadedBoundary(t *testing.T) {
	tg := newTestTagger(testTable(t, 3))

	_, err := tg.Score(trainSentences, trainTags)
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	_, err = tg.PredictSentence(trainSentences[0])
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	err = tg.PredictToIOB("in.iob", "out.iob")
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	err = tg.Save(t.TempDir())
	assert.ErrorIs(t, err, ErrModelNotLoaded)
}

func TestPredictSentenceIdempotent(t *testing.T) {
	tg := newTestTagger(testTable(t, 3))
	require.NoError(t, tg.Fit(trainSentences, trainTags, fitOptions()))

	first, err := tg.PredictSentence(trainSentences[1])
	require.NoError(t, err)
	second, err := tg.PredictSentence(trainSentences[1])
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScore(t *testing.T) {
	tg := newTestTagger(testTable(t, 3))
	require.NoError(t, tg.Fit(trainSentences, trainTags, fitOptions()))

	score, err := tg.Score(trainSentences, trainTags)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)

	_, err = tg.Score(trainSentences, trainTags[:2])
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	table := testTable(t, 3)
	tg := newTestTagger(table)
	require.NoError(t, tg.Fit(trainSentences, trainTags, fitOptions()))

	want, err := tg.PredictSentence(trainSentences[2])
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "bundle")
	require.NoError(t, tg.Save(dir))

	for _, name := range []string{WeightsFile, ParamsFile, PreprocessorFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	loaded, err := Load(dir, table)
	require.NoError(t, err)
	assert.True(t, loaded.HasModel())
	assert.Nil(t, loaded.BestReport())
	assert.Equal(t, tg.Config(), loaded.Config())

	got, err := loaded.PredictSentence(trainSentences[2])
	require.NoError(t, err)
	assert.Equal(t, want, got, "loaded model predicts exactly like the saved one")

	gotScore, err := loaded.Score(trainSentences, trainTags)
	require.NoError(t, err)
	wantScore, err := tg.Score(trainSentences, trainTags)
	require.NoError(t, err)
	assert.Equal(t, wantScore, gotScore)
}

func TestSaveStampsRunID(t *testing.T) {
	table := testTable(t, 3)
	tg := newTestTagger(table)
	require.NoError(t, tg.Fit(trainSentences, trainTags, fitOptions()))

	dir := filepath.Join(t.TempDir(), "bundle")
	require.NoError(t, tg.Save(dir))

	header, err := safetensors.ReadHeader(filepath.Join(dir, WeightsFile))
	require.NoError(t, err)
	_, err = uuid.Parse(header.Metadata["run_id"])
	assert.NoError(t, err, "the weights carry the training run id")
	assert.Equal(t, "3", header.Metadata["labels"])
}

func TestLoadIncompleteBundle(t *testing.T) {
	table := testTable(t, 3)
	tg := newTestTagger(table)
	require.NoError(t, tg.Fit(trainSentences, trainTags, fitOptions()))

	dir := filepath.Join(t.TempDir(), "bundle")
	require.NoError(t, tg.Save(dir))
	require.NoError(t, os.Remove(filepath.Join(dir, ParamsFile)))

	_, err := Load(dir, table)
	require.ErrorIs(t, err, ErrBundleIncomplete)
	assert.Contains(t, err.Error(), ParamsFile)
	assert.NotContains(t, err.Error(), WeightsFile)

	require.NoError(t, os.Remove(filepath.Join(dir, WeightsFile)))
	_, err = Load(dir, table)
	require.ErrorIs(t, err, ErrBundleIncomplete)
	assert.Contains(t, err.Error(), ParamsFile)
	assert.Contains(t, err.Error(), WeightsFile)
}

func TestLoadRejectsDifferentEmbeddings(t *testing.T) {
	table := testTable(t, 3)
	tg := newTestTagger(table)
	require.NoError(t, tg.Fit(trainSentences, trainTags, fitOptions()))

	dir := filepath.Join(t.TempDir(), "bundle")
	require.NoError(t, tg.Save(dir))

	other := testTable(t, 99) // same words, different vectors
	_, err := Load(dir, other)
	assert.ErrorIs(t, err, ErrBundleMismatch)
}

func TestPredictToIOB(t *testing.T) {
	tg := newTestTagger(testTable(t, 3))
	require.NoError(t, tg.Fit(trainSentences, trainTags, fitOptions()))

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.iob")
	input := `John NNP B-MISC
lives VBZ B-MISC
in IN B-MISC
Paris NNP B-MISC

Mary NNP B-MISC
`
	require.NoError(t, os.WriteFile(inputPath, []byte(input), 0o644))

	outputPath := filepath.Join(dir, "output.iob")
	require.NoError(t, tg.PredictToIOB(inputPath, outputPath))

	raw, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	sentences, tags, aux, err := corpus.ReadIOB(strings.NewReader(string(raw)))
	require.NoError(t, err)

	require.Len(t, sentences, 2)
	assert.Equal(t, []string{"John", "lives", "in", "Paris"}, sentences[0])
	assert.Equal(t, []string{"Mary"}, sentences[1])
	assert.Equal(t, [][]string{{"NNP"}, {"VBZ"}, {"IN"}, {"NNP"}}, aux[0])

	// The gold tags of the input are ignored in favor of predictions.
	for s, sentence := range sentences {
		want, err := tg.PredictSentence(sentence)
		require.NoError(t, err)
		assert.Equal(t, want, tags[s], "sentence %d", s)
	}
}

func TestRefitRederivesVocabulary(t *testing.T) {
	tg := newTestTagger(testTable(t, 3))
	require.NoError(t, tg.Fit(trainSentences, trainTags, fitOptions()))

	relabeled := [][]string{
		{"B-GPE", "O", "O", "B-GPE"},
		{"B-GPE", "O", "O", "B-GPE"},
		{"B-GPE", "O", "O", "B-GPE"},
		{"B-GPE", "O", "O", "B-GPE"},
	}
	require.NoError(t, tg.Fit(trainSentences, relabeled, fitOptions()))

	tags, err := tg.PredictSentence(trainSentences[0])
	require.NoError(t, err)
	for _, tag := range tags {
		assert.Contains(t, []string{"O", "B-GPE"}, tag)
	}
}
