// Package tagger trains, evaluates, runs, and persists token-level IOB
// sequence taggers. It is the facade over the preprocessing, model,
// trainer, and corpus packages: one Tagger owns a fitted transformer and
// the adopted network, and keeps them consistent across training,
// inference, and bundle round trips.
package tagger

import (
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/seqlabel/go-seqlabel/corpus"
	"github.com/seqlabel/go-seqlabel/embeddings"
	"github.com/seqlabel/go-seqlabel/metrics"
	"github.com/seqlabel/go-seqlabel/models"
	"github.com/seqlabel/go-seqlabel/preprocess"
	"github.com/seqlabel/go-seqlabel/trainer"
)

// Tagger orchestrates one sequence labeling model. Its vocabulary state
// changes only in Fit and its model reference only in Fit and Load; it is
// not safe for concurrent use.
type Tagger struct {
	cfg    models.Config
	vt     *preprocess.VectorTransformer
	net    *models.Network
	report *metrics.Report
	runID  string
}

type options struct {
	cfg          models.Config
	lower        bool
	initialVocab []string
}

// Option adjusts the configuration of a new Tagger.
type Option func(*options)

// WithCharEmbeddingDim sets the trainable character embedding width.
func WithCharEmbeddingDim(dim int) Option {
	return func(o *options) { o.cfg.CharEmbeddingDim = dim }
}

// WithWordUnits sets the hidden size of the word-level encoder.
func WithWordUnits(units int) Option {
	return func(o *options) { o.cfg.WordUnits = units }
}

// WithCharUnits sets the hidden size of the character-level encoder.
func WithCharUnits(units int) Option {
	return func(o *options) { o.cfg.CharUnits = units }
}

// WithFCDim sets the width of the fully connected layer before the
// output projection.
func WithFCDim(dim int) Option {
	return func(o *options) { o.cfg.FCDim = dim }
}

// WithDropout sets the dropout rate applied to token features during
// training.
func WithDropout(rate float64) Option {
	return func(o *options) { o.cfg.Dropout = rate }
}

// WithChar toggles character features.
func WithChar(enabled bool) Option {
	return func(o *options) { o.cfg.UseChar = enabled }
}

// WithCRF selects the CRF output layer over the per-token softmax.
func WithCRF(enabled bool) Option {
	return func(o *options) { o.cfg.UseCRF = enabled }
}

// WithEncoder selects the recurrent cell type.
func WithEncoder(encoder models.Encoder) Option {
	return func(o *options) { o.cfg.Encoder = encoder }
}

// WithOptimizer selects the optimizer by id, models.OptimizerAdam or
// models.OptimizerSGD.
func WithOptimizer(name string) Option {
	return func(o *options) { o.cfg.Optimizer = name }
}

// WithLearningRate sets the optimizer learning rate.
func WithLearningRate(lr float64) Option {
	return func(o *options) { o.cfg.LearningRate = lr }
}

// WithSeed fixes weight initialization, dropout, and shuffle randomness.
func WithSeed(seed int64) Option {
	return func(o *options) { o.cfg.Seed = seed }
}

// WithLower folds tokens to lower case before embedding lookup.
func WithLower(enabled bool) Option {
	return func(o *options) { o.lower = enabled }
}

// WithInitialVocab seeds the character vocabulary with the runes of the
// given words before any training data is seen.
func WithInitialVocab(words []string) Option {
	return func(o *options) { o.initialVocab = words }
}

// New creates an untrained Tagger bound to an embedding table. Nothing is
// validated or built until Fit.
func New(table *embeddings.Table, opts ...Option) *Tagger {
	o := options{cfg: models.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	vtOpts := []preprocess.Option{
		preprocess.WithChar(o.cfg.UseChar),
		preprocess.WithLower(o.lower),
	}
	if len(o.initialVocab) > 0 {
		vtOpts = append(vtOpts, preprocess.WithInitialVocab(o.initialVocab))
	}

	cfg := o.cfg
	cfg.EmbeddingDim = table.Dim()
	return &Tagger{
		cfg: cfg,
		vt:  preprocess.NewVectorTransformer(table, vtOpts...),
	}
}

// FitOptions control one Fit call. The zero value trains one epoch with
// batches of 32 and no shuffling; DefaultFitOptions matches the
// historical defaults instead.
type FitOptions struct {
	// XValid and YValid hold validation pairs. Leaving both empty
	// disables validation scoring and best-snapshot selection.
	XValid [][]string
	YValid [][]string

	Epochs    int
	BatchSize int
	Verbose   int
	Shuffle   bool
	Callbacks []trainer.Callback
	// Seed fixes the shuffle order. Zero seeds from the clock.
	Seed int64
}

// DefaultFitOptions returns the standard training setup: one epoch,
// batches of 32, shuffled, with progress output.
func DefaultFitOptions() FitOptions {
	return FitOptions{Epochs: 1, BatchSize: 32, Verbose: 1, Shuffle: true}
}

// validatePairs rejects malformed training and validation input before
// any collaborator runs.
func validatePairs(xTrain, yTrain, xValid, yValid [][]string) error {
	if len(xTrain) == 0 {
		return errors.Wrap(ErrShapeMismatch, "empty training set")
	}
	if len(xTrain) != len(yTrain) {
		return errors.Wrapf(ErrShapeMismatch, "%d training sentences, %d tag rows", len(xTrain), len(yTrain))
	}
	for i := range xTrain {
		if len(xTrain[i]) != len(yTrain[i]) {
			return errors.Wrapf(ErrShapeMismatch, "training sentence %d has %d tokens, %d tags",
				i, len(xTrain[i]), len(yTrain[i]))
		}
	}
	if (len(xValid) == 0) != (len(yValid) == 0) {
		return errors.Wrap(ErrShapeMismatch, "validation sentences and tags must be given together")
	}
	if len(xValid) != len(yValid) {
		return errors.Wrapf(ErrShapeMismatch, "%d validation sentences, %d tag rows", len(xValid), len(yValid))
	}
	for i := range xValid {
		if len(xValid[i]) != len(yValid[i]) {
			return errors.Wrapf(ErrShapeMismatch, "validation sentence %d has %d tokens, %d tags",
				i, len(xValid[i]), len(yValid[i]))
		}
	}
	return nil
}

// Fit derives the vocabularies from the training pairs, builds the
// network, and trains it. With validation pairs the best-scoring epoch
// snapshot becomes the live model and its report is retained; without
// validation the final network is adopted and no report is kept. A
// failed Fit leaves the Tagger partially updated; discard it and start
// over.
func (t *Tagger) Fit(xTrain, yTrain [][]string, opts FitOptions) error {
	if err := validatePairs(xTrain, yTrain, opts.XValid, opts.YValid); err != nil {
		return err
	}

	if err := t.vt.Fit(xTrain, yTrain); err != nil {
		return err
	}

	cfg := t.cfg
	cfg.NumLabels = t.vt.LabelSize()
	cfg.NumChars = t.vt.CharSize()
	cfg.EmbeddingDim = t.vt.VectorLen()

	net, _, err := models.Build(cfg)
	if err != nil {
		return err
	}
	optimizer, err := models.NewOptimizer(cfg)
	if err != nil {
		return err
	}
	t.cfg = cfg

	tr := trainer.New(net, optimizer, t.vt, trainer.Options{
		Epochs:    opts.Epochs,
		BatchSize: opts.BatchSize,
		Verbose:   opts.Verbose,
		Shuffle:   opts.Shuffle,
		Callbacks: opts.Callbacks,
		Seed:      opts.Seed,
	})
	if err := tr.Train(xTrain, yTrain, opts.XValid, opts.YValid); err != nil {
		return err
	}
	t.runID = tr.RunID()

	if len(opts.XValid) > 0 {
		t.net = tr.BestNetwork()
		t.report = tr.BestReport()
		klog.V(1).Infof("Best model report:\n%s", t.report)
	} else {
		t.net = net
		t.report = nil
	}
	return nil
}

// Score computes entity span micro F1 on the test pairs. Predictions are
// aligned to the length of each gold tag row before scoring.
func (t *Tagger) Score(xTest, yTest [][]string) (float64, error) {
	if t.net == nil {
		return 0, errors.Wrap(ErrModelNotLoaded, "cannot score")
	}
	if len(xTest) != len(yTest) {
		return 0, errors.Wrapf(ErrShapeMismatch, "%d test sentences, %d tag rows", len(xTest), len(yTest))
	}

	batch, err := t.vt.Transform(xTest)
	if err != nil {
		return 0, err
	}
	ids, err := t.net.Predict(batch)
	if err != nil {
		return 0, err
	}

	lengths := make([]int, len(yTest))
	for i, row := range yTest {
		lengths[i] = len(row)
	}
	return metrics.F1(yTest, t.vt.InverseTransform(ids, lengths)), nil
}

// PredictSentence tags one sentence. The result is tag-for-token aligned
// with the input and deterministic for a fixed model state.
func (t *Tagger) PredictSentence(sentence []string) ([]string, error) {
	if t.net == nil {
		return nil, errors.Wrap(ErrModelNotLoaded, "cannot predict")
	}
	batch, err := t.vt.Transform([][]string{sentence})
	if err != nil {
		return nil, err
	}
	ids, err := t.net.Predict(batch)
	if err != nil {
		return nil, err
	}
	return t.vt.InverseTransform(ids, []int{len(sentence)})[0], nil
}

// PredictToIOB reads an IOB corpus, tags every sentence, and writes the
// result to outputPath with predicted tags in place of the gold ones.
// Gold tags in the input are ignored; auxiliary columns and ordering are
// preserved exactly.
func (t *Tagger) PredictToIOB(inputPath, outputPath string) error {
	if t.net == nil {
		return errors.Wrap(ErrModelNotLoaded, "cannot predict")
	}
	sentences, _, aux, err := corpus.LoadData(inputPath)
	if err != nil {
		return err
	}

	predicted := make([][]string, len(sentences))
	for i, sentence := range sentences {
		tags, err := t.PredictSentence(sentence)
		if err != nil {
			return errors.Wrapf(err, "sentence %d", i)
		}
		predicted[i] = tags
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", outputPath)
	}
	if err := corpus.WriteIOB(out, sentences, aux, predicted); err != nil {
		out.Close()
		return err
	}
	return errors.Wrapf(out.Close(), "failed to close %s", outputPath)
}

// HasModel reports whether a model has been adopted through Fit or Load.
func (t *Tagger) HasModel() bool { return t.net != nil }

// BestReport returns the classification report of the best validation
// epoch of the last Fit. It is nil when Fit ran without validation or
// the Tagger came from Load.
func (t *Tagger) BestReport() *metrics.Report { return t.report }

// Config returns the current model configuration.
func (t *Tagger) Config() models.Config { return t.cfg }
