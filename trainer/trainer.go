// Package trainer runs the minibatch training loop for sequence labeling
// networks: shuffling, forward/backward passes, optimizer steps, validation
// scoring, and snapshotting of the best-scoring parameters.
package trainer

import (
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/seqlabel/go-seqlabel/metrics"
	"github.com/seqlabel/go-seqlabel/models"
	"github.com/seqlabel/go-seqlabel/preprocess"
)

// Options configure one training run.
type Options struct {
	// Epochs is the number of passes over the training set. Values below
	// one fall back to one.
	Epochs int
	// BatchSize is the number of sentences per gradient step. Values
	// below one fall back to 32.
	BatchSize int
	// Verbose selects console output: 0 logs through klog verbosity
	// levels only, 1 adds a per-epoch summary, 2 adds per-batch lines.
	Verbose int
	// Shuffle permutes the training sentences before every epoch.
	Shuffle bool
	// Callbacks are invoked after every epoch, in order.
	Callbacks []Callback
	// Seed fixes the shuffle order. Zero seeds from the clock.
	Seed int64
}

// DefaultOptions returns the options used when callers pass the zero
// value for a field.
func DefaultOptions() Options {
	return Options{Epochs: 1, BatchSize: 32, Shuffle: true}
}

// Trainer drives gradient descent for one network. It is bound to the
// fitted transformer that produced the network's label and character
// vocabularies. Not safe for concurrent use.
type Trainer struct {
	net  *models.Network
	opt  models.Optimizer
	vt   *preprocess.VectorTransformer
	opts Options

	runID      string
	best       *models.Network
	bestReport *metrics.Report
	bestF1     float64
}

// New binds a trainer to a network, its optimizer, and the transformer
// used to encode batches.
func New(net *models.Network, opt models.Optimizer, vt *preprocess.VectorTransformer, opts Options) *Trainer {
	return &Trainer{net: net, opt: opt, vt: vt, opts: opts}
}

// RunID identifies the most recent Train call in log output. Empty
// before the first call.
func (t *Trainer) RunID() string { return t.runID }

// BestNetwork returns a snapshot of the parameters that scored the
// highest validation F1, or nil when Train ran without validation.
func (t *Trainer) BestNetwork() *models.Network { return t.best }

// BestReport returns the classification report of the best epoch, or nil
// when Train ran without validation.
func (t *Trainer) BestReport() *metrics.Report { return t.bestReport }

// betterF1 decides whether a new validation score replaces the current
// best. Improvement must be strict, so among tied epochs the earliest
// snapshot is kept.
func betterF1(f1, best float64, hasBest bool) bool {
	return !hasBest || f1 > best
}

// Train fits the network on the training pairs. When validation pairs are
// given, every epoch is scored on them and the best-scoring parameters
// are retained as a snapshot; the live network still ends up with the
// final epoch's parameters. Errors from the loss or optimizer abort the
// run and propagate unchanged.
func (t *Trainer) Train(xTrain, yTrain, xValid, yValid [][]string) error {
	if len(xTrain) == 0 {
		return errors.New("empty training set")
	}
	if len(xTrain) != len(yTrain) {
		return errors.Errorf("got %d training sentences but %d tag rows", len(xTrain), len(yTrain))
	}
	if len(xValid) != len(yValid) {
		return errors.Errorf("got %d validation sentences but %d tag rows", len(xValid), len(yValid))
	}

	epochs := t.opts.Epochs
	if epochs < 1 {
		epochs = 1
	}
	batchSize := t.opts.BatchSize
	if batchSize < 1 {
		batchSize = DefaultOptions().BatchSize
	}
	seed := t.opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	t.runID = uuid.NewString()
	t.best = nil
	t.bestReport = nil
	t.bestF1 = 0
	hasValid := len(xValid) > 0

	klog.V(1).Infof("Training run %s: %d sentences, %d epochs, batch size %d, validation=%t",
		t.runID, len(xTrain), epochs, batchSize, hasValid)

	indices := make([]int, len(xTrain))
	for i := range indices {
		indices[i] = i
	}

	for epoch := 0; epoch < epochs; epoch++ {
		start := time.Now()
		if t.opts.Shuffle {
			rng.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}

		epochLoss, err := t.runEpoch(epoch, indices, xTrain, yTrain, batchSize)
		if err != nil {
			return err
		}

		e := Epoch{Index: epoch, Loss: epochLoss}
		if hasValid {
			report, err := t.validate(xValid, yValid, batchSize)
			if err != nil {
				return err
			}
			e.F1 = report.Micro.F1
			e.HasF1 = true
			if betterF1(e.F1, t.bestF1, t.best != nil) {
				snapshot, err := t.net.Clone()
				if err != nil {
					return errors.Wrap(err, "failed to snapshot best network")
				}
				t.best = snapshot
				t.bestReport = report
				t.bestF1 = e.F1
			}
		}
		e.Duration = time.Since(start)

		t.logEpoch(e, epochs)
		for _, cb := range t.opts.Callbacks {
			cb.OnEpochEnd(e)
		}
	}

	klog.V(1).Infof("Training run %s finished, best f1=%.4f", t.runID, t.bestF1)
	return nil
}

// runEpoch runs one pass over the permuted training set and returns the
// mean per-sentence loss.
func (t *Trainer) runEpoch(epoch int, indices []int, xTrain, yTrain [][]string, batchSize int) (float64, error) {
	totalLoss := 0.0
	for lo := 0; lo < len(indices); lo += batchSize {
		hi := min(lo+batchSize, len(indices))
		bx := make([][]string, 0, hi-lo)
		by := make([][]string, 0, hi-lo)
		for _, idx := range indices[lo:hi] {
			bx = append(bx, xTrain[idx])
			by = append(by, yTrain[idx])
		}

		batch, err := t.vt.Transform(bx)
		if err != nil {
			return 0, err
		}
		labels, err := t.vt.TransformLabels(by)
		if err != nil {
			return 0, err
		}

		t.net.ZeroGrads()
		loss, err := t.net.TrainBatch(batch, labels)
		if err != nil {
			return 0, err
		}
		t.opt.Step(t.net.Variables())

		totalLoss += loss * float64(hi-lo)
		if t.opts.Verbose >= 2 {
			klog.Infof("Epoch %d batch %d-%d: loss=%.6f", epoch+1, lo, hi, loss)
		} else {
			klog.V(2).Infof("Epoch %d batch %d-%d: loss=%.6f", epoch+1, lo, hi, loss)
		}
	}
	return totalLoss / float64(len(indices)), nil
}

// validate decodes the validation set in bounded parallel batches and
// scores it. Prediction rows are written back by index, so the report
// pairs rows exactly as the caller supplied them.
func (t *Trainer) validate(xValid, yValid [][]string, batchSize int) (*metrics.Report, error) {
	preds := make([][]string, len(xValid))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < len(xValid); lo += batchSize {
		hi := min(lo+batchSize, len(xValid))
		g.Go(func() error {
			batch, err := t.vt.Transform(xValid[lo:hi])
			if err != nil {
				return err
			}
			ids, err := t.net.Predict(batch)
			if err != nil {
				return err
			}
			copy(preds[lo:hi], t.vt.InverseTransform(ids, batch.Lengths))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return metrics.Evaluate(yValid, preds)
}

func (t *Trainer) logEpoch(e Epoch, epochs int) {
	line := fmt.Sprintf("Epoch %d/%d: loss=%.4f", e.Index+1, epochs, e.Loss)
	if e.HasF1 {
		line += fmt.Sprintf(" f1=%.4f", e.F1)
	}
	line += fmt.Sprintf(" (%s)", e.Duration.Round(time.Millisecond))
	if t.opts.Verbose >= 1 {
		klog.Info(line)
	} else {
		klog.V(1).Info(line)
	}
}
