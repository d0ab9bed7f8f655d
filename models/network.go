package models

import (
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/seqlabel/go-seqlabel/preprocess"
)

// dense is a fully connected layer, optionally with a tanh activation.
type dense struct {
	w, b *Variable
	tanh bool
}

func newDense(vs *varSet, prefix string, in, out int, tanh bool) *dense {
	return &dense{
		w:    vs.glorot(prefix+".weight", out, in),
		b:    vs.zeros(prefix+".bias", out),
		tanh: tanh,
	}
}

func (d *dense) forward(x []float64) []float64 {
	y := make([]float64, len(d.b.Data))
	copy(y, d.b.Data)
	matVecAcc(y, d.w.Data, x)
	if d.tanh {
		for i := range y {
			y[i] = math.Tanh(y[i])
		}
	}
	return y
}

// backward accumulates parameter gradients for dy and returns dx. y must
// be the forward output for x.
func (d *dense) backward(x, y, dy []float64) []float64 {
	da := dy
	if d.tanh {
		da = make([]float64, len(dy))
		for i := range dy {
			da[i] = dy[i] * (1 - y[i]*y[i])
		}
	}
	outerAcc(d.w.Grad, da, x)
	addAcc(d.b.Grad, da)
	dx := make([]float64, len(x))
	matVecTAcc(dx, d.w.Data, da)
	return dx
}

// Network is a built sequence labeling model. Parameter updates must not
// run concurrently with anything else; Predict alone is safe for
// concurrent callers.
type Network struct {
	cfg     Config
	vars    *varSet
	charEnc *charEncoder
	wordRNN *biRNN
	fc      *dense
	proj    *dense
	loss    Loss
	rng     *rand.Rand
}

// Build assembles a network and its loss from a validated configuration.
// The loss depends on the output layer: CRF networks train against the
// sequence negative log-likelihood, softmax networks against per-token
// cross-entropy.
func Build(cfg Config) (*Network, Loss, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid model configuration")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	vs := newVarSet(seed)
	net := &Network{
		cfg:  cfg,
		vars: vs,
		rng:  rand.New(rand.NewSource(seed + 1)),
	}

	if cfg.UseChar {
		net.charEnc = newCharEncoder(vs, cfg.Encoder, cfg.NumChars, cfg.CharEmbeddingDim, cfg.CharUnits)
	}
	net.wordRNN = newBiRNN(vs, "word.rnn", cfg.Encoder, cfg.featureDim(), cfg.WordUnits)
	net.fc = newDense(vs, "fc", 2*cfg.WordUnits, cfg.FCDim, true)
	net.proj = newDense(vs, "proj", cfg.FCDim, cfg.NumLabels, false)

	if cfg.UseCRF {
		net.loss = newCRFLayer(vs, cfg.NumLabels)
	} else {
		net.loss = &tokenCrossEntropy{numLabels: cfg.NumLabels}
	}
	return net, net.loss, nil
}

// Config returns the configuration the network was built from.
func (n *Network) Config() Config { return n.cfg }

// Loss returns the loss bound to the network's output layer.
func (n *Network) Loss() Loss { return n.loss }

// Variables returns the trainable parameters in their deterministic
// creation order.
func (n *Network) Variables() []*Variable { return n.vars.list }

// ZeroGrads clears all accumulated gradients.
func (n *Network) ZeroGrads() { n.vars.zeroGrads() }

// sentenceTape records one sentence's forward pass for backprop.
type sentenceTape struct {
	feats     [][]float64
	masks     [][]float64
	charRuns  []*charRun
	wordRun   *biRun
	fcOut     [][]float64
	emissions [][]float64
}

// forwardSentence runs the first length positions of one sentence through
// the network. With train set, inverted dropout is applied to the token
// features.
func (n *Network) forwardSentence(wordVecs [][]float64, charIDs [][]int, length int, train bool) *sentenceTape {
	T := length
	feats := make([][]float64, T)
	var charRuns []*charRun
	if n.charEnc != nil {
		charRuns = make([]*charRun, T)
	}
	var masks [][]float64
	if train && n.cfg.Dropout > 0 {
		masks = make([][]float64, T)
	}

	for t := 0; t < T; t++ {
		feat := make([]float64, n.cfg.featureDim())
		copy(feat[:n.cfg.EmbeddingDim], wordVecs[t])
		if n.charEnc != nil {
			charFeat, charRun := n.charEnc.encode(charIDs[t])
			copy(feat[n.cfg.EmbeddingDim:], charFeat)
			charRuns[t] = charRun
		}
		if masks != nil {
			keep := 1 - n.cfg.Dropout
			mask := make([]float64, len(feat))
			for i := range mask {
				if n.rng.Float64() < keep {
					mask[i] = 1 / keep
				}
			}
			for i := range feat {
				feat[i] *= mask[i]
			}
			masks[t] = mask
		}
		feats[t] = feat
	}

	wordRun := n.wordRNN.run(feats)
	fcOut := make([][]float64, T)
	emissions := make([][]float64, T)
	for t := 0; t < T; t++ {
		fcOut[t] = n.fc.forward(wordRun.out[t])
		emissions[t] = n.proj.forward(fcOut[t])
	}

	return &sentenceTape{
		feats:     feats,
		masks:     masks,
		charRuns:  charRuns,
		wordRun:   wordRun,
		fcOut:     fcOut,
		emissions: emissions,
	}
}

// backwardSentence pushes emission gradients through the network down to
// every trainable parameter.
func (n *Network) backwardSentence(tape *sentenceTape, demis [][]float64) {
	T := len(demis)
	drnnOut := make([][]float64, T)
	for t := 0; t < T; t++ {
		dfc := n.proj.backward(tape.fcOut[t], tape.emissions[t], demis[t])
		drnnOut[t] = n.fc.backward(tape.wordRun.out[t], tape.fcOut[t], dfc)
	}

	dfeats := n.wordRNN.backprop(tape.wordRun, drnnOut)
	for t := 0; t < T; t++ {
		df := dfeats[t]
		if tape.masks != nil {
			for i := range df {
				df[i] *= tape.masks[t][i]
			}
		}
		// The word vector slice of the feature is network input, not a
		// parameter; only the char slice carries gradient onward.
		if n.charEnc != nil {
			n.charEnc.backprop(tape.charRuns[t], df[n.cfg.EmbeddingDim:])
		}
	}
}

// TrainBatch computes the mean sentence loss of a batch and accumulates
// the gradients of that mean into the variables. The caller owns zeroing
// gradients and applying the optimizer step.
func (n *Network) TrainBatch(batch *preprocess.Batch, labels [][]int) (float64, error) {
	if batch.Size() != len(labels) {
		return 0, errors.Errorf("batch has %d sentences but %d label rows", batch.Size(), len(labels))
	}
	if n.charEnc != nil && batch.CharIDs == nil {
		return 0, errors.New("network uses character features but the batch has no character ids")
	}

	scale := 1.0 / float64(batch.Size())
	total := 0.0
	for s := 0; s < batch.Size(); s++ {
		T := batch.Lengths[s]
		if T == 0 {
			continue
		}
		if len(labels[s]) != T {
			return 0, errors.Errorf("sentence %d has length %d but %d labels", s, T, len(labels[s]))
		}

		var charIDs [][]int
		if batch.CharIDs != nil {
			charIDs = batch.CharIDs[s]
		}
		tape := n.forwardSentence(batch.WordVecs[s], charIDs, T, true)
		loss, demis, err := n.loss.LossAndGrad(tape.emissions, labels[s], scale)
		if err != nil {
			return 0, err
		}
		total += loss
		n.backwardSentence(tape, demis)
	}
	return total * scale, nil
}

// Predict decodes the best label sequence for every sentence in the
// batch, truncated to the true sentence lengths.
func (n *Network) Predict(batch *preprocess.Batch) ([][]int, error) {
	if n.charEnc != nil && batch.CharIDs == nil {
		return nil, errors.New("network uses character features but the batch has no character ids")
	}
	out := make([][]int, batch.Size())
	for s := 0; s < batch.Size(); s++ {
		T := batch.Lengths[s]
		if T == 0 {
			out[s] = []int{}
			continue
		}
		var charIDs [][]int
		if batch.CharIDs != nil {
			charIDs = batch.CharIDs[s]
		}
		tape := n.forwardSentence(batch.WordVecs[s], charIDs, T, false)
		out[s] = n.loss.Decode(tape.emissions)
	}
	return out, nil
}

// Clone builds an independent network with identical parameter values.
func (n *Network) Clone() (*Network, error) {
	clone, _, err := Build(n.cfg)
	if err != nil {
		return nil, err
	}
	if err := clone.vars.copyDataFrom(n.vars); err != nil {
		return nil, err
	}
	return clone, nil
}
