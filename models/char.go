package models

// charEncoder turns a token's character ids into a fixed-width feature:
// the concatenated final states of a bidirectional recurrent pass over the
// trainable character embeddings.
type charEncoder struct {
	emb   *Variable // [numChars][dim]
	rnn   *biRNN
	dim   int
	units int
}

func newCharEncoder(vs *varSet, encoder Encoder, numChars, embDim, units int) *charEncoder {
	return &charEncoder{
		emb:   vs.uniform("char.embeddings", 0.05, numChars, embDim),
		rnn:   newBiRNN(vs, "char.rnn", encoder, embDim, units),
		dim:   embDim,
		units: units,
	}
}

// featureDim returns the width of the produced feature vector.
func (ce *charEncoder) featureDim() int { return 2 * ce.units }

// charRun records one token's forward pass.
type charRun struct {
	ids []int
	run *biRun
}

// encode computes the feature for one token. A token with no characters
// yields a zero feature and a nil run.
func (ce *charEncoder) encode(ids []int) ([]float64, *charRun) {
	feat := make([]float64, ce.featureDim())
	if len(ids) == 0 {
		return feat, nil
	}

	xs := make([][]float64, len(ids))
	for t, id := range ids {
		xs[t] = ce.emb.Data[id*ce.dim : (id+1)*ce.dim]
	}
	run := ce.rnn.run(xs)

	T := len(ids)
	u := ce.units
	copy(feat[:u], run.out[T-1][:u]) // forward final state
	copy(feat[u:], run.out[0][u:])   // backward final state
	return feat, &charRun{ids: ids, run: run}
}

// backprop pushes a feature gradient down to the character embeddings.
func (ce *charEncoder) backprop(run *charRun, dfeat []float64) {
	if run == nil {
		return
	}
	T := len(run.ids)
	u := ce.units

	douts := make([][]float64, T)
	for t := range douts {
		douts[t] = make([]float64, 2*u)
	}
	copy(douts[T-1][:u], dfeat[:u])
	copy(douts[0][u:], dfeat[u:])

	dxs := ce.rnn.backprop(run.run, douts)
	for t, id := range run.ids {
		addAcc(ce.emb.Grad[id*ce.dim:(id+1)*ce.dim], dxs[t])
	}
}
