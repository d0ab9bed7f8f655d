package models

import "math"

// cell is a recurrent cell applied over a full sequence.
type cell interface {
	units() int
	// run consumes xs in order and returns the hidden states plus the
	// tape needed for backprop.
	run(xs [][]float64) *cellRun
	// backprop consumes per-position hidden state gradients, accumulates
	// parameter gradients, and returns per-position input gradients.
	backprop(run *cellRun, dhs [][]float64) [][]float64
}

// cellRun records the forward pass of a cell over one sequence.
type cellRun struct {
	xs    [][]float64
	hs    [][]float64
	gates [][][]float64 // per position, cell-specific activations
	cells [][]float64   // LSTM cell states, nil for GRU
}

func newCell(vs *varSet, prefix string, encoder Encoder, inDim, units int) cell {
	switch encoder {
	case EncoderLSTM:
		return newLSTMCell(vs, prefix, inDim, units)
	default:
		return newGRUCell(vs, prefix, inDim, units)
	}
}

// gruCell implements the standard GRU update
//
//	z = sigmoid(Wz x + Uz h + bz)
//	r = sigmoid(Wr x + Ur h + br)
//	c = tanh(Wh x + Uh (r*h) + bh)
//	h' = z*h + (1-z)*c
type gruCell struct {
	inDim, n   int
	wz, uz, bz *Variable
	wr, ur, br *Variable
	wh, uh, bh *Variable
}

func newGRUCell(vs *varSet, prefix string, inDim, units int) *gruCell {
	return &gruCell{
		inDim: inDim,
		n:     units,
		wz:    vs.glorot(prefix+".wz", units, inDim),
		uz:    vs.glorot(prefix+".uz", units, units),
		bz:    vs.zeros(prefix+".bz", units),
		wr:    vs.glorot(prefix+".wr", units, inDim),
		ur:    vs.glorot(prefix+".ur", units, units),
		br:    vs.zeros(prefix+".br", units),
		wh:    vs.glorot(prefix+".wh", units, inDim),
		uh:    vs.glorot(prefix+".uh", units, units),
		bh:    vs.zeros(prefix+".bh", units),
	}
}

func (g *gruCell) units() int { return g.n }

func (g *gruCell) run(xs [][]float64) *cellRun {
	run := &cellRun{
		xs:    xs,
		hs:    make([][]float64, len(xs)),
		gates: make([][][]float64, len(xs)),
	}
	hPrev := make([]float64, g.n)
	for t, x := range xs {
		z := make([]float64, g.n)
		r := make([]float64, g.n)
		c := make([]float64, g.n)
		rh := make([]float64, g.n)
		h := make([]float64, g.n)

		copy(z, g.bz.Data)
		matVecAcc(z, g.wz.Data, x)
		matVecAcc(z, g.uz.Data, hPrev)
		copy(r, g.br.Data)
		matVecAcc(r, g.wr.Data, x)
		matVecAcc(r, g.ur.Data, hPrev)
		for i := range z {
			z[i] = sigmoid(z[i])
			r[i] = sigmoid(r[i])
			rh[i] = r[i] * hPrev[i]
		}
		copy(c, g.bh.Data)
		matVecAcc(c, g.wh.Data, x)
		matVecAcc(c, g.uh.Data, rh)
		for i := range c {
			c[i] = math.Tanh(c[i])
			h[i] = z[i]*hPrev[i] + (1-z[i])*c[i]
		}

		run.hs[t] = h
		run.gates[t] = [][]float64{z, r, c, rh}
		hPrev = h
	}
	return run
}

func (g *gruCell) backprop(run *cellRun, dhs [][]float64) [][]float64 {
	T := len(run.xs)
	dxs := make([][]float64, T)
	dhCarry := make([]float64, g.n)
	zeroState := make([]float64, g.n)

	for t := T - 1; t >= 0; t-- {
		x := run.xs[t]
		z, r, c, rh := run.gates[t][0], run.gates[t][1], run.gates[t][2], run.gates[t][3]
		hPrev := zeroState
		if t > 0 {
			hPrev = run.hs[t-1]
		}

		dh := make([]float64, g.n)
		copy(dh, dhCarry)
		addAcc(dh, dhs[t])

		daz := make([]float64, g.n)
		dac := make([]float64, g.n)
		dhPrev := make([]float64, g.n)
		for i := range dh {
			dz := dh[i] * (hPrev[i] - c[i])
			daz[i] = dz * z[i] * (1 - z[i])
			dac[i] = dh[i] * (1 - z[i]) * (1 - c[i]*c[i])
			dhPrev[i] = dh[i] * z[i]
		}

		dx := make([]float64, g.inDim)

		// Candidate path.
		outerAcc(g.wh.Grad, dac, x)
		outerAcc(g.uh.Grad, dac, rh)
		addAcc(g.bh.Grad, dac)
		matVecTAcc(dx, g.wh.Data, dac)
		drh := make([]float64, g.n)
		matVecTAcc(drh, g.uh.Data, dac)

		dar := make([]float64, g.n)
		for i := range drh {
			dhPrev[i] += drh[i] * r[i]
			dar[i] = drh[i] * hPrev[i] * r[i] * (1 - r[i])
		}

		// Reset gate path.
		outerAcc(g.wr.Grad, dar, x)
		outerAcc(g.ur.Grad, dar, hPrev)
		addAcc(g.br.Grad, dar)
		matVecTAcc(dx, g.wr.Data, dar)
		matVecTAcc(dhPrev, g.ur.Data, dar)

		// Update gate path.
		outerAcc(g.wz.Grad, daz, x)
		outerAcc(g.uz.Grad, daz, hPrev)
		addAcc(g.bz.Grad, daz)
		matVecTAcc(dx, g.wz.Data, daz)
		matVecTAcc(dhPrev, g.uz.Data, daz)

		dxs[t] = dx
		dhCarry = dhPrev
	}
	return dxs
}

// lstmCell implements the standard LSTM update with a forget bias of one.
type lstmCell struct {
	inDim, n   int
	wi, ui, bi *Variable
	wf, uf, bf *Variable
	wo, uo, bo *Variable
	wg, ug, bg *Variable
}

func newLSTMCell(vs *varSet, prefix string, inDim, units int) *lstmCell {
	return &lstmCell{
		inDim: inDim,
		n:     units,
		wi:    vs.glorot(prefix+".wi", units, inDim),
		ui:    vs.glorot(prefix+".ui", units, units),
		bi:    vs.zeros(prefix+".bi", units),
		wf:    vs.glorot(prefix+".wf", units, inDim),
		uf:    vs.glorot(prefix+".uf", units, units),
		bf:    vs.constant(prefix+".bf", 1, units),
		wo:    vs.glorot(prefix+".wo", units, inDim),
		uo:    vs.glorot(prefix+".uo", units, units),
		bo:    vs.zeros(prefix+".bo", units),
		wg:    vs.glorot(prefix+".wg", units, inDim),
		ug:    vs.glorot(prefix+".ug", units, units),
		bg:    vs.zeros(prefix+".bg", units),
	}
}

func (l *lstmCell) units() int { return l.n }

func (l *lstmCell) run(xs [][]float64) *cellRun {
	run := &cellRun{
		xs:    xs,
		hs:    make([][]float64, len(xs)),
		gates: make([][][]float64, len(xs)),
		cells: make([][]float64, len(xs)),
	}
	hPrev := make([]float64, l.n)
	cPrev := make([]float64, l.n)
	for t, x := range xs {
		i := make([]float64, l.n)
		f := make([]float64, l.n)
		o := make([]float64, l.n)
		g := make([]float64, l.n)
		c := make([]float64, l.n)
		h := make([]float64, l.n)

		copy(i, l.bi.Data)
		matVecAcc(i, l.wi.Data, x)
		matVecAcc(i, l.ui.Data, hPrev)
		copy(f, l.bf.Data)
		matVecAcc(f, l.wf.Data, x)
		matVecAcc(f, l.uf.Data, hPrev)
		copy(o, l.bo.Data)
		matVecAcc(o, l.wo.Data, x)
		matVecAcc(o, l.uo.Data, hPrev)
		copy(g, l.bg.Data)
		matVecAcc(g, l.wg.Data, x)
		matVecAcc(g, l.ug.Data, hPrev)

		for k := range i {
			i[k] = sigmoid(i[k])
			f[k] = sigmoid(f[k])
			o[k] = sigmoid(o[k])
			g[k] = math.Tanh(g[k])
			c[k] = f[k]*cPrev[k] + i[k]*g[k]
			h[k] = o[k] * math.Tanh(c[k])
		}

		run.hs[t] = h
		run.cells[t] = c
		run.gates[t] = [][]float64{i, f, o, g}
		hPrev, cPrev = h, c
	}
	return run
}

func (l *lstmCell) backprop(run *cellRun, dhs [][]float64) [][]float64 {
	T := len(run.xs)
	dxs := make([][]float64, T)
	dhCarry := make([]float64, l.n)
	dcCarry := make([]float64, l.n)
	zeroState := make([]float64, l.n)

	for t := T - 1; t >= 0; t-- {
		x := run.xs[t]
		i, f, o, g := run.gates[t][0], run.gates[t][1], run.gates[t][2], run.gates[t][3]
		c := run.cells[t]
		hPrev, cPrev := zeroState, zeroState
		if t > 0 {
			hPrev = run.hs[t-1]
			cPrev = run.cells[t-1]
		}

		dh := make([]float64, l.n)
		copy(dh, dhCarry)
		addAcc(dh, dhs[t])

		dai := make([]float64, l.n)
		daf := make([]float64, l.n)
		dao := make([]float64, l.n)
		dag := make([]float64, l.n)
		dcPrev := make([]float64, l.n)
		for k := range dh {
			tc := math.Tanh(c[k])
			dao[k] = dh[k] * tc * o[k] * (1 - o[k])
			dc := dcCarry[k] + dh[k]*o[k]*(1-tc*tc)
			dai[k] = dc * g[k] * i[k] * (1 - i[k])
			daf[k] = dc * cPrev[k] * f[k] * (1 - f[k])
			dag[k] = dc * i[k] * (1 - g[k]*g[k])
			dcPrev[k] = dc * f[k]
		}

		dx := make([]float64, l.inDim)
		dhPrev := make([]float64, l.n)
		for _, gate := range []struct {
			w, u, b *Variable
			da      []float64
		}{
			{l.wi, l.ui, l.bi, dai},
			{l.wf, l.uf, l.bf, daf},
			{l.wo, l.uo, l.bo, dao},
			{l.wg, l.ug, l.bg, dag},
		} {
			outerAcc(gate.w.Grad, gate.da, x)
			outerAcc(gate.u.Grad, gate.da, hPrev)
			addAcc(gate.b.Grad, gate.da)
			matVecTAcc(dx, gate.w.Data, gate.da)
			matVecTAcc(dhPrev, gate.u.Data, gate.da)
		}

		dxs[t] = dx
		dhCarry = dhPrev
		dcCarry = dcPrev
	}
	return dxs
}

// biRNN runs one cell forward and one over the reversed sequence, and
// concatenates their states per position.
type biRNN struct {
	fwd, bwd cell
}

func newBiRNN(vs *varSet, prefix string, encoder Encoder, inDim, units int) *biRNN {
	return &biRNN{
		fwd: newCell(vs, prefix+".fwd", encoder, inDim, units),
		bwd: newCell(vs, prefix+".bwd", encoder, inDim, units),
	}
}

// outDim returns the width of the concatenated per-position output.
func (b *biRNN) outDim() int { return b.fwd.units() + b.bwd.units() }

// biRun records one bidirectional pass.
type biRun struct {
	fwdRun, bwdRun *cellRun
	out            [][]float64 // [t] = fwd state at t ++ bwd state at t
}

func (b *biRNN) run(xs [][]float64) *biRun {
	T := len(xs)
	rev := make([][]float64, T)
	for t := range xs {
		rev[t] = xs[T-1-t]
	}

	fwdRun := b.fwd.run(xs)
	bwdRun := b.bwd.run(rev)

	u := b.fwd.units()
	out := make([][]float64, T)
	for t := 0; t < T; t++ {
		o := make([]float64, b.outDim())
		copy(o[:u], fwdRun.hs[t])
		copy(o[u:], bwdRun.hs[T-1-t])
		out[t] = o
	}
	return &biRun{fwdRun: fwdRun, bwdRun: bwdRun, out: out}
}

func (b *biRNN) backprop(run *biRun, douts [][]float64) [][]float64 {
	T := len(douts)
	u := b.fwd.units()

	dfwd := make([][]float64, T)
	dbwd := make([][]float64, T)
	for t := 0; t < T; t++ {
		dfwd[t] = douts[t][:u]
		dbwd[T-1-t] = douts[t][u:]
	}

	dxFwd := b.fwd.backprop(run.fwdRun, dfwd)
	dxBwd := b.bwd.backprop(run.bwdRun, dbwd)

	dxs := make([][]float64, T)
	for t := 0; t < T; t++ {
		dx := dxFwd[t]
		addAcc(dx, dxBwd[T-1-t])
		dxs[t] = dx
	}
	return dxs
}
