package models

import "math"

// matVecAcc accumulates y += W*x for a flat row-major [len(y)][len(x)]
// matrix.
func matVecAcc(y, w, x []float64) {
	cols := len(x)
	for i := range y {
		row := w[i*cols : (i+1)*cols]
		sum := 0.0
		for j, xv := range x {
			sum += row[j] * xv
		}
		y[i] += sum
	}
}

// matVecTAcc accumulates dx += W^T*dy for the same layout as matVecAcc.
func matVecTAcc(dx, w, dy []float64) {
	cols := len(dx)
	for i, dyv := range dy {
		if dyv == 0 {
			continue
		}
		row := w[i*cols : (i+1)*cols]
		for j := range dx {
			dx[j] += row[j] * dyv
		}
	}
}

// outerAcc accumulates dW += dy ⊗ x.
func outerAcc(dw, dy, x []float64) {
	cols := len(x)
	for i, dyv := range dy {
		if dyv == 0 {
			continue
		}
		row := dw[i*cols : (i+1)*cols]
		for j, xv := range x {
			row[j] += dyv * xv
		}
	}
}

// addAcc accumulates y += x.
func addAcc(y, x []float64) {
	for i, xv := range x {
		y[i] += xv
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// logSumExp computes log(sum(exp(xs))) stably.
func logSumExp(xs []float64) float64 {
	max := math.Inf(-1)
	for _, x := range xs {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	sum := 0.0
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}

// argmax returns the index of the largest element, preferring the earliest
// on ties.
func argmax(xs []float64) int {
	best := 0
	for i := 1; i < len(xs); i++ {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}
