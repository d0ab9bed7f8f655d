package trainer

import "time"

// Epoch summarizes one completed training epoch.
type Epoch struct {
	// Index counts epochs from zero.
	Index int
	// Loss is the mean per-sentence training loss over the epoch.
	Loss float64
	// F1 is the span micro F1 on the validation set. It is only
	// meaningful when HasF1 is set.
	F1    float64
	HasF1 bool
	// Duration covers the epoch including validation scoring.
	Duration time.Duration
}

// Callback observes training progress. Callbacks run synchronously on the
// training goroutine after each epoch.
type Callback interface {
	OnEpochEnd(e Epoch)
}

// CallbackFunc adapts a plain function to the Callback interface.
type CallbackFunc func(e Epoch)

func (f CallbackFunc) OnEpochEnd(e Epoch) { f(e) }
