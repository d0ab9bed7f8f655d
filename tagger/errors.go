package tagger

import "github.com/pkg/errors"

// Sentinel errors returned by the Tagger. Failure sites wrap them with
// context; match with errors.Is.
var (
	// ErrShapeMismatch reports training or validation input whose
	// sentence and tag collections do not line up. It is returned before
	// any collaborator runs.
	ErrShapeMismatch = errors.New("sentences and tags do not align")

	// ErrModelNotLoaded guards inference, scoring, and saving before a
	// model has been adopted through Fit or Load.
	ErrModelNotLoaded = errors.New("no model loaded, call Fit or Load first")

	// ErrBundleIncomplete reports a bundle directory missing one or more
	// of its three fixed files.
	ErrBundleIncomplete = errors.New("model bundle incomplete")

	// ErrBundleMismatch reports a bundle whose parts cannot be reconciled
	// with each other or with the supplied embedding table.
	ErrBundleMismatch = errors.New("model bundle mismatch")
)
