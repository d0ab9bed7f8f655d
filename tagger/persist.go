package tagger

import (
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/seqlabel/go-seqlabel/embeddings"
	"github.com/seqlabel/go-seqlabel/models"
	"github.com/seqlabel/go-seqlabel/preprocess"
)

// Bundle file names, fixed so Load can locate them without a manifest.
const (
	WeightsFile      = "weights.safetensors"
	ParamsFile       = "params.json"
	PreprocessorFile = "preprocessor.json"
)

// withBundleLock runs fn while holding a file lock on the bundle's
// sibling <dir>.lock, so two processes cannot interleave a half-written
// bundle with a load. The lock file itself is left in place.
func withBundleLock(dir string, fn func() error) (err error) {
	lockPath := strings.TrimSuffix(dir, string(os.PathSeparator)) + ".lock"
	fileLock := flock.New(lockPath)
	for {
		locked, lockErr := fileLock.TryLock()
		if lockErr != nil {
			return errors.Wrapf(lockErr, "failed to lock %s", lockPath)
		}
		if locked {
			break
		}
		time.Sleep(time.Duration(100+rand.Intn(150)) * time.Millisecond)
	}
	defer func() {
		if unlockErr := fileLock.Unlock(); unlockErr != nil {
			if err == nil {
				err = errors.Wrapf(unlockErr, "failed to unlock %s", lockPath)
			} else {
				klog.Errorf("Failed to unlock %s: %v", lockPath, unlockErr)
			}
		}
	}()
	return fn()
}

// Save writes the three bundle files under dir, creating the directory
// as needed. Requires an adopted model.
func (t *Tagger) Save(dir string) error {
	if t.net == nil {
		return errors.Wrap(ErrModelNotLoaded, "cannot save")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create bundle directory %s", dir)
	}
	return withBundleLock(dir, func() error {
		if err := t.vt.Save(filepath.Join(dir, PreprocessorFile)); err != nil {
			return err
		}
		metadata := map[string]string{"labels": strconv.Itoa(t.vt.LabelSize())}
		if t.runID != "" {
			metadata["run_id"] = t.runID
		}
		if err := models.SaveModel(t.net, filepath.Join(dir, WeightsFile), filepath.Join(dir, ParamsFile), metadata); err != nil {
			return err
		}
		klog.V(1).Infof("Saved model bundle to %s", dir)
		return nil
	})
}

// Load reconstructs a Tagger from a bundle directory and the embedding
// table that was in use when the bundle was saved. The table is checked
// against the fingerprint stored in the preprocessor state; an
// incompatible table fails with ErrBundleMismatch instead of silently
// predicting nonsense.
func Load(dir string, table *embeddings.Table) (*Tagger, error) {
	var tagger *Tagger
	err := withBundleLock(dir, func() error {
		var missing []string
		for _, name := range []string{WeightsFile, ParamsFile, PreprocessorFile} {
			if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return errors.Wrapf(ErrBundleIncomplete, "%s is missing %s", dir, strings.Join(missing, ", "))
		}

		vt, err := preprocess.LoadVectorTransformer(filepath.Join(dir, PreprocessorFile), table)
		if err != nil {
			var fpErr *preprocess.FingerprintError
			if errors.As(err, &fpErr) {
				return errors.Wrapf(ErrBundleMismatch, "%v", fpErr)
			}
			return err
		}

		net, _, err := models.LoadModel(filepath.Join(dir, WeightsFile), filepath.Join(dir, ParamsFile))
		if err != nil {
			var mismatch *models.MismatchError
			if errors.As(err, &mismatch) {
				return errors.Wrapf(ErrBundleMismatch, "%v", mismatch)
			}
			return err
		}

		if net.Config().NumLabels != vt.LabelSize() {
			return errors.Wrapf(ErrBundleMismatch, "network expects %d labels, preprocessor has %d",
				net.Config().NumLabels, vt.LabelSize())
		}
		if net.Config().EmbeddingDim != table.Dim() {
			return errors.Wrapf(ErrBundleMismatch, "network expects %d-dimensional word vectors, table provides %d",
				net.Config().EmbeddingDim, table.Dim())
		}

		tagger = &Tagger{cfg: net.Config(), vt: vt, net: net}
		return nil
	})
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("Loaded model bundle from %s", dir)
	return tagger, nil
}
