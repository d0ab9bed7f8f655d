package models

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/seqlabel/go-seqlabel/safetensors"
)

// FormatVersion stamps saved weight files, so an incompatible layout can
// be rejected with a clear message instead of a shape error.
const FormatVersion = "seqlabel.v1"

// MismatchError reports saved weights or parameters that cannot be mapped
// onto a freshly built network.
type MismatchError struct {
	Reason string
}

func (e *MismatchError) Error() string { return e.Reason }

func mismatchf(format string, args ...any) *MismatchError {
	return &MismatchError{Reason: fmt.Sprintf(format, args...)}
}

// SaveModel writes the network weights to weightsPath as a safetensors
// file and the hyperparameters to paramsPath as JSON. Extra metadata
// entries are merged into the weight file's __metadata__.
func SaveModel(n *Network, weightsPath, paramsPath string, metadata map[string]string) error {
	vars := n.Variables()
	entries := make([]safetensors.Entry, 0, len(vars))
	for _, v := range vars {
		entries = append(entries, safetensors.F64Entry(v.Name, v.Data, v.Shape...))
	}

	md := map[string]string{"format": FormatVersion}
	for k, v := range metadata {
		md[k] = v
	}
	if err := safetensors.Write(weightsPath, entries, md); err != nil {
		return errors.Wrapf(err, "failed to write weights %s", weightsPath)
	}

	cfgJSON, err := json.MarshalIndent(n.Config(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode model parameters")
	}
	if err := os.WriteFile(paramsPath, cfgJSON, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write parameters %s", paramsPath)
	}
	return nil
}

// LoadModel rebuilds a network from its parameter and weight files. The
// weight file must hold exactly the tensors of the rebuilt network, with
// matching shapes; anything else returns a *MismatchError.
func LoadModel(weightsPath, paramsPath string) (*Network, Loss, error) {
	paramsJSON, err := os.ReadFile(paramsPath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read parameters %s", paramsPath)
	}
	var cfg Config
	if err := json.Unmarshal(paramsJSON, &cfg); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to parse parameters %s", paramsPath)
	}

	net, loss, err := Build(cfg)
	if err != nil {
		return nil, nil, err
	}

	r, err := safetensors.Open(weightsPath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open weights %s", weightsPath)
	}
	defer r.Close()

	header := r.Header()
	if format := header.Metadata["format"]; format != "" && format != FormatVersion {
		return nil, nil, mismatchf("weights %s use format %q, expected %q", weightsPath, format, FormatVersion)
	}

	vars := net.Variables()
	if len(header.Tensors) != len(vars) {
		return nil, nil, mismatchf("weights %s hold %d tensors, the configured network has %d parameters",
			weightsPath, len(header.Tensors), len(vars))
	}
	for _, v := range vars {
		meta, ok := header.Tensors[v.Name]
		if !ok {
			return nil, nil, mismatchf("weights %s are missing tensor %s", weightsPath, v.Name)
		}
		if !equalShape(meta.Shape, v.Shape) {
			return nil, nil, mismatchf("tensor %s has shape %v, the configured network expects %v",
				v.Name, meta.Shape, v.Shape)
		}
		t, err := r.ReadTensor(v.Name)
		if err != nil {
			return nil, nil, err
		}
		values, err := safetensors.Float64Values(t)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "tensor %s", v.Name)
		}
		copy(v.Data, values)
	}
	return net, loss, nil
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
