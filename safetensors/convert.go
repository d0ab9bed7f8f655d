package safetensors

import (
	"unsafe"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// dtypeNames maps safetensors dtype names to GoMLX dtype names.
// Safetensors uses naming like "I64", "F32", while GoMLX uses "Int64", "Float32".
var dtypeNames = map[string]string{
	"I8":   "Int8",
	"I16":  "Int16",
	"I32":  "Int32",
	"I64":  "Int64",
	"U8":   "Uint8",
	"U16":  "Uint16",
	"U32":  "Uint32",
	"U64":  "Uint64",
	"F16":  "Float16",
	"F32":  "Float32",
	"F64":  "Float64",
	"BF16": "BFloat16",
	"BOOL": "Bool",
}

// dtypeToGoMLX resolves a safetensors dtype name to a GoMLX dtype.
func dtypeToGoMLX(stDtype string) (dtypes.DType, error) {
	if gomlxName, found := dtypeNames[stDtype]; found {
		if dtype, found := dtypes.MapOfNames[gomlxName]; found {
			return dtype, nil
		}
	}
	// Fallback: look up the name directly, for any aliases GoMLX accepts.
	if dtype, found := dtypes.MapOfNames[stDtype]; found {
		return dtype, nil
	}
	return dtypes.InvalidDType, errors.Errorf("unsupported safetensors dtype: %s", stDtype)
}

// dtypeSize returns the size in bytes of a single element of the given
// safetensors dtype.
func dtypeSize(dtype string) (int, error) {
	switch dtype {
	case "F64", "I64", "U64":
		return 8, nil
	case "F32", "I32", "U32":
		return 4, nil
	case "F16", "BF16", "I16", "U16":
		return 2, nil
	case "I8", "U8", "BOOL":
		return 1, nil
	default:
		return 0, errors.Errorf("unknown dtype: %s", dtype)
	}
}

// Float64Values extracts the flat contents of a Float64 or Float32 tensor as
// a freshly allocated []float64. Other dtypes are rejected.
func Float64Values(t *tensors.Tensor) ([]float64, error) {
	out := make([]float64, t.Shape().Size())
	var convErr error
	t.MutableBytes(func(data []byte) {
		switch t.DType() {
		case dtypes.Float64:
			copy(out, bytesToFloat64(data))
		case dtypes.Float32:
			for i, v := range bytesToFloat32(data) {
				out[i] = float64(v)
			}
		default:
			convErr = errors.Errorf("cannot read %v tensor as float64", t.DType())
		}
	})
	if convErr != nil {
		return nil, convErr
	}
	return out, nil
}

// bytesToFloat64 reinterprets a byte slice as a float64 slice.
// The byte slice length must be a multiple of 8.
func bytesToFloat64(b []byte) []float64 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), len(b)/8)
}

// bytesToFloat32 reinterprets a byte slice as a float32 slice.
// The byte slice length must be a multiple of 4.
func bytesToFloat32(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}
