package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// Entry is one tensor staged for writing. Data holds the little-endian
// payload and must be exactly NumElements * element size bytes long.
type Entry struct {
	Name  string
	Dtype string // safetensors dtype name: F32, F64, I32, I64, etc.
	Shape []int
	Data  []byte
}

// F64Entry stages a float64 tensor for writing.
func F64Entry(name string, data []float64, shape ...int) Entry {
	buf := make([]byte, len(data)*8)
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[i*8:(i+1)*8], math.Float64bits(v))
	}
	return Entry{Name: name, Dtype: "F64", Shape: shape, Data: buf}
}

// F32Entry stages a float32 tensor for writing.
func F32Entry(name string, data []float32, shape ...int) Entry {
	buf := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(v))
	}
	return Entry{Name: name, Dtype: "F32", Shape: shape, Data: buf}
}

// Write serializes the entries to path as a safetensors file. Entries are
// laid out sorted by name with contiguous data offsets, so the same input
// always produces the same bytes. The file is written to a temporary
// sibling first and renamed into place.
func Write(path string, entries []Entry, metadata map[string]string) error {
	if len(entries) == 0 {
		return errors.New("no tensors to write")
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	header := make(map[string]any, len(sorted)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}

	var offset int64
	seen := make(map[string]bool, len(sorted))
	for i := range sorted {
		e := &sorted[i]
		if e.Name == "" || e.Name == "__metadata__" {
			return errors.Errorf("invalid tensor name %q", e.Name)
		}
		if seen[e.Name] {
			return errors.Errorf("duplicate tensor name %s", e.Name)
		}
		seen[e.Name] = true

		elemSize, err := dtypeSize(e.Dtype)
		if err != nil {
			return errors.Wrapf(err, "tensor %s", e.Name)
		}
		numElements := int64(1)
		for _, dim := range e.Shape {
			if dim < 0 {
				return errors.Errorf("tensor %s has negative dimension %d", e.Name, dim)
			}
			numElements *= int64(dim)
		}
		if int64(len(e.Data)) != numElements*int64(elemSize) {
			return errors.Errorf("tensor %s: shape %v with dtype %s needs %d bytes, got %d",
				e.Name, e.Shape, e.Dtype, numElements*int64(elemSize), len(e.Data))
		}

		shape := e.Shape
		if shape == nil {
			shape = []int{}
		}
		header[e.Name] = &TensorMetadata{
			Dtype:       e.Dtype,
			Shape:       shape,
			DataOffsets: [2]int64{offset, offset + int64(len(e.Data))},
		}
		offset += int64(len(e.Data))
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to encode header JSON")
	}

	// Write to a temporary sibling and rename into place, so a crash
	// mid-write never leaves a truncated file at path.
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file for %s", path)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := binary.Write(tmp, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		cleanup()
		return errors.Wrap(err, "failed to write header size")
	}
	if _, err := tmp.Write(headerJSON); err != nil {
		cleanup()
		return errors.Wrap(err, "failed to write header JSON")
	}
	for i := range sorted {
		if _, err := tmp.Write(sorted[i].Data); err != nil {
			cleanup()
			return errors.Wrapf(err, "failed to write tensor %s", sorted[i].Name)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to close %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to rename %s to %s", tmpPath, path)
	}
	return nil
}
