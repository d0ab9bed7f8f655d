// Package safetensors reads and writes tensor files in the safetensors
// format (https://github.com/huggingface/safetensors).
//
// File layout:
//
//	[8 bytes: header size as little-endian u64]
//	[header_size bytes: JSON header]
//	[remaining bytes: tensor data]
//
// Tensor data is materialized as GoMLX tensors. Reading goes through a
// memory-mapped view of the file, so opening a large file is cheap and
// only the tensors actually requested are copied into memory.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Header represents the JSON header of a safetensors file.
type Header struct {
	Tensors  map[string]*TensorMetadata // tensor name -> metadata
	Metadata map[string]string          // optional __metadata__ field
}

// TensorMetadata describes a single tensor in a safetensors file.
type TensorMetadata struct {
	Name        string   `json:"-"`            // tensor name (from map key)
	Dtype       string   `json:"dtype"`        // data type: F32, F64, I32, I64, etc.
	Shape       []int    `json:"shape"`        // tensor dimensions
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end] byte offsets in the data section
}

// SizeBytes returns the size of the tensor data in bytes.
func (tm *TensorMetadata) SizeBytes() int64 {
	return tm.DataOffsets[1] - tm.DataOffsets[0]
}

// NumElements returns the total number of elements based on the shape.
func (tm *TensorMetadata) NumElements() int64 {
	if len(tm.Shape) == 0 {
		return 1 // Scalar
	}
	prod := int64(1)
	for _, dim := range tm.Shape {
		prod *= int64(dim)
	}
	return prod
}

// ReadHeader parses only the header of a safetensors file, without touching
// tensor data.
func ReadHeader(path string) (*Header, error) {
	header, _, err := parseHeader(path)
	return header, err
}

// parseHeader reads and parses the header of a safetensors file. It returns
// the header and the byte offset at which the tensor data section starts.
func parseHeader(path string) (*Header, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to open file %s", path)
	}
	defer f.Close()

	// Header size: 8 bytes, little-endian.
	var headerSize uint64
	if err := binary.Read(f, binary.LittleEndian, &headerSize); err != nil {
		return nil, 0, errors.Wrapf(err, "failed to read header size of %s", path)
	}

	if headerSize > 100*1024*1024 { // Sanity check: 100MB max header
		return nil, 0, errors.Errorf("header size too large in %s: %d bytes", path, headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, 0, errors.Wrapf(err, "failed to read header JSON of %s", path)
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawHeader); err != nil {
		return nil, 0, errors.Wrapf(err, "failed to parse header JSON of %s", path)
	}

	header := &Header{
		Tensors:  make(map[string]*TensorMetadata),
		Metadata: make(map[string]string),
	}
	for key, value := range rawHeader {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &header.Metadata); err != nil {
				return nil, 0, errors.Wrap(err, "failed to parse __metadata__")
			}
			continue
		}
		var tm TensorMetadata
		if err := json.Unmarshal(value, &tm); err != nil {
			return nil, 0, errors.Wrapf(err, "failed to parse tensor metadata for %s", key)
		}
		tm.Name = key
		header.Tensors[key] = &tm
	}

	// Data section starts after the 8-byte size prefix and the header.
	dataOffset := int64(8 + headerSize)
	return header, dataOffset, nil
}
