package safetensors

import (
	"io"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// Reader provides access to the tensors of a safetensors file through a
// memory-mapped view. Tensors are materialized on demand by ReadTensor.
type Reader struct {
	path       string
	reader     *mmap.ReaderAt
	header     *Header
	dataOffset int64
}

// Open memory-maps a safetensors file and parses its header.
func Open(path string) (*Reader, error) {
	header, dataOffset, err := parseHeader(path)
	if err != nil {
		return nil, err
	}
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %s", path)
	}
	return &Reader{
		path:       path,
		reader:     reader,
		header:     header,
		dataOffset: dataOffset,
	}, nil
}

// Header returns the parsed file header.
func (r *Reader) Header() *Header { return r.header }

// Names returns the tensor names ordered by their position in the file.
func (r *Reader) Names() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return r.header.Tensors[names[i]].DataOffsets[0] < r.header.Tensors[names[j]].DataOffsets[0]
	})
	return names
}

// ReadTensor reads a tensor by name into a freshly allocated GoMLX tensor.
func (r *Reader) ReadTensor(name string) (*tensors.Tensor, error) {
	meta, ok := r.header.Tensors[name]
	if !ok {
		return nil, errors.Errorf("tensor %s not found in %s", name, r.path)
	}

	dtype, err := dtypeToGoMLX(meta.Dtype)
	if err != nil {
		return nil, err
	}

	t := tensors.FromShape(shapes.Make(dtype, meta.Shape...))

	// Read from mmap directly into tensor memory.
	tensorOffset := r.dataOffset + meta.DataOffsets[0]
	var readErr error
	t.MutableBytes(func(data []byte) {
		expectedBytes := int64(t.Shape().Size()) * int64(dtype.Size())
		if int64(len(data)) != expectedBytes {
			readErr = errors.Errorf("tensor shape %s expected %d bytes, but got %d bytes", t.Shape(), expectedBytes, len(data))
			return
		}
		if meta.SizeBytes() != expectedBytes {
			readErr = errors.Errorf("tensor %s: header offsets cover %d bytes, shape needs %d", name, meta.SizeBytes(), expectedBytes)
			return
		}
		_, readErr = r.reader.ReadAt(data, tensorOffset)
		if readErr == io.EOF {
			readErr = nil
		}
		if readErr != nil {
			readErr = errors.Wrapf(readErr, "failed to read tensor %s", name)
		}
	})
	if readErr != nil {
		return nil, readErr
	}

	return t, nil
}

// Close closes the underlying memory-mapped file.
func (r *Reader) Close() error {
	return r.reader.Close()
}

// ReadAll loads every tensor of a safetensors file. It returns the tensors
// keyed by name and the file's __metadata__ entries.
func ReadAll(path string) (map[string]*tensors.Tensor, map[string]string, error) {
	r, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	out := make(map[string]*tensors.Tensor, len(r.header.Tensors))
	for name := range r.header.Tensors {
		t, err := r.ReadTensor(name)
		if err != nil {
			return nil, nil, err
		}
		out[name] = t
	}
	return out, r.header.Metadata, nil
}
