package gguf

import (
	"fmt"
	"slices"

	"github.com/samcharles93/qtensor/pkg/quant"
)

// Shape returns the dimensions outermost first. GGUF stores the row length
// as the first dimension.
func (ti TensorInfo) Shape() quant.Shape {
	s := make(quant.Shape, len(ti.Dims))
	for i, d := range ti.Dims {
		s[len(s)-1-i] = int(d)
	}
	return s
}

// TensorByName returns the tensor info for the given name.
func (f *File) TensorByName(name string) (TensorInfo, bool) {
	i := slices.IndexFunc(f.Tensors, func(t TensorInfo) bool { return t.Name == name })
	if i < 0 {
		return TensorInfo{}, false
	}
	return f.Tensors[i], true
}

// Tensor reads the payload of name into a new quant tensor.
func (f *File) Tensor(name string) (*quant.Tensor, error) {
	info, ok := f.TensorByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	format, err := info.Type.Format()
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	for _, d := range info.Dims {
		if d > uint64(^uint(0)>>1) {
			return nil, fmt.Errorf("tensor %s: dimension %d too large", name, d)
		}
	}
	shape := info.Shape()
	n, err := shape.Elements()
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	size, err := format.RowSize(n)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	off := f.DataOffset + info.Offset
	if off < f.DataOffset || off+uint64(size) > uint64(f.size) {
		return nil, fmt.Errorf("tensor %s: payload out of bounds", name)
	}
	if f.f == nil {
		return nil, fmt.Errorf("tensor %s: file closed", name)
	}
	buf := make([]byte, size)
	if _, err := f.f.ReadAt(buf, int64(off)); err != nil {
		return nil, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return quant.FromBytes(buf, shape, format)
}
