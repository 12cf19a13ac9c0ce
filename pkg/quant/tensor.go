package quant

import (
	"fmt"

	"github.com/x448/float16"
)

// Tensor is an immutable quantized tensor. It owns its packed buffer; the
// only way to change contents is to quantize again.
type Tensor struct {
	format Format
	shape  Shape
	elems  int
	data   []byte
}

// RangeFunc executes body over the block range [0, n), possibly split into
// several concurrent [lo, hi) chunks. It returns once every chunk is done.
type RangeFunc func(n int, body func(lo, hi int))

// Serial runs the whole range on the calling goroutine.
func Serial(n int, body func(lo, hi int)) {
	if n > 0 {
		body(0, n)
	}
}

// Quantize encodes values into a new tensor of the given shape and format.
// The element count is checked against the block size before anything is
// allocated.
func Quantize(values []float32, shape Shape, f Format) (*Tensor, error) {
	return QuantizeWith(values, shape, f, Serial)
}

// QuantizeWith is Quantize with the block loop handed to run. Blocks are
// independent, so any partitioning yields the same bytes.
func QuantizeWith(values []float32, shape Shape, f Format, run RangeFunc) (*Tensor, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("quant: invalid format %d", uint8(f))
	}
	n, err := shape.Elements()
	if err != nil {
		return nil, err
	}
	d := f.Descriptor()
	if !IsMultipleOf(n, d.BlockSize) {
		return nil, &AlignmentError{Format: f, Elements: n, BlockSize: d.BlockSize}
	}
	if len(values) != n {
		return nil, &SizeMismatchError{Format: f, What: "values", Want: n, Got: len(values)}
	}
	size, err := f.RowSize(n)
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	run(n/d.BlockSize, func(lo, hi int) {
		quantizeRange(f, values, data, lo, hi)
	})
	return &Tensor{format: f, shape: shape.Clone(), elems: n, data: data}, nil
}

// FromBytes wraps an already packed buffer. The buffer is copied.
func FromBytes(data []byte, shape Shape, f Format) (*Tensor, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("quant: invalid format %d", uint8(f))
	}
	n, err := shape.Elements()
	if err != nil {
		return nil, err
	}
	d := f.Descriptor()
	if !IsMultipleOf(n, d.BlockSize) {
		return nil, &AlignmentError{Format: f, Elements: n, BlockSize: d.BlockSize}
	}
	size, err := f.RowSize(n)
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		return nil, &SizeMismatchError{Format: f, What: "bytes", Want: size, Got: len(data)}
	}
	own := make([]byte, size)
	copy(own, data)
	return &Tensor{format: f, shape: shape.Clone(), elems: n, data: own}, nil
}

// Dequantize decodes the whole tensor with the reference kernels.
func (t *Tensor) Dequantize() ([]float32, error) {
	out := make([]float32, t.elems)
	if err := DequantizeBlocks(t.format, t.data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DequantizeF16 decodes the whole tensor and rounds each value to binary16.
func (t *Tensor) DequantizeF16() ([]float16.Float16, error) {
	out := make([]float16.Float16, t.elems)
	if err := DequantizeBlocksF16(t.format, t.data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tensor) Format() Format { return t.format }

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() Shape { return t.shape.Clone() }

func (t *Tensor) Elements() int { return t.elems }

func (t *Tensor) Blocks() int { return t.elems / t.format.BlockSize() }

// Size is the packed size in bytes.
func (t *Tensor) Size() int { return len(t.data) }

// Bytes returns a copy of the packed buffer.
func (t *Tensor) Bytes() []byte {
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out
}

// View returns the packed buffer itself. Callers must not modify it.
func (t *Tensor) View() []byte { return t.data }

// Block returns the packed bytes of block i, sharing the tensor's buffer.
func (t *Tensor) Block(i int) ([]byte, error) {
	if i < 0 || i >= t.Blocks() {
		return nil, fmt.Errorf("quant: block %d out of range [0, %d)", i, t.Blocks())
	}
	ts := t.format.TypeSize()
	return t.data[i*ts : (i+1)*ts : (i+1)*ts], nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s %s, %d blocks, %d bytes)", t.format, t.shape, t.Blocks(), len(t.data))
}
