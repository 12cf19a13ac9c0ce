// Package tensor holds dense matrices and the matrix products that consume
// quantized operands block by block.
package tensor

import (
	"math/rand/v2"

	"github.com/samcharles93/qtensor/pkg/quant"
)

// Mat represents a dense row-major matrix of float32 values.
//
// Stride is the number of elements between the starts of two consecutive
// rows; for matrices built here it equals C.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a zeroed r x c matrix.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{R: r, C: c, Stride: c, Data: make([]float32, r*c)}
}

// NewMatFromData wraps data, which must hold exactly r*c values.
func NewMatFromData(r, c int, data []float32) Mat {
	if r < 0 || c < 0 || r*c != len(data) {
		panic("data length mismatch")
	}
	return Mat{R: r, C: c, Stride: c, Data: data}
}

// MatFromTensor decodes a rank-2 quantized tensor into a dense matrix.
func MatFromTensor(t *quant.Tensor) (Mat, error) {
	r, c, err := dims2(t)
	if err != nil {
		return Mat{}, err
	}
	data, err := t.Dequantize()
	if err != nil {
		return Mat{}, err
	}
	return NewMatFromData(r, c, data), nil
}

// Row returns a view of row i.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

func (m *Mat) At(i, j int) float32 { return m.Data[i*m.Stride+j] }

func (m *Mat) Set(i, j int, v float32) { m.Data[i*m.Stride+j] = v }

// Shape returns the matrix dimensions as a quant.Shape.
func (m *Mat) Shape() quant.Shape { return quant.Shape{m.R, m.C} }

// FillRand fills the matrix with reproducible standard-normal values scaled
// by scale.
func FillRand(m *Mat, seed uint64, scale float32) {
	rng := rand.New(rand.NewPCG(seed, seed^0xa0761d6478bd642f))
	for i := range m.R {
		row := m.Row(i)
		for j := range row {
			row[j] = float32(rng.NormFloat64()) * scale
		}
	}
}

// Contiguous reports whether the rows are packed back to back.
func (m *Mat) Contiguous() bool { return m.Stride == m.C }
