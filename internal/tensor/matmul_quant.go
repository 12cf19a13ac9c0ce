package tensor

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/viterin/vek/vek32"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/qtensor/pkg/quant"
)

// ErrShape reports operands whose dimensions do not line up.
var ErrShape = errors.New("tensor: shape mismatch")

// dims2 returns the rows and columns of a rank-2 tensor whose rows are a
// whole number of blocks.
func dims2(t *quant.Tensor) (int, int, error) {
	if t == nil {
		return 0, 0, fmt.Errorf("%w: nil tensor", ErrShape)
	}
	s := t.Shape()
	if s.Rank() != 2 {
		return 0, 0, fmt.Errorf("%w: want rank 2, got %s", ErrShape, s)
	}
	bs := t.Format().BlockSize()
	if !quant.IsMultipleOf(s[1], bs) {
		return 0, 0, &quant.AlignmentError{Format: t.Format(), Elements: s[1], BlockSize: bs}
	}
	return s[0], s[1], nil
}

// rowReader decodes one row of a quantized matrix a chunk at a time into a
// scratch buffer of at most one super-block.
type rowReader struct {
	f        quant.Format
	data     []byte
	rowBytes int
	chunk    int
	chunkB   int
}

func newRowReader(t *quant.Tensor, cols, chunk int) rowReader {
	d := t.Format().Descriptor()
	return rowReader{
		f:        t.Format(),
		data:     t.View(),
		rowBytes: cols / d.BlockSize * d.TypeSize,
		chunk:    chunk,
		chunkB:   chunk / d.BlockSize * d.TypeSize,
	}
}

// decode writes elements [c*chunk, (c+1)*chunk) of row i into dst.
func (r *rowReader) decode(dst []float32, i, c int) {
	off := i*r.rowBytes + c*r.chunkB
	quant.DequantizeRange(r.f, r.data[off:off+r.chunkB], dst[:r.chunk], 0, r.chunk/r.f.BlockSize())
}

// chunkFor picks the decode granularity for a row of k elements: a full
// super-block when k allows it, else the largest block size involved.
func chunkFor(k int, formats ...quant.Format) int {
	if k%quant.QKK == 0 {
		return quant.QKK
	}
	c := 1
	for _, f := range formats {
		c = max(c, f.BlockSize())
	}
	return c
}

// forRows splits [0, rows) into contiguous chunks run under an errgroup
// limited to workers goroutines.
func forRows(rows, workers int, body func(lo, hi int) error) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = max(1, min(workers, rows))
	if rows == 0 {
		return nil
	}
	if workers == 1 {
		return body(0, rows)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	step := (rows + workers - 1) / workers
	for lo := 0; lo < rows; lo += step {
		hi := min(rows, lo+step)
		g.Go(func() error { return body(lo, hi) })
	}
	return g.Wait()
}

// MatVecQuant computes dst = W x for a quantized [M, K] matrix W. Blocks
// are decoded as they are consumed; W is never expanded in full.
func MatVecQuant(dst []float32, w *quant.Tensor, x []float32, workers int) error {
	m, k, err := dims2(w)
	if err != nil {
		return err
	}
	if len(x) != k || len(dst) != m {
		return fmt.Errorf("%w: [%d,%d] x %d -> %d", ErrShape, m, k, len(x), len(dst))
	}
	chunk := chunkFor(k, w.Format())
	rr := newRowReader(w, k, chunk)
	return forRows(m, workers, func(lo, hi int) error {
		scratch := make([]float32, chunk)
		for i := lo; i < hi; i++ {
			var acc float32
			for c := range k / chunk {
				rr.decode(scratch, i, c)
				acc += vek32.Dot(scratch, x[c*chunk:(c+1)*chunk])
			}
			dst[i] = acc
		}
		return nil
	})
}

// MatMulQuant computes dst = A B for a quantized [M, K] matrix A and a dense
// [K, N] matrix B.
func MatMulQuant(dst *Mat, a *quant.Tensor, b *Mat, workers int) error {
	m, k, err := dims2(a)
	if err != nil {
		return err
	}
	if b.R != k || dst.R != m || dst.C != b.C {
		return fmt.Errorf("%w: [%d,%d] x [%d,%d] -> [%d,%d]", ErrShape, m, k, b.R, b.C, dst.R, dst.C)
	}
	n := b.C
	chunk := chunkFor(k, a.Format())
	rr := newRowReader(a, k, chunk)
	return forRows(m, workers, func(lo, hi int) error {
		scratch := make([]float32, chunk)
		tmp := make([]float32, n)
		for i := lo; i < hi; i++ {
			out := dst.Row(i)
			clear(out)
			for c := range k / chunk {
				rr.decode(scratch, i, c)
				for kk, aik := range scratch {
					if aik == 0 {
						continue
					}
					vek32.MulNumber_Into(tmp, b.Row(c*chunk+kk), aik)
					vek32.Add_Inplace(out, tmp)
				}
			}
		}
		return nil
	})
}

// MatMulQuantQuant computes dst = A Bᵀ where both A [M, K] and bT [N, K] are
// quantized, possibly in different formats.
func MatMulQuantQuant(dst *Mat, a, bT *quant.Tensor, workers int) error {
	m, k, err := dims2(a)
	if err != nil {
		return err
	}
	n, kb, err := dims2(bT)
	if err != nil {
		return err
	}
	if kb != k || dst.R != m || dst.C != n {
		return fmt.Errorf("%w: [%d,%d] x [%d,%d]ᵀ -> [%d,%d]", ErrShape, m, k, n, kb, dst.R, dst.C)
	}
	chunk := chunkFor(k, a.Format(), bT.Format())
	ra := newRowReader(a, k, chunk)
	rb := newRowReader(bT, k, chunk)
	return forRows(m, workers, func(lo, hi int) error {
		sa := make([]float32, chunk)
		sb := make([]float32, chunk)
		for i := lo; i < hi; i++ {
			out := dst.Row(i)
			clear(out)
			for c := range k / chunk {
				ra.decode(sa, i, c)
				for j := range n {
					rb.decode(sb, j, c)
					out[j] += vek32.Dot(sa, sb)
				}
			}
		}
		return nil
	})
}

// MatMul is the dense reference product dst = A B.
func MatMul(dst, a, b *Mat, workers int) error {
	if a.C != b.R || dst.R != a.R || dst.C != b.C {
		return fmt.Errorf("%w: [%d,%d] x [%d,%d] -> [%d,%d]", ErrShape, a.R, a.C, b.R, b.C, dst.R, dst.C)
	}
	return forRows(a.R, workers, func(lo, hi int) error {
		tmp := make([]float32, b.C)
		for i := lo; i < hi; i++ {
			out := dst.Row(i)
			clear(out)
			for kk, aik := range a.Row(i) {
				vek32.MulNumber_Into(tmp, b.Row(kk), aik)
				vek32.Add_Inplace(out, tmp)
			}
		}
		return nil
	})
}
