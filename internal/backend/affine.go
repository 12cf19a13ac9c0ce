package backend

import (
	"github.com/viterin/vek/vek32"
	"github.com/x448/float16"

	"github.com/samcharles93/qtensor/pkg/quant"
)

// scaleShiftVek applies x = x*scale (+ offset) with two separately rounded
// vector passes, which keeps the result identical to the scalar decoders.
func scaleShiftVek(x []float32, scale, offset float32, shift bool) {
	vek32.MulNumber_Inplace(x, scale)
	if shift {
		vek32.AddNumber_Inplace(x, offset)
	}
}

// maxGroups bounds the affine groups of any block.
const maxGroups = quant.QKK / 16

// vectorRange decodes blocks [lo, hi): levels are unpacked straight into
// dst and every group's affine step runs through scaleShift.
func vectorRange(f quant.Format, src []byte, dst []float32, lo, hi int) error {
	if !f.Quantized() {
		quant.DequantizeRange(f, src, dst, lo, hi)
		return nil
	}
	d := f.Descriptor()
	var groups [maxGroups]quant.Affine
	ng := d.BlockSize / d.GroupSize
	for b := lo; b < hi; b++ {
		out := dst[b*d.BlockSize : (b+1)*d.BlockSize]
		if err := quant.Unpack(f, src[b*d.TypeSize:(b+1)*d.TypeSize], out, groups[:ng]); err != nil {
			return err
		}
		for g := range ng {
			scaleShift(out[g*d.GroupSize:(g+1)*d.GroupSize], groups[g].Scale, groups[g].Offset, !d.Symmetric)
		}
	}
	return nil
}

func scalarRange(f quant.Format, src []byte, dst []float32, lo, hi int) error {
	quant.DequantizeRange(f, src, dst, lo, hi)
	return nil
}

type rangeDecoder func(f quant.Format, src []byte, dst []float32, lo, hi int) error

// halfRange decodes through a one super-block buffer and rounds to binary16.
func halfRange(decode rangeDecoder, f quant.Format, src []byte, dst []float16.Float16, lo, hi int) error {
	if f == quant.F16 {
		quant.DequantizeRangeF16(f, src, dst, lo, hi)
		return nil
	}
	d := f.Descriptor()
	var buf [quant.QKK]float32
	step := max(1, len(buf)/d.BlockSize)
	for b := lo; b < hi; b += step {
		end := min(hi, b+step)
		n := (end - b) * d.BlockSize
		if err := decode(f, src[b*d.TypeSize:end*d.TypeSize], buf[:n], 0, end-b); err != nil {
			return err
		}
		quant.ToF16(dst[b*d.BlockSize:b*d.BlockSize+n], buf[:n])
	}
	return nil
}
