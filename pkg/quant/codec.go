package quant

import (
	"github.com/x448/float16"
)

// Affine is the reconstruction step shared by one group of levels inside a
// block: value = float32(Scale*level) + Offset. Offset is only applied for
// asymmetric formats.
type Affine struct {
	Scale  float32
	Offset float32
}

type blockKernels struct {
	quantize   func(x []float32, y []byte)
	dequantize func(y []float32, b []byte)
	unpack     func(b []byte, levels []float32, groups []Affine)
}

func kernelsFor(f Format) blockKernels {
	switch f {
	case F32:
		return blockKernels{quantizeF32, dequantizeF32, unpackF32}
	case F16:
		return blockKernels{quantizeF16, dequantizeF16, unpackF16}
	case BF16:
		return blockKernels{quantizeBF16, dequantizeBF16, unpackBF16}
	case Q4_0:
		return blockKernels{quantizeQ4_0, dequantizeQ4_0, unpackQ4_0}
	case Q4_1:
		return blockKernels{quantizeQ4_1, dequantizeQ4_1, unpackQ4_1}
	case Q5_0:
		return blockKernels{quantizeQ5_0, dequantizeQ5_0, unpackQ5_0}
	case Q5_1:
		return blockKernels{quantizeQ5_1, dequantizeQ5_1, unpackQ5_1}
	case Q8_0:
		return blockKernels{quantizeQ8_0, dequantizeQ8_0, unpackQ8_0}
	case Q8_1:
		return blockKernels{quantizeQ8_1, dequantizeQ8_1, unpackQ8_1}
	case Q4K:
		return blockKernels{quantizeQ4K, dequantizeQ4K, unpackQ4K}
	case Q6K:
		return blockKernels{quantizeQ6K, dequantizeQ6K, unpackQ6K}
	case Q8K:
		return blockKernels{quantizeQ8K, dequantizeQ8K, unpackQ8K}
	default:
		panic("quant: unhandled format " + f.String())
	}
}

// QuantizeBlocks encodes src into dst. len(src) must be a whole number of
// blocks and dst must hold exactly the encoded size.
func QuantizeBlocks(f Format, src []float32, dst []byte) error {
	d := f.Descriptor()
	if !IsMultipleOf(len(src), d.BlockSize) {
		return &AlignmentError{Format: f, Elements: len(src), BlockSize: d.BlockSize}
	}
	blocks := len(src) / d.BlockSize
	if want := blocks * d.TypeSize; len(dst) != want {
		return &SizeMismatchError{Format: f, What: "bytes", Want: want, Got: len(dst)}
	}
	quantizeRange(f, src, dst, 0, blocks)
	return nil
}

// quantizeRange encodes blocks [lo, hi). Bounds are the caller's problem.
func quantizeRange(f Format, src []float32, dst []byte, lo, hi int) {
	d := f.Descriptor()
	switch f {
	case F32:
		encodeF32(dst[lo*4:hi*4], src[lo:hi])
		return
	case F16:
		encodeF16(dst[lo*2:hi*2], src[lo:hi])
		return
	case BF16:
		encodeBF16(dst[lo*2:hi*2], src[lo:hi])
		return
	}
	quantize := kernelsFor(f).quantize
	for b := lo; b < hi; b++ {
		quantize(src[b*d.BlockSize:(b+1)*d.BlockSize], dst[b*d.TypeSize:(b+1)*d.TypeSize])
	}
}

// DequantizeBlocks decodes len(dst)/BlockSize blocks from src. A short or
// overlong src yields a StructuralReadError; on a short src every complete
// block before the first unreadable one has been written.
func DequantizeBlocks(f Format, src []byte, dst []float32) error {
	blocks, err := checkDecode(f, src, len(dst))
	if err != nil && blocks == 0 {
		return err
	}
	DequantizeRange(f, src, dst, 0, blocks)
	return err
}

// DequantizeRange decodes blocks [lo, hi) without validation. It exists for
// dispatchers that validated the whole buffer up front and split the block
// range between workers.
func DequantizeRange(f Format, src []byte, dst []float32, lo, hi int) {
	d := f.Descriptor()
	switch f {
	case F32:
		decodeF32(dst[lo:hi], src[lo*4:hi*4])
		return
	case F16:
		decodeF16(dst[lo:hi], src[lo*2:hi*2])
		return
	case BF16:
		decodeBF16(dst[lo:hi], src[lo*2:hi*2])
		return
	}
	dequantize := kernelsFor(f).dequantize
	for b := lo; b < hi; b++ {
		dequantize(dst[b*d.BlockSize:(b+1)*d.BlockSize], src[b*d.TypeSize:(b+1)*d.TypeSize])
	}
}

// DequantizeBlocksF16 is DequantizeBlocks followed by a single rounding of
// every value to binary16.
func DequantizeBlocksF16(f Format, src []byte, dst []float16.Float16) error {
	blocks, err := checkDecode(f, src, len(dst))
	if err != nil && blocks == 0 {
		return err
	}
	DequantizeRangeF16(f, src, dst, 0, blocks)
	return err
}

// DequantizeRangeF16 is the reduced-precision counterpart of DequantizeRange.
func DequantizeRangeF16(f Format, src []byte, dst []float16.Float16, lo, hi int) {
	if f == F16 {
		for i := lo; i < hi; i++ {
			dst[i] = float16.Frombits(uint16(src[2*i]) | uint16(src[2*i+1])<<8)
		}
		return
	}
	d := f.Descriptor()
	var buf [QKK]float32
	step := max(1, len(buf)/d.BlockSize)
	for b := lo; b < hi; b += step {
		end := min(hi, b+step)
		n := (end - b) * d.BlockSize
		DequantizeRange(f, src[b*d.TypeSize:end*d.TypeSize], buf[:n], 0, end-b)
		ToF16(dst[b*d.BlockSize:b*d.BlockSize+n], buf[:n])
	}
}

// checkDecode returns the number of blocks that can be decoded from src for
// an output of n elements, and the structural error, if any, that stops
// decoding there.
func checkDecode(f Format, src []byte, n int) (int, error) {
	d := f.Descriptor()
	if !IsMultipleOf(n, d.BlockSize) {
		return 0, &AlignmentError{Format: f, Elements: n, BlockSize: d.BlockSize}
	}
	blocks := n / d.BlockSize
	want := blocks * d.TypeSize
	switch {
	case len(src) > want:
		return 0, &StructuralReadError{Format: f, Block: blocks, Need: 0, Have: len(src) - want}
	case len(src) < want:
		whole := len(src) / d.TypeSize
		return whole, &StructuralReadError{Format: f, Block: whole, Need: d.TypeSize, Have: len(src) - whole*d.TypeSize}
	}
	return blocks, nil
}

// Unpack decodes one block into integer levels and per-group affine
// parameters. levels must hold BlockSize values and groups
// BlockSize/GroupSize entries. Applying each group's Affine to its levels
// reproduces DequantizeBlocks bit for bit.
func Unpack(f Format, block []byte, levels []float32, groups []Affine) error {
	d := f.Descriptor()
	if len(block) < d.TypeSize {
		return &StructuralReadError{Format: f, Block: 0, Need: d.TypeSize, Have: len(block)}
	}
	if len(levels) < d.BlockSize {
		return &SizeMismatchError{Format: f, What: "levels", Want: d.BlockSize, Got: len(levels)}
	}
	if len(groups) < d.BlockSize/d.GroupSize {
		return &SizeMismatchError{Format: f, What: "groups", Want: d.BlockSize / d.GroupSize, Got: len(groups)}
	}
	kernelsFor(f).unpack(block[:d.TypeSize], levels[:d.BlockSize], groups)
	return nil
}

// DequantizeBlock decodes exactly one block. It is the per-block entry used
// by the fused matmul kernels.
func DequantizeBlock(f Format, block []byte, dst []float32) error {
	d := f.Descriptor()
	if len(block) < d.TypeSize {
		return &StructuralReadError{Format: f, Block: 0, Need: d.TypeSize, Have: len(block)}
	}
	if len(dst) < d.BlockSize {
		return &SizeMismatchError{Format: f, What: "values", Want: d.BlockSize, Got: len(dst)}
	}
	DequantizeRange(f, block[:d.TypeSize], dst[:d.BlockSize], 0, 1)
	return nil
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
