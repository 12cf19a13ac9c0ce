package quant

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"
)

// Pass-through formats. Their block size is one element, so the per-block
// kernels below only serve Unpack and single-block callers; whole ranges go
// through the slice encoders.

func encodeF32(dst []byte, src []float32) {
	for i, v := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

func decodeF32(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}

func encodeF16(dst []byte, src []float32) {
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[i*2:], float16.Fromfloat32(v).Bits())
	}
}

func decodeF16(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = float16.Frombits(binary.LittleEndian.Uint16(src[i*2:])).Float32()
	}
}

func encodeBF16(dst []byte, src []float32) {
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[i*2:], bf16FromF32(v))
	}
}

func decodeBF16(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = bf16ToF32(binary.LittleEndian.Uint16(src[i*2:]))
	}
}

func quantizeF32(x []float32, y []byte) { encodeF32(y, x[:1]) }

func dequantizeF32(y []float32, b []byte) { decodeF32(y[:1], b) }

func unpackF32(b []byte, levels []float32, groups []Affine) {
	levels[0] = readF32(b)
	groups[0] = Affine{Scale: 1}
}

func quantizeF16(x []float32, y []byte) { encodeF16(y, x[:1]) }

func dequantizeF16(y []float32, b []byte) { decodeF16(y[:1], b) }

func unpackF16(b []byte, levels []float32, groups []Affine) {
	levels[0] = readF16(b)
	groups[0] = Affine{Scale: 1}
}

func quantizeBF16(x []float32, y []byte) { encodeBF16(y, x[:1]) }

func dequantizeBF16(y []float32, b []byte) { decodeBF16(y[:1], b) }

func unpackBF16(b []byte, levels []float32, groups []Affine) {
	levels[0] = bf16ToF32(binary.LittleEndian.Uint16(b))
	groups[0] = Affine{Scale: 1}
}
