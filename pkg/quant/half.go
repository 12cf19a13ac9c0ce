package quant

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"
)

func readF16(b []byte) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
}

func writeF16(b []byte, v float32) {
	binary.LittleEndian.PutUint16(b, float16.Fromfloat32(v).Bits())
}

// roundF16 returns v after a round trip through binary16, i.e. the value a
// decoder will see for a scale written with writeF16.
func roundF16(v float32) float32 {
	return float16.Fromfloat32(v).Float32()
}

func readF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func writeF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

// bf16FromF32 rounds to nearest even on the truncated 16 bits. NaN payloads
// are kept quiet.
func bf16FromF32(v float32) uint16 {
	u := math.Float32bits(v)
	if u&0x7FFFFFFF > 0x7F800000 {
		return uint16(u>>16) | 0x0040
	}
	rnd := uint32(0x7FFF + ((u >> 16) & 1))
	return uint16((u + rnd) >> 16)
}

func bf16ToF32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}

// ToF16 rounds full-precision values to binary16 in place of a separate
// conversion pass.
func ToF16(dst []float16.Float16, src []float32) {
	for i, v := range src[:len(dst)] {
		dst[i] = float16.Fromfloat32(v)
	}
}

// nearestInt rounds half to even. Every float-to-level mapping in this
// package goes through it.
func nearestInt(v float32) int {
	return int(math.RoundToEven(float64(v)))
}
