//go:build goexperiment.simd && amd64

package backend

import "simd/archsimd"

var hasAVX2 = archsimd.X86.AVX2()

// scaleShift runs eight lanes at a time on AVX2 and defers to vek otherwise.
// Multiply and add stay separate instructions so no lane is fused.
func scaleShift(x []float32, scale, offset float32, shift bool) {
	if !hasAVX2 {
		scaleShiftVek(x, scale, offset, shift)
		return
	}
	vs := archsimd.BroadcastFloat32x8(scale)
	vo := archsimd.BroadcastFloat32x8(offset)
	j := 0
	for ; j+8 <= len(x); j += 8 {
		v := archsimd.LoadFloat32x8Slice(x[j:]).Mul(vs)
		if shift {
			v = v.Add(vo)
		}
		v.StoreSlice(x[j:])
	}
	for ; j < len(x); j++ {
		v := float32(x[j] * scale)
		if shift {
			v += offset
		}
		x[j] = v
	}
}
