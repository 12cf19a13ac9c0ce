//go:build !(goexperiment.simd && amd64)

package backend

func scaleShift(x []float32, scale, offset float32, shift bool) {
	scaleShiftVek(x, scale, offset, shift)
}
