package backend

// The wasm build has no vector kernels, so SIMD128 is never reported.
func detectCPU() Capabilities {
	return Capabilities{}
}
