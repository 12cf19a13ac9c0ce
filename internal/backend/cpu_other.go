//go:build !amd64 && !arm64 && !wasm

package backend

func detectCPU() Capabilities {
	return Capabilities{}
}
