//go:build cuda

package backend

func init() { buildFlags.CUDA = true }
