//go:build mkl

package backend

func init() { buildFlags.MKL = true }
