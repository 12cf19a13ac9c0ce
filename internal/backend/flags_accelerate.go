//go:build accelerate

package backend

func init() { buildFlags.Accelerate = true }
