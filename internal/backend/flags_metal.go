//go:build metal

package backend

func init() { buildFlags.Metal = true }
