package backend

import (
	"fmt"
	"strings"
	"sync"

	"github.com/samcharles93/qtensor/pkg/quant"
)

// Capabilities describes what the running process can use. Detection fills
// it once; tests construct arbitrary values.
type Capabilities struct {
	AVX        bool `json:"avx"`
	AVX2       bool `json:"avx2"`
	FMA        bool `json:"fma"`
	F16C       bool `json:"f16c"`
	AVX512     bool `json:"avx512"`
	NEON       bool `json:"neon"`
	SIMD128    bool `json:"simd128"`
	Accelerate bool `json:"accelerate"`
	MKL        bool `json:"mkl"`
	CUDA       bool `json:"cuda"`
	Metal      bool `json:"metal"`

	// Threads is the resolved degree of parallelism.
	Threads int `json:"threads"`
}

// buildFlags carries the capabilities selected by build tags.
var buildFlags Capabilities

var (
	detectOnce sync.Once
	detected   Capabilities
)

// DetectCapabilities inspects the CPU, the build tags and the environment.
// The result is computed on first use and shared afterwards.
func DetectCapabilities() Capabilities {
	detectOnce.Do(func() {
		c := detectCPU()
		c.Accelerate = buildFlags.Accelerate
		c.MKL = buildFlags.MKL
		c.CUDA = buildFlags.CUDA
		c.Metal = buildFlags.Metal
		c.Threads = DefaultConfig().Threads
		detected = c
	})
	return detected
}

// Vector reports whether a vector unit usable by the SIMD strategy exists.
func (c Capabilities) Vector() bool {
	return c.AVX2 || c.NEON || c.SIMD128
}

// Available reports whether kind can run. Auto always can.
func (c Capabilities) Available(kind Kind) bool {
	return c.Check(kind) == nil
}

// Check returns a BackendUnavailableError naming the missing capability.
func (c Capabilities) Check(kind Kind) error {
	switch kind {
	case Auto, Scalar:
		return nil
	case SIMD:
		if c.Vector() {
			return nil
		}
		return &quant.BackendUnavailableError{Backend: kind.String(), Reason: "no AVX2, NEON or SIMD128 support"}
	case Parallel:
		if c.Threads > 1 {
			return nil
		}
		return &quant.BackendUnavailableError{Backend: kind.String(), Reason: fmt.Sprintf("parallelism is %d", c.Threads)}
	default:
		return &quant.BackendUnavailableError{Backend: kind.String(), Reason: "unknown backend"}
	}
}

// Backends lists the concrete strategies that can run.
func (c Capabilities) Backends() []Kind {
	var out []Kind
	for _, k := range Kinds() {
		if c.Available(k) {
			out = append(out, k)
		}
	}
	return out
}

// Features returns the names of the set flags.
func (c Capabilities) Features() []string {
	flags := []struct {
		name string
		on   bool
	}{
		{"avx", c.AVX}, {"avx2", c.AVX2}, {"fma", c.FMA}, {"f16c", c.F16C},
		{"avx512", c.AVX512}, {"neon", c.NEON}, {"simd128", c.SIMD128},
		{"accelerate", c.Accelerate}, {"mkl", c.MKL}, {"cuda", c.CUDA}, {"metal", c.Metal},
	}
	var out []string
	for _, f := range flags {
		if f.on {
			out = append(out, f.name)
		}
	}
	return out
}

// String returns a comma-separated list of features and available backends.
func (c Capabilities) String() string {
	names := make([]string, 0, 3)
	for _, k := range c.Backends() {
		names = append(names, k.String())
	}
	return fmt.Sprintf("features=[%s] threads=%d backends=[%s]",
		strings.Join(c.Features(), ","), c.Threads, strings.Join(names, ","))
}
