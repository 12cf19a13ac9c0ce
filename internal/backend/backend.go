// Package backend selects and runs the decode strategy for quantized
// tensors: a scalar reference loop, a vectorized loop and a parallel loop
// over a fixed worker pool. All strategies produce bit-identical output.
package backend

import (
	"fmt"
	"strings"
)

// Kind names a decode strategy.
type Kind uint8

const (
	Auto Kind = iota
	Scalar
	SIMD
	Parallel
)

var kindNames = [...]string{
	Auto:     "auto",
	Scalar:   "scalar",
	SIMD:     "simd",
	Parallel: "parallel",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Kinds lists the concrete strategies, Auto excluded.
func Kinds() []Kind {
	return []Kind{Scalar, SIMD, Parallel}
}

// ParseKind normalizes a backend name. The empty string selects Auto; "cpu"
// is accepted as an alias for Scalar.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return Auto, nil
	case "scalar", "cpu":
		return Scalar, nil
	case "simd", "vector":
		return SIMD, nil
	case "parallel", "threads":
		return Parallel, nil
	default:
		return Auto, fmt.Errorf("unknown backend %q (expected auto, scalar, simd, or parallel)", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
