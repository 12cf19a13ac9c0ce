// Package quant implements block-quantized tensor formats.
//
// A format packs a fixed number of elements (the block size) into a fixed
// number of bytes (the type size): a small little-endian header holding one or
// more scales, optionally a minimum, followed by the packed levels. Layouts
// are bit-compatible with the GGML blocks of the same name.
package quant

import (
	"fmt"
	"strings"
)

// Format identifies a block layout. The set is closed; every switch over
// Format in this package is exhaustive.
type Format uint8

const (
	F32 Format = iota
	F16
	BF16
	Q4_0
	Q4_1
	Q5_0
	Q5_1
	Q8_0
	Q8_1
	Q4K
	Q6K
	Q8K

	numFormats
)

const (
	// QK is the block size of the 32-element formats.
	QK = 32
	// QKK is the super-block size of the K formats.
	QKK = 256
)

// Field describes one region of an encoded block.
type Field struct {
	Name   string
	Offset int
	Size   int
}

// Descriptor is the static metadata of a format.
type Descriptor struct {
	Name        string
	BlockSize   int
	TypeSize    int
	ElementBits int
	// GroupSize is the number of consecutive elements sharing one affine
	// scale/offset pair inside a block.
	GroupSize int
	Symmetric bool
	Fields    []Field
}

var descriptors = [numFormats]Descriptor{
	F32: {Name: "f32", BlockSize: 1, TypeSize: 4, ElementBits: 32, GroupSize: 1, Symmetric: true,
		Fields: []Field{{"value", 0, 4}}},
	F16: {Name: "f16", BlockSize: 1, TypeSize: 2, ElementBits: 16, GroupSize: 1, Symmetric: true,
		Fields: []Field{{"value", 0, 2}}},
	BF16: {Name: "bf16", BlockSize: 1, TypeSize: 2, ElementBits: 16, GroupSize: 1, Symmetric: true,
		Fields: []Field{{"value", 0, 2}}},
	Q4_0: {Name: "q4_0", BlockSize: QK, TypeSize: 2 + QK/2, ElementBits: 4, GroupSize: QK, Symmetric: true,
		Fields: []Field{{"d", 0, 2}, {"qs", 2, QK / 2}}},
	Q4_1: {Name: "q4_1", BlockSize: QK, TypeSize: 4 + QK/2, ElementBits: 4, GroupSize: QK,
		Fields: []Field{{"d", 0, 2}, {"m", 2, 2}, {"qs", 4, QK / 2}}},
	Q5_0: {Name: "q5_0", BlockSize: QK, TypeSize: 2 + 4 + QK/2, ElementBits: 5, GroupSize: QK, Symmetric: true,
		Fields: []Field{{"d", 0, 2}, {"qh", 2, 4}, {"qs", 6, QK / 2}}},
	Q5_1: {Name: "q5_1", BlockSize: QK, TypeSize: 4 + 4 + QK/2, ElementBits: 5, GroupSize: QK,
		Fields: []Field{{"d", 0, 2}, {"m", 2, 2}, {"qh", 4, 4}, {"qs", 8, QK / 2}}},
	Q8_0: {Name: "q8_0", BlockSize: QK, TypeSize: 2 + QK, ElementBits: 8, GroupSize: QK, Symmetric: true,
		Fields: []Field{{"d", 0, 2}, {"qs", 2, QK}}},
	Q8_1: {Name: "q8_1", BlockSize: QK, TypeSize: 4 + QK, ElementBits: 8, GroupSize: QK, Symmetric: true,
		Fields: []Field{{"d", 0, 2}, {"s", 2, 2}, {"qs", 4, QK}}},
	Q4K: {Name: "q4_k", BlockSize: QKK, TypeSize: q4kTypeSize, ElementBits: 4, GroupSize: 32,
		Fields: []Field{{"d", 0, 2}, {"dmin", 2, 2}, {"scales", 4, 12}, {"qs", 16, QKK / 2}}},
	Q6K: {Name: "q6_k", BlockSize: QKK, TypeSize: q6kTypeSize, ElementBits: 6, GroupSize: 16, Symmetric: true,
		Fields: []Field{{"ql", 0, QKK / 2}, {"qh", QKK / 2, QKK / 4}, {"scales", QKK/2 + QKK/4, QKK / 16}, {"d", q6kTypeSize - 2, 2}}},
	Q8K: {Name: "q8_k", BlockSize: QKK, TypeSize: q8kTypeSize, ElementBits: 8, GroupSize: QKK, Symmetric: true,
		Fields: []Field{{"d", 0, 4}, {"qs", 4, QKK}, {"bsums", 4 + QKK, QKK / 8}}},
}

const (
	q4kTypeSize = 2 + 2 + 12 + QKK/2
	q6kTypeSize = QKK/2 + QKK/4 + QKK/16 + 2
	q8kTypeSize = 4 + QKK + QKK/16*2
)

// Descriptor returns the static layout of f. It panics on a value outside the
// enumeration, which can only be produced by an unchecked conversion.
func (f Format) Descriptor() Descriptor {
	if f >= numFormats {
		panic(fmt.Sprintf("quant: invalid format %d", uint8(f)))
	}
	return descriptors[f]
}

// Valid reports whether f is a member of the enumeration.
func (f Format) Valid() bool { return f < numFormats }

func (f Format) BlockSize() int { return f.Descriptor().BlockSize }

func (f Format) TypeSize() int { return f.Descriptor().TypeSize }

// Quantized reports whether f packs more than one element per block.
func (f Format) Quantized() bool { return f.Descriptor().BlockSize > 1 }

func (f Format) String() string {
	if !f.Valid() {
		return fmt.Sprintf("format(%d)", uint8(f))
	}
	return descriptors[f].Name
}

// RowSize returns the encoded byte size of n elements.
func (f Format) RowSize(n int) (int, error) {
	d := f.Descriptor()
	if n < 0 {
		return 0, fmt.Errorf("quant: negative element count %d", n)
	}
	if !IsMultipleOf(n, d.BlockSize) {
		return 0, &AlignmentError{Format: f, Elements: n, BlockSize: d.BlockSize}
	}
	size, ok := mulInt(n/d.BlockSize, d.TypeSize)
	if !ok {
		return 0, fmt.Errorf("quant: %s payload too large for %d elements", f, n)
	}
	return size, nil
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("quant: invalid format %d", uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(b []byte) error {
	parsed, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Formats returns every supported format in declaration order.
func Formats() []Format {
	out := make([]Format, 0, numFormats)
	for f := range numFormats {
		out = append(out, f)
	}
	return out
}

// ParseFormat resolves a format name. Matching ignores case and underscores,
// so "Q4_K", "q4k" and "q4_k" are equivalent.
func ParseFormat(name string) (Format, error) {
	key := normalizeName(name)
	for f := range numFormats {
		if normalizeName(descriptors[f].Name) == key {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown format %q (expected one of %s)", name, formatNames())
}

func normalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "")
}

func formatNames() string {
	names := make([]string, 0, numFormats)
	for f := range numFormats {
		names = append(names, descriptors[f].Name)
	}
	return strings.Join(names, ", ")
}

// IsMultipleOf reports whether n is an exact multiple of m. A zero divisor is
// never satisfied.
func IsMultipleOf(n, m int) bool {
	if m == 0 {
		return false
	}
	return n%m == 0
}

func mulInt(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a < 0 || b < 0 {
		return 0, false
	}
	if a > int(^uint(0)>>1)/b {
		return 0, false
	}
	return a * b, true
}
