package quant

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape lists tensor dimensions, outermost first.
type Shape []int

// Elements returns the product of all dimensions. An empty shape is a scalar
// holding one element.
func (s Shape) Elements() (int, error) {
	n := 1
	for i, d := range s {
		if d < 0 {
			return 0, fmt.Errorf("quant: negative dimension %d at axis %d", d, i)
		}
		var ok bool
		if n, ok = mulInt(n, d); !ok {
			return 0, fmt.Errorf("quant: shape %v overflows int", []int(s))
		}
	}
	return n, nil
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

func (s Shape) Clone() Shape {
	return append(Shape(nil), s...)
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, "x") + "]"
}
