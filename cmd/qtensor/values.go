package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/x448/float16"

	"github.com/samcharles93/qtensor/pkg/quant"
)

// parseShape accepts "64x128", "64,128" or "64 128".
func parseShape(s string) (quant.Shape, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == 'x' || r == 'X' || r == ',' || r == ' '
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty shape %q", s)
	}
	shape := make(quant.Shape, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid dimension %q in shape %q", f, s)
		}
		shape[i] = n
	}
	if _, err := shape.Elements(); err != nil {
		return nil, err
	}
	return shape, nil
}

// readValues loads float32 values from a JSON array (.json) or a raw
// little-endian float32 file (anything else).
func readValues(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var vals []float32
		if err := json.Unmarshal(data, &vals); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return vals, nil
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%s: %d bytes is not a whole number of float32 values", path, len(data))
	}
	vals := make([]float32, len(data)/4)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vals, nil
}

// randomValues draws n standard-normal values from a seeded generator.
func randomValues(n int, seed uint64) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(rng.NormFloat64())
	}
	return vals
}

func encodeF32(vals []float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func encodeF16(vals []float16.Float16) []byte {
	out := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[2*i:], v.Bits())
	}
	return out
}
