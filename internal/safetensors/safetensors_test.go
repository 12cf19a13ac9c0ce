package safetensors

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/samcharles93/qtensor/pkg/quant"
)

// writeSafetensors creates a safetensors file from a raw header and payload.
func writeSafetensors(t *testing.T, header map[string]any, data []byte) string {
	t.Helper()
	headerBytes, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))

	buf := append(lenBuf[:], headerBytes...)
	buf = append(buf, data...)
	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func entry(dtype string, shape []int, start, end int) map[string]any {
	return map[string]any{"dtype": dtype, "shape": shape, "data_offsets": []int{start, end}}
}

func f32Bytes(vals ...float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func openT(t *testing.T, path string) *File {
	t.Helper()
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestOpenValidFile(t *testing.T) {
	t.Parallel()
	path := writeSafetensors(t, map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"weight":       entry("F32", []int{2, 3}, 0, 24),
	}, make([]byte, 24))

	f := openT(t, path)
	if len(f.Tensors) != 1 {
		t.Fatalf("expected 1 tensor, got %d", len(f.Tensors))
	}
	if f.Metadata["format"] != "pt" {
		t.Fatalf("metadata = %v", f.Metadata)
	}
	info := f.Tensors["weight"]
	if info.DType != "F32" || len(info.Shape) != 2 || info.Shape[0] != 2 || info.Shape[1] != 3 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestOpenRejectsBadFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	truncated := filepath.Join(dir, "truncated.safetensors")
	if err := os.WriteFile(truncated, []byte{0, 0, 0, 0}, 0o644); err != nil {
		t.Fatal(err)
	}
	longHeader := filepath.Join(dir, "long.safetensors")
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 1<<40)
	if err := os.WriteFile(longHeader, lenBuf[:], 0o644); err != nil {
		t.Fatal(err)
	}
	badJSON := filepath.Join(dir, "json.safetensors")
	binary.LittleEndian.PutUint64(lenBuf[:], 12)
	if err := os.WriteFile(badJSON, append(lenBuf[:], "not valid js"...), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{
		"truncated":          truncated,
		"header too long":    longHeader,
		"invalid json":       badJSON,
		"one offset":         writeSafetensors(t, map[string]any{"w": map[string]any{"dtype": "F32", "shape": []int{1}, "data_offsets": []int{0}}}, nil),
		"inverted offsets":   writeSafetensors(t, map[string]any{"w": entry("F32", []int{1}, 8, 4)}, make([]byte, 8)),
		"past end of file":   writeSafetensors(t, map[string]any{"w": entry("F32", []int{4}, 0, 16)}, make([]byte, 8)),
		"negative start":     writeSafetensors(t, map[string]any{"w": entry("F32", []int{1}, -4, 0)}, make([]byte, 4)),
		"metadata not a map": writeSafetensors(t, map[string]any{"__metadata__": []int{1}}, nil),
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Open(path)
			if !errors.Is(err, ErrCorruptFile) {
				t.Fatalf("expected ErrCorruptFile, got %v", err)
			}
		})
	}

	if _, err := Open(filepath.Join(dir, "missing.safetensors")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestReadTensorF32(t *testing.T) {
	t.Parallel()
	path := writeSafetensors(t, map[string]any{
		"w": entry("F32", []int{2, 2}, 0, 16),
	}, f32Bytes(1, -2.5, 3, 0.125))

	f := openT(t, path)
	got, info, err := f.ReadTensorF32("w")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	want := []float32{1, -2.5, 3, 0.125}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("value %d: got %v want %v", i, got[i], want[i])
		}
	}
	if info.Name != "w" {
		t.Fatalf("info name %q", info.Name)
	}
}

func TestReadHalfDTypes(t *testing.T) {
	t.Parallel()
	// 1.0 and -2.0 in each encoding.
	bf16 := []byte{0x80, 0x3f, 0x00, 0xc0}
	f16 := []byte{0x00, 0x3c, 0x00, 0xc0}
	path := writeSafetensors(t, map[string]any{
		"a": entry("BF16", []int{2}, 0, 4),
		"b": entry("F16", []int{2}, 4, 8),
	}, append(bf16, f16...))

	f := openT(t, path)
	for _, name := range []string{"a", "b"} {
		vals, _, err := f.ReadTensorF32(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if vals[0] != 1 || vals[1] != -2 {
			t.Fatalf("%s: got %v", name, vals)
		}
	}

	q, err := f.Tensor("a")
	if err != nil {
		t.Fatal(err)
	}
	if q.Format() != quant.BF16 {
		t.Fatalf("format = %s", q.Format())
	}
}

func TestTensorErrors(t *testing.T) {
	t.Parallel()
	path := writeSafetensors(t, map[string]any{
		"ints":  entry("I64", []int{1}, 0, 8),
		"short": entry("F32", []int{4}, 8, 16),
	}, make([]byte, 16))

	f := openT(t, path)
	if _, err := f.Tensor("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.Tensor("ints"); !errors.Is(err, ErrUnsupportedDType) {
		t.Fatalf("expected ErrUnsupportedDType, got %v", err)
	}
	if _, err := f.Tensor("short"); !errors.Is(err, quant.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
}

func TestNamesInDataOrder(t *testing.T) {
	t.Parallel()
	path := writeSafetensors(t, map[string]any{
		"z": entry("F32", []int{1}, 0, 4),
		"a": entry("F32", []int{1}, 8, 12),
		"m": entry("F32", []int{1}, 4, 8),
	}, make([]byte, 12))

	f := openT(t, path)
	got := f.Names()
	want := []string{"z", "m", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v, want %v", got, want)
		}
	}
}

func TestClosedFile(t *testing.T) {
	t.Parallel()
	path := writeSafetensors(t, map[string]any{"w": entry("F32", []int{1}, 0, 4)}, make([]byte, 4))
	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.ReadTensor("w"); err == nil {
		t.Fatal("expected error reading closed file")
	}
}
