package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/qtensor/pkg/quant"
)

func TestParseShape(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want quant.Shape
		ok   bool
	}{
		{"64x128", quant.Shape{64, 128}, true},
		{"64,128", quant.Shape{64, 128}, true},
		{"32", quant.Shape{32}, true},
		{"2 3 4", quant.Shape{2, 3, 4}, true},
		{"", nil, false},
		{"4x-1", nil, false},
		{"4xq", nil, false},
	}
	for _, tt := range tests {
		got, err := parseShape(tt.in)
		if tt.ok != (err == nil) {
			t.Fatalf("parseShape(%q): err=%v", tt.in, err)
		}
		if tt.ok && !got.Equal(tt.want) {
			t.Fatalf("parseShape(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReadValuesRawAndJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	want := []float32{1.5, -2, 0, 3.25}

	raw := filepath.Join(dir, "v.f32")
	if err := os.WriteFile(raw, encodeF32(want), 0o644); err != nil {
		t.Fatal(err)
	}
	js := filepath.Join(dir, "v.json")
	if err := os.WriteFile(js, []byte("[1.5,-2,0,3.25]"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{raw, js} {
		got, err := readValues(p)
		if err != nil {
			t.Fatalf("readValues(%s): %v", p, err)
		}
		if len(got) != len(want) {
			t.Fatalf("%s: got %d values", p, len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s[%d] = %v, want %v", p, i, got[i], want[i])
			}
		}
	}

	bad := filepath.Join(dir, "bad.f32")
	if err := os.WriteFile(bad, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readValues(bad); err == nil {
		t.Fatal("expected error for truncated raw file")
	}
}

func TestRandomValuesDeterministic(t *testing.T) {
	t.Parallel()
	a, b := randomValues(16, 7), randomValues(16, 7)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("idx %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}
