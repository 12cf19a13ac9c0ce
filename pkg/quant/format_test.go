package quant

import (
	"errors"
	"testing"
)

func TestDescriptorSizes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		f         Format
		blockSize int
		typeSize  int
	}{
		{F32, 1, 4},
		{F16, 1, 2},
		{BF16, 1, 2},
		{Q4_0, 32, 18},
		{Q4_1, 32, 20},
		{Q5_0, 32, 22},
		{Q5_1, 32, 24},
		{Q8_0, 32, 34},
		{Q8_1, 32, 36},
		{Q4K, 256, 144},
		{Q6K, 256, 210},
		{Q8K, 256, 292},
	}
	if len(cases) != len(Formats()) {
		t.Fatalf("cases cover %d formats, have %d", len(cases), len(Formats()))
	}
	for _, tc := range cases {
		d := tc.f.Descriptor()
		if d.BlockSize != tc.blockSize || d.TypeSize != tc.typeSize {
			t.Fatalf("%s: got block=%d bytes=%d want block=%d bytes=%d", tc.f, d.BlockSize, d.TypeSize, tc.blockSize, tc.typeSize)
		}
		if !IsMultipleOf(d.BlockSize, d.GroupSize) {
			t.Fatalf("%s: group size %d does not divide block size %d", tc.f, d.GroupSize, d.BlockSize)
		}
		end := 0
		for _, fld := range d.Fields {
			if fld.Offset != end {
				t.Fatalf("%s: field %s at %d, want %d", tc.f, fld.Name, fld.Offset, end)
			}
			end += fld.Size
		}
		if end != d.TypeSize {
			t.Fatalf("%s: fields cover %d bytes, type size %d", tc.f, end, d.TypeSize)
		}
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	cases := map[string]Format{
		"q4_0": Q4_0,
		"Q4_0": Q4_0,
		"q40":  Q4_0,
		"q4_k": Q4K,
		"Q4K":  Q4K,
		"q6_k": Q6K,
		"q8_K": Q8K,
		"F16":  F16,
		"bf16": BF16,
		" f32": F32,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseFormat(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseFormat("q3_k"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestFormatTextRoundTrip(t *testing.T) {
	t.Parallel()
	for _, f := range Formats() {
		b, err := f.MarshalText()
		if err != nil {
			t.Fatalf("%s: MarshalText: %v", f, err)
		}
		var got Format
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("%s: UnmarshalText: %v", f, err)
		}
		if got != f {
			t.Fatalf("round trip %s -> %s", f, got)
		}
	}
	if _, err := Format(200).MarshalText(); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestIsMultipleOf(t *testing.T) {
	t.Parallel()
	cases := []struct {
		n, m int
		want bool
	}{
		{0, 32, true},
		{32, 32, true},
		{64, 32, true},
		{63, 32, false},
		{1, 1, true},
		{5, 0, false},
		{0, 0, false},
	}
	for _, tc := range cases {
		if got := IsMultipleOf(tc.n, tc.m); got != tc.want {
			t.Fatalf("IsMultipleOf(%d, %d) = %v, want %v", tc.n, tc.m, got, tc.want)
		}
	}
}

func TestRowSize(t *testing.T) {
	t.Parallel()
	got, err := Q8_0.RowSize(128)
	if err != nil {
		t.Fatalf("RowSize: %v", err)
	}
	if got != 4*34 {
		t.Fatalf("RowSize(128) = %d, want %d", got, 4*34)
	}
	_, err = Q4K.RowSize(100)
	var ae *AlignmentError
	if !errors.As(err, &ae) || ae.BlockSize != 256 {
		t.Fatalf("expected AlignmentError, got %v", err)
	}
	if _, err := F32.RowSize(-1); err == nil {
		t.Fatalf("expected error for negative count")
	}
}

func TestShapeElements(t *testing.T) {
	t.Parallel()
	n, err := Shape{64, 128}.Elements()
	if err != nil || n != 8192 {
		t.Fatalf("Elements = %d, %v", n, err)
	}
	if n, _ := (Shape{}).Elements(); n != 1 {
		t.Fatalf("scalar shape elements = %d", n)
	}
	if n, _ := (Shape{0, 32}).Elements(); n != 0 {
		t.Fatalf("empty shape elements = %d", n)
	}
	if _, err := (Shape{-1, 4}).Elements(); err == nil {
		t.Fatalf("expected error for negative dimension")
	}
	huge := int(^uint(0) >> 2)
	if _, err := (Shape{huge, huge}).Elements(); err == nil {
		t.Fatalf("expected overflow error")
	}
}
