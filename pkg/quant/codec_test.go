package quant

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/x448/float16"
)

func randn(n int, seed uint64) []float32 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(r.NormFloat64())
	}
	return out
}

func encode(t *testing.T, f Format, src []float32) []byte {
	t.Helper()
	size, err := f.RowSize(len(src))
	if err != nil {
		t.Fatalf("%s: RowSize: %v", f, err)
	}
	dst := make([]byte, size)
	if err := QuantizeBlocks(f, src, dst); err != nil {
		t.Fatalf("%s: QuantizeBlocks: %v", f, err)
	}
	return dst
}

func decode(t *testing.T, f Format, src []byte, n int) []float32 {
	t.Helper()
	dst := make([]float32, n)
	if err := DequantizeBlocks(f, src, dst); err != nil {
		t.Fatalf("%s: DequantizeBlocks: %v", f, err)
	}
	return dst
}

func blockAbsMax(x []float32) float32 {
	var m float32
	for _, v := range x {
		m = max(m, abs32(v))
	}
	return m
}

// TestRoundTripBlockBound checks every element against a bound derived from
// its block's range and the format's level count.
func TestRoundTripBlockBound(t *testing.T) {
	t.Parallel()
	bounds := map[Format]func(block []float32) float32{
		Q4_0: func(b []float32) float32 { return blockAbsMax(b) / 8 * 1.01 },
		Q5_0: func(b []float32) float32 { return blockAbsMax(b) / 16 * 1.01 },
		Q8_0: func(b []float32) float32 { return blockAbsMax(b) / 127 * 1.01 },
		Q8_1: func(b []float32) float32 { return blockAbsMax(b) / 127 * 1.01 },
		Q8K:  func(b []float32) float32 { return blockAbsMax(b) / 127 * 0.51 },
		Q4_1: func(b []float32) float32 {
			lo, hi := minMax(b)
			return (hi-lo)/15 + blockAbsMax(b)*2e-3
		},
		Q5_1: func(b []float32) float32 {
			lo, hi := minMax(b)
			return (hi-lo)/31 + blockAbsMax(b)*2e-3
		},
	}
	for f, bound := range bounds {
		bs := f.BlockSize()
		src := randn(8*max(bs, QKK), uint64(f)+1)
		got := decode(t, f, encode(t, f, src), len(src))
		for b := 0; b < len(src); b += bs {
			tol := bound(src[b : b+bs])
			for i := b; i < b+bs; i++ {
				if d := abs32(got[i] - src[i]); d > tol {
					t.Fatalf("%s: element %d: got %v want %v (|diff| %v > %v)", f, i, got[i], src[i], d, tol)
				}
			}
		}
	}
}

func TestRoundTripKQuantError(t *testing.T) {
	t.Parallel()
	limits := map[Format]float64{
		Q4K: 0.2,
		Q6K: 0.05,
	}
	for f, limit := range limits {
		src := randn(16*QKK, uint64(f)+7)
		got := decode(t, f, encode(t, f, src), len(src))
		var errSum, absSum float64
		for i := range src {
			errSum += math.Abs(float64(got[i] - src[i]))
			absSum += math.Abs(float64(src[i]))
		}
		if rel := errSum / absSum; rel > limit {
			t.Fatalf("%s: relative error %.4f exceeds %.2f", f, rel, limit)
		}
	}
}

func TestFloatFormats(t *testing.T) {
	t.Parallel()
	src := randn(100, 3)
	src = append(src, 0, float32(math.Copysign(0, -1)), 65504, 1e-8)

	got := decode(t, F32, encode(t, F32, src), len(src))
	for i := range src {
		if math.Float32bits(got[i]) != math.Float32bits(src[i]) {
			t.Fatalf("f32 element %d: got %v want %v", i, got[i], src[i])
		}
	}

	got = decode(t, F16, encode(t, F16, src), len(src))
	for i := range src {
		if want := float16.Fromfloat32(src[i]).Float32(); got[i] != want {
			t.Fatalf("f16 element %d: got %v want %v", i, got[i], want)
		}
	}

	got = decode(t, BF16, encode(t, BF16, src), len(src))
	for i := range src {
		if d := abs32(got[i] - src[i]); d > abs32(src[i])/256 {
			t.Fatalf("bf16 element %d: got %v want %v", i, got[i], src[i])
		}
	}
}

func TestBF16RoundsHalfToEven(t *testing.T) {
	t.Parallel()
	// 1 + 2^-8 sits exactly between two bf16 values; the even one is 1.
	v := math.Float32frombits(0x3F808000)
	if got := bf16FromF32(v); got != 0x3F80 {
		t.Fatalf("bf16FromF32 = %#x, want 0x3f80", got)
	}
	v = math.Float32frombits(0x3F818000)
	if got := bf16FromF32(v); got != 0x3F82 {
		t.Fatalf("bf16FromF32 = %#x, want 0x3f82", got)
	}
}

func TestNearestIntHalfToEven(t *testing.T) {
	t.Parallel()
	cases := map[float32]int{0.5: 0, 1.5: 2, 2.5: 2, -0.5: 0, -1.5: -2, 3.49: 3}
	for in, want := range cases {
		if got := nearestInt(in); got != want {
			t.Fatalf("nearestInt(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestZeroBlocks(t *testing.T) {
	t.Parallel()
	for _, f := range Formats() {
		n := max(f.BlockSize(), QKK)
		src := make([]float32, n)
		got := decode(t, f, encode(t, f, src), n)
		for i, v := range got {
			if v != 0 {
				t.Fatalf("%s: element %d = %v, want 0", f, i, v)
			}
		}
	}
}

func TestUnpackMatchesDequantize(t *testing.T) {
	t.Parallel()
	for _, f := range Formats() {
		d := f.Descriptor()
		n := 4 * max(d.BlockSize, QKK)
		src := randn(n, uint64(f)+11)
		packed := encode(t, f, src)
		want := decode(t, f, packed, n)

		levels := make([]float32, d.BlockSize)
		groups := make([]Affine, d.BlockSize/d.GroupSize)
		for b := range n / d.BlockSize {
			block := packed[b*d.TypeSize : (b+1)*d.TypeSize]
			if err := Unpack(f, block, levels, groups); err != nil {
				t.Fatalf("%s: Unpack: %v", f, err)
			}
			for i, l := range levels {
				g := groups[i/d.GroupSize]
				v := float32(g.Scale * l)
				if !d.Symmetric {
					v += g.Offset
				}
				if w := want[b*d.BlockSize+i]; math.Float32bits(v) != math.Float32bits(w) {
					t.Fatalf("%s: block %d element %d: affine %v, decode %v", f, b, i, v, w)
				}
			}
		}
	}
}

func TestUnpackShortInputs(t *testing.T) {
	t.Parallel()
	levels := make([]float32, QK)
	groups := make([]Affine, 1)
	var sre *StructuralReadError
	if err := Unpack(Q8_0, make([]byte, 10), levels, groups); !errors.As(err, &sre) {
		t.Fatalf("expected StructuralReadError, got %v", err)
	}
	if err := Unpack(Q8_0, make([]byte, 34), levels[:8], groups); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected size mismatch, got %v", err)
	}
	if err := Unpack(Q6K, make([]byte, 210), make([]float32, QKK), groups); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected size mismatch for groups, got %v", err)
	}
}

func TestKnownQ4_0Block(t *testing.T) {
	t.Parallel()
	block := make([]byte, 18)
	block[0], block[1] = 0x00, 0x38 // 0.5
	for j := range 16 {
		block[2+j] = 0x98
	}
	got := make([]float32, QK)
	if err := DequantizeBlock(Q4_0, block, got); err != nil {
		t.Fatalf("DequantizeBlock: %v", err)
	}
	for j := range 16 {
		if got[j] != 0 || got[j+16] != 0.5 {
			t.Fatalf("element %d/%d: got %v/%v want 0/0.5", j, j+16, got[j], got[j+16])
		}
	}
}

func TestKnownQ5_0HighBits(t *testing.T) {
	t.Parallel()
	block := make([]byte, 22)
	block[0], block[1] = 0x00, 0x3C // 1.0
	// element 0 gets level 16 (fifth bit only), element 17 level 31.
	block[2] = 0x01
	block[4] = 0x02
	block[6+1] = 0xF0
	got := make([]float32, QK)
	if err := DequantizeBlock(Q5_0, block, got); err != nil {
		t.Fatalf("DequantizeBlock: %v", err)
	}
	if got[0] != 0 {
		t.Fatalf("element 0 = %v, want 0", got[0])
	}
	if got[17] != 15 {
		t.Fatalf("element 17 = %v, want 15", got[17])
	}
	if got[1] != -16 {
		t.Fatalf("element 1 = %v, want -16", got[1])
	}
}

func TestKnownQ4KBlock(t *testing.T) {
	t.Parallel()
	block := make([]byte, 144)
	block[0], block[1] = 0x00, 0x3C // d = 1
	block[2], block[3] = 0x00, 0x38 // dmin = 0.5
	block[4+0] = 2                  // sub-block 0 scale
	block[4+4] = 4                  // sub-block 0 min
	block[4+1] = 3                  // sub-block 1 scale
	block[16] = 0x31
	got := make([]float32, QKK)
	if err := DequantizeBlock(Q4K, block, got); err != nil {
		t.Fatalf("DequantizeBlock: %v", err)
	}
	if got[0] != 0 {
		t.Fatalf("element 0 = %v, want 0", got[0])
	}
	if got[1] != -2 {
		t.Fatalf("element 1 = %v, want -2", got[1])
	}
	if got[32] != 9 {
		t.Fatalf("element 32 = %v, want 9", got[32])
	}
}

func TestKnownQ6KBlock(t *testing.T) {
	t.Parallel()
	block := make([]byte, 210)
	block[208], block[209] = 0x00, 0x3C // d = 1, trailing
	block[192] = 3                      // group 0 scale
	block[0] = 0x05
	block[128] = 0x02
	got := make([]float32, QKK)
	if err := DequantizeBlock(Q6K, block, got); err != nil {
		t.Fatalf("DequantizeBlock: %v", err)
	}
	if got[0] != 15 {
		t.Fatalf("element 0 = %v, want 15", got[0])
	}
	if got[1] != -96 {
		t.Fatalf("element 1 = %v, want -96", got[1])
	}
}

func TestQuantizeBlocksErrors(t *testing.T) {
	t.Parallel()
	err := QuantizeBlocks(Q8_0, make([]float32, 63), make([]byte, 34))
	var ae *AlignmentError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AlignmentError, got %v", err)
	}
	if ae.Elements != 63 || ae.BlockSize != 32 {
		t.Fatalf("unexpected error fields %+v", ae)
	}
	err = QuantizeBlocks(Q8_0, make([]float32, 64), make([]byte, 34))
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected size mismatch, got %v", err)
	}
}

func TestDequantizeShortSource(t *testing.T) {
	t.Parallel()
	src := randn(4*QK, 5)
	packed := encode(t, Q8_0, src)
	full := decode(t, Q8_0, packed, len(src))

	const sentinel = float32(-12345)
	dst := make([]float32, len(src))
	for i := range dst {
		dst[i] = sentinel
	}
	err := DequantizeBlocks(Q8_0, packed[:3*34+10], dst)
	var sre *StructuralReadError
	if !errors.As(err, &sre) {
		t.Fatalf("expected StructuralReadError, got %v", err)
	}
	if sre.Block != 3 || sre.Need != 34 || sre.Have != 10 {
		t.Fatalf("unexpected error fields %+v", sre)
	}
	for i := range 3 * QK {
		if dst[i] != full[i] {
			t.Fatalf("element %d: got %v want %v", i, dst[i], full[i])
		}
	}
	for i := 3 * QK; i < len(dst); i++ {
		if dst[i] != sentinel {
			t.Fatalf("element %d past the failing block was written", i)
		}
	}

	err = DequantizeBlocks(Q8_0, append(packed, 0), dst)
	if !errors.Is(err, ErrStructuralRead) {
		t.Fatalf("expected structural error for trailing bytes, got %v", err)
	}
	err = DequantizeBlocks(Q8_0, packed, make([]float32, 100))
	if !errors.Is(err, ErrAlignment) {
		t.Fatalf("expected alignment error, got %v", err)
	}
}

func TestDequantizeF16IsRoundedFull(t *testing.T) {
	t.Parallel()
	for _, f := range Formats() {
		n := 2 * max(f.BlockSize(), QKK)
		packed := encode(t, f, randn(n, uint64(f)+21))
		full := decode(t, f, packed, n)
		half := make([]float16.Float16, n)
		if err := DequantizeBlocksF16(f, packed, half); err != nil {
			t.Fatalf("%s: DequantizeBlocksF16: %v", f, err)
		}
		for i := range full {
			if want := float16.Fromfloat32(full[i]); half[i] != want {
				t.Fatalf("%s: element %d: got %v want %v", f, i, half[i], want)
			}
		}
	}
}
