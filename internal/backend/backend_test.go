package backend

import (
	"errors"
	"testing"

	"github.com/samcharles93/qtensor/pkg/quant"
)

func TestParseKind(t *testing.T) {
	t.Parallel()
	cases := map[string]Kind{
		"":         Auto,
		"auto":     Auto,
		" AUTO ":   Auto,
		"scalar":   Scalar,
		"cpu":      Scalar,
		"simd":     SIMD,
		"vector":   SIMD,
		"parallel": Parallel,
		"Threads":  Parallel,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseKind(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseKind("cuda"); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestKindText(t *testing.T) {
	t.Parallel()
	for _, k := range append(Kinds(), Auto) {
		b, err := k.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%s): %v", k, err)
		}
		var got Kind
		if err := got.UnmarshalText(b); err != nil || got != k {
			t.Fatalf("round trip %s -> %s (%v)", k, got, err)
		}
	}
}

func TestResolveThreads(t *testing.T) {
	t.Parallel()
	fallback := ResolveThreads(nil)
	if fallback < 1 {
		t.Fatalf("fallback threads = %d", fallback)
	}
	cases := []struct {
		name  string
		value string
		set   bool
		want  int
	}{
		{"unset", "", false, fallback},
		{"positive", "3", true, 3},
		{"padded", " 12 ", true, 12},
		{"zero", "0", true, fallback},
		{"negative", "-4", true, fallback},
		{"garbage", "many", true, fallback},
		{"empty", "", true, fallback},
	}
	for _, tc := range cases {
		lookup := func(key string) (string, bool) {
			if key != EnvThreads {
				t.Fatalf("unexpected key %q", key)
			}
			return tc.value, tc.set
		}
		if got := ResolveThreads(lookup); got != tc.want {
			t.Fatalf("%s: ResolveThreads = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestCapabilitiesAvailable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		caps Capabilities
		want map[Kind]bool
	}{
		{"bare", Capabilities{Threads: 1}, map[Kind]bool{Auto: true, Scalar: true, SIMD: false, Parallel: false}},
		{"avx2", Capabilities{AVX2: true, Threads: 1}, map[Kind]bool{Scalar: true, SIMD: true, Parallel: false}},
		{"avx only", Capabilities{AVX: true, FMA: true, Threads: 8}, map[Kind]bool{SIMD: false, Parallel: true}},
		{"neon", Capabilities{NEON: true, Threads: 2}, map[Kind]bool{SIMD: true, Parallel: true}},
		{"wasm", Capabilities{SIMD128: true}, map[Kind]bool{SIMD: true, Parallel: false}},
		{"gpu flags", Capabilities{CUDA: true, Metal: true, Threads: 1}, map[Kind]bool{SIMD: false}},
	}
	for _, tc := range cases {
		for k, want := range tc.want {
			if got := tc.caps.Available(k); got != want {
				t.Fatalf("%s: Available(%s) = %v, want %v", tc.name, k, got, want)
			}
		}
	}

	err := Capabilities{Threads: 1}.Check(Parallel)
	var bue *quant.BackendUnavailableError
	if !errors.As(err, &bue) || bue.Backend != "parallel" {
		t.Fatalf("expected BackendUnavailableError, got %v", err)
	}
	if !errors.Is(err, quant.ErrBackendUnavailable) {
		t.Fatalf("errors.Is(ErrBackendUnavailable) = false")
	}
}

func TestCapabilitiesFeatures(t *testing.T) {
	t.Parallel()
	c := Capabilities{AVX2: true, MKL: true, Threads: 4}
	got := c.Features()
	if len(got) != 2 || got[0] != "avx2" || got[1] != "mkl" {
		t.Fatalf("Features = %v", got)
	}
	if b := c.Backends(); len(b) != 3 {
		t.Fatalf("Backends = %v", b)
	}
}

func TestDetectCapabilitiesStable(t *testing.T) {
	t.Parallel()
	a := DetectCapabilities()
	b := DetectCapabilities()
	if a != b {
		t.Fatalf("detection changed between calls: %+v vs %+v", a, b)
	}
	if a.Threads < 1 {
		t.Fatalf("threads = %d", a.Threads)
	}
}
