//go:build goexperiment.simd && amd64

// cpu_features prints the x86 features archsimd reports next to the
// capability set the dispatcher detected, and exits non-zero when the two
// disagree on a flag both know about.
package main

import (
	"fmt"
	"os"
	"runtime"
	"simd/archsimd"

	"github.com/goccy/go-json"

	"github.com/samcharles93/qtensor/internal/backend"
)

type output struct {
	GoVersion    string               `json:"go_version"`
	GoOS         string               `json:"go_os"`
	GoArch       string               `json:"go_arch"`
	CPUs         int                  `json:"cpus"`
	Features     map[string]bool      `json:"archsimd"`
	Capabilities backend.Capabilities `json:"capabilities"`
	Mismatches   []string             `json:"mismatches,omitempty"`
}

func main() {
	features := map[string]bool{
		"AVX":        archsimd.X86.AVX(),
		"AVX2":       archsimd.X86.AVX2(),
		"FMA":        archsimd.X86.FMA(),
		"AVX512":     archsimd.X86.AVX512(),
		"AVX512VNNI": archsimd.X86.AVX512VNNI(),
		"AVXVNNI":    archsimd.X86.AVXVNNI(),
	}
	caps := backend.DetectCapabilities()

	out := output{
		GoVersion:    runtime.Version(),
		GoOS:         runtime.GOOS,
		GoArch:       runtime.GOARCH,
		CPUs:         runtime.NumCPU(),
		Features:     features,
		Capabilities: caps,
	}
	for name, got := range map[string]bool{"AVX": caps.AVX, "AVX2": caps.AVX2, "FMA": caps.FMA} {
		if features[name] != got {
			out.Mismatches = append(out.Mismatches, name)
		}
	}

	js, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(js))
	if len(out.Mismatches) > 0 {
		os.Exit(2)
	}
}
