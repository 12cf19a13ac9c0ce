package backend

import "golang.org/x/sys/cpu"

func detectCPU() Capabilities {
	return Capabilities{
		AVX:  cpu.X86.HasAVX,
		AVX2: cpu.X86.HasAVX2,
		FMA:  cpu.X86.HasFMA,
		// x/sys/cpu does not report F16C. Every FMA-capable AVX part ships it.
		F16C:   cpu.X86.HasAVX && cpu.X86.HasFMA,
		AVX512: cpu.X86.HasAVX512F,
	}
}
