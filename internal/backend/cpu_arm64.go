package backend

import "golang.org/x/sys/cpu"

func detectCPU() Capabilities {
	return Capabilities{
		NEON: cpu.ARM64.HasASIMD,
		FMA:  cpu.ARM64.HasASIMD,
	}
}
