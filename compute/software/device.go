package software

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// hasFMA is set when math.FMA compiles to a single instruction on the
// host. Without it math.FMA falls back to a slow exact emulation.
var hasFMA = detectFMA()

func detectFMA() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpu.X86.HasFMA
	case "arm64", "ppc64", "ppc64le", "s390x", "riscv64":
		return true
	}
	return false
}

// HasFMA reports whether kernels should use fused multiply-add.
func HasFMA() bool { return hasFMA }

// DeviceInfo describes the host the software backend runs on.
type DeviceInfo struct {
	Arch     string
	Workers  int
	FMA      bool
	Features []string
}

// String formats the info as "software (amd64, 8 workers, avx2 fma)".
func (d DeviceInfo) String() string {
	s := fmt.Sprintf("software (%s, %d workers", d.Arch, d.Workers)
	if len(d.Features) > 0 {
		s += ", " + strings.Join(d.Features, " ")
	}
	return s + ")"
}

func hostInfo(workers int) DeviceInfo {
	info := DeviceInfo{Arch: runtime.GOARCH, Workers: workers, FMA: hasFMA}
	add := func(has bool, name string) {
		if has {
			info.Features = append(info.Features, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasFPHP, "fphp")
		add(cpu.ARM64.HasSVE, "sve")
	}
	return info
}
