package backend

import (
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// Available returns a comma-separated list of available architectures.
func Available() string {
	return strings.Join([]string{CPU, Parallel}, ",")
}

// Has reports whether arch can be selected in this build.
func Has(name string) bool {
	_, err := Normalize(name)
	return err == nil
}

// Features lists the host CPU features relevant to lane scheduling.
func Features() []string {
	feats := []string{runtime.GOARCH}
	add := func(ok bool, name string) {
		if ok {
			feats = append(feats, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE42, "sse4.2")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasFPHP, "fphp")
		add(cpu.ARM64.HasSVE, "sve")
	}
	return feats
}

// Lanes is the default number of parallel lanes.
func Lanes() int {
	return max(runtime.GOMAXPROCS(0), 1)
}
