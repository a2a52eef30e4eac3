//go:build darwin

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect reads the core count and hw.memsize. macOS has no cheap free-memory
// figure, so half of total RAM is assumed available.
func Detect() (SystemResources, error) {
	r := SystemResources{CPUCores: runtime.NumCPU()}

	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return r, fmt.Errorf("sysctl hw.memsize: %w", err)
	}
	r.TotalRAM = int64(memsize)
	r.AvailableRAM = r.TotalRAM / 2
	return r, nil
}
