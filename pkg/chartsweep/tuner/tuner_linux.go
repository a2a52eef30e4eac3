//go:build linux

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect reads the core count and memory figures from sysinfo(2).
func Detect() (SystemResources, error) {
	r := SystemResources{CPUCores: runtime.NumCPU()}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		r.TotalRAM = defaultTotalRAM
		r.AvailableRAM = defaultTotalRAM / 2
		return r, fmt.Errorf("sysinfo: %w", err)
	}
	unit := int64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	r.TotalRAM = int64(info.Totalram) * unit
	r.AvailableRAM = int64(info.Freeram+info.Bufferram) * unit
	return r, nil
}
