//go:build !darwin && !linux

package tuner

import "runtime"

// Detect returns the core count and a fixed memory estimate.
func Detect() (SystemResources, error) {
	return SystemResources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     defaultTotalRAM,
		AvailableRAM: defaultTotalRAM / 2,
	}, nil
}
