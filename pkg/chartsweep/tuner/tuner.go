// Package tuner detects CPU and memory resources and sizes chartsweep's
// worker pools and caches from them.
package tuner

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the free RAM in bytes. May be an estimate.
	AvailableRAM int64
}
