package tuner

import (
	"runtime"
	"testing"
)

func TestDetect(t *testing.T) {
	r, err := Detect()
	if err != nil {
		t.Fatalf("Detect() returned error: %v", err)
	}
	if r.CPUCores != runtime.NumCPU() {
		t.Errorf("CPUCores = %d, want %d", r.CPUCores, runtime.NumCPU())
	}
	if r.TotalRAM <= 0 {
		t.Errorf("TotalRAM = %d, want > 0", r.TotalRAM)
	}
	if r.AvailableRAM < 0 || r.AvailableRAM > r.TotalRAM {
		t.Errorf("AvailableRAM = %d, want in [0, %d]", r.AvailableRAM, r.TotalRAM)
	}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		resources SystemResources
		want      Pools
	}{
		{
			name:      "single core, little memory",
			resources: SystemResources{CPUCores: 1, AvailableRAM: 64 * 1024 * 1024},
			want:      Pools{WalkWorkers: 4, HashWorkers: 2, ParseWorkers: 2, ListingCache: 256},
		},
		{
			name:      "8 cores, 8GB free",
			resources: SystemResources{CPUCores: 8, AvailableRAM: 8 * 1024 * 1024 * 1024},
			want:      Pools{WalkWorkers: 8, HashWorkers: 16, ParseWorkers: 8, ListingCache: 20971},
		},
		{
			name:      "huge machine is capped",
			resources: SystemResources{CPUCores: 128, AvailableRAM: 1 << 40},
			want:      Pools{WalkWorkers: 32, HashWorkers: 64, ParseWorkers: 64, ListingCache: 65536},
		},
		{
			name:      "zero cores treated as one",
			resources: SystemResources{},
			want:      Pools{WalkWorkers: 4, HashWorkers: 2, ParseWorkers: 2, ListingCache: 256},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Calculate(tt.resources); got != tt.want {
				t.Errorf("Calculate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCalculateWithOverride(t *testing.T) {
	r := SystemResources{CPUCores: 4}

	got := CalculateWithOverride(r, 3)
	if got.HashWorkers != 3 || got.ParseWorkers != 3 {
		t.Errorf("override 3: %+v", got)
	}

	got = CalculateWithOverride(r, 1000)
	if got.HashWorkers != maxWorkers {
		t.Errorf("override capped: HashWorkers = %d, want %d", got.HashWorkers, maxWorkers)
	}

	if CalculateWithOverride(r, 0) != Calculate(r) {
		t.Error("override 0 should match Calculate")
	}
}
