package tuner

// Pool limits.
const (
	maxWorkers     = 64
	maxWalkWorkers = 32
	minWalkWorkers = 4
	minHashWorkers = 2
	minListings    = 256
	maxListings    = 65536
)

// bytesPerListing estimates the memory held by one cached folder listing:
// a dozen file names plus map overhead.
const bytesPerListing = 4096

// listingMemoryFraction is the share of available RAM the listing cache may use.
const listingMemoryFraction = 0.01

// Pools holds tuned pool and cache sizes.
type Pools struct {
	// WalkWorkers is the fastwalk worker count for directory traversal.
	WalkWorkers int

	// HashWorkers is the number of concurrent file hashers. Hashing is
	// I/O bound, so it runs above the core count.
	HashWorkers int

	// ParseWorkers is the number of concurrent chart header parsers.
	ParseWorkers int

	// ListingCache is the capacity of the merge resolver's folder listing cache.
	ListingCache int
}

// Calculate returns pool sizes for the given resources.
func Calculate(r SystemResources) Pools {
	cores := max(r.CPUCores, 1)

	return Pools{
		WalkWorkers:  min(max(cores, minWalkWorkers), maxWalkWorkers),
		HashWorkers:  min(max(cores*2, minHashWorkers), maxWorkers),
		ParseWorkers: min(max(cores, minHashWorkers), maxWorkers),
		ListingCache: listingCapacity(r.AvailableRAM),
	}
}

// CalculateWithOverride applies a user worker override (0 = auto) to the
// hash and parse pools.
func CalculateWithOverride(r SystemResources, workers int) Pools {
	p := Calculate(r)
	if workers > 0 {
		w := min(workers, maxWorkers)
		p.HashWorkers = w
		p.ParseWorkers = w
	}
	return p
}

// Auto detects resources and applies the override. Detection errors fall
// back to whatever partial information was gathered.
func Auto(workers int) Pools {
	r, _ := Detect()
	return CalculateWithOverride(r, workers)
}

func listingCapacity(availableRAM int64) int {
	n := int(float64(availableRAM) * listingMemoryFraction / bytesPerListing)
	return min(max(n, minListings), maxListings)
}
