//go:build !unix

package transactor

// isCrossDevice is always false where EXDEV is not reported; the copy
// fallback still applies to any failed rename.
func isCrossDevice(error) bool {
	return false
}
