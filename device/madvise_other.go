//go:build !linux

package device

// adviseHugePages is a no-op on non-Linux platforms.
// MADV_HUGEPAGE is Linux-specific.
func adviseHugePages(m []byte) {
	// No-op
}
