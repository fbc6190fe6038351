//go:build linux

package device

import "golang.org/x/sys/unix"

// adviseHugePages asks the kernel to back the mapping with transparent
// huge pages. Large sort buffers are streamed linearly every pass, so THP
// cuts TLB pressure. Best-effort: errors are silently ignored.
func adviseHugePages(m []byte) {
	_ = unix.Madvise(m, unix.MADV_HUGEPAGE)
}
