//go:build linux

package setsketch

import "golang.org/x/sys/unix"

// prefaultRead asks the kernel to fault in pages of a read-only mapping
// ahead of first use, so early probes don't each pay a page fault.
// Best-effort: errors are silently ignored.
func prefaultRead(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Madvise(data, unix.MADV_WILLNEED)
}
