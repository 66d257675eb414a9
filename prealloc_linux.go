//go:build linux

package setsketch

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocateFrozen reserves the full snapshot extent (frozenFileSize
// bytes) before Freeze streams the header, regions, and footer into the
// file. Reserving up front surfaces a disk-full condition as an error
// from this call rather than as a partial snapshot.
func preallocateFrozen(file *os.File, size int64) error {
	if err := unix.Fallocate(int(file.Fd()), 0, 0, size); err != nil {
		// Filesystems without fallocate support (NFS among others)
		// reject the call; extending the file is the best available
		// there.
		return file.Truncate(size)
	}
	// fallocate backs the extent with blocks but leaves the end of
	// file where it was.
	return file.Truncate(size)
}
