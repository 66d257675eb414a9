//go:build darwin

package setsketch

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocateFrozen reserves the full snapshot extent (frozenFileSize
// bytes) before Freeze streams the header, regions, and footer into the
// file. macOS has no fallocate; space reservation goes through
// fcntl(F_PREALLOCATE) instead.
func preallocateFrozen(file *os.File, size int64) error {
	store := unix.Fstore_t{
		Flags:   unix.F_ALLOCATEALL, // all of the extent, or fail
		Posmode: unix.F_PEOFPOSMODE,
		Offset:  0,
		Length:  size,
	}
	if err := unix.FcntlFstore(file.Fd(), unix.F_PREALLOCATE, &store); err != nil {
		return file.Truncate(size)
	}
	// F_PREALLOCATE reserves space but leaves the end of file where it
	// was.
	return file.Truncate(size)
}
