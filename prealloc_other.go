//go:build !linux && !darwin

package setsketch

import "os"

// preallocateFrozen extends the file to the snapshot size. With no
// native reservation syscall on this platform the blocks are not
// guaranteed to be backed, so a full disk can still surface mid-write
// in Freeze rather than here.
func preallocateFrozen(file *os.File, size int64) error {
	return file.Truncate(size)
}
