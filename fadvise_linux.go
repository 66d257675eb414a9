//go:build linux

package setsketch

import "golang.org/x/sys/unix"

// fadviseRandom hints to the kernel that the file will be accessed in
// random order, disabling readahead. Applied to frozen filter files,
// whose probe pattern touches scattered words.
// Best-effort: errors are silently ignored.
func fadviseRandom(fd int, length int64) {
	_ = unix.Fadvise(fd, 0, length, unix.FADV_RANDOM)
}
