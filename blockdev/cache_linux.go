//go:build linux

package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// O_EXCL on a block device fails with EBUSY while anything else holds it
// open exclusively, including a mounted filesystem. It is ignored for
// regular files.
const exclusiveFlag = unix.O_EXCL

// bypassWriteCache is a no-op: O_DSYNC writes and dropCache before the
// read-back cover Linux.
func bypassWriteCache(*os.File) error { return nil }

func dropCache(f *os.File) error {
	fd := int(f.Fd())
	if err := unix.Fdatasync(fd); err != nil {
		return fmt.Errorf("fdatasync: %w", err)
	}
	if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeDevice != 0 {
		// needs CAP_SYS_ADMIN; fadvise below covers the unprivileged case
		_, _, _ = unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKFLSBUF, 0)
	}
	if err := unix.Fadvise(fd, 0, 0, unix.FADV_DONTNEED); err != nil {
		return fmt.Errorf("fadvise: %w", err)
	}
	return nil
}
