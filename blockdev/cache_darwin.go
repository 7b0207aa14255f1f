//go:build darwin

package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const exclusiveFlag = 0

// bypassWriteCache keeps the write pass out of the unified buffer cache,
// so no page it leaves behind can answer the read-back.
func bypassWriteCache(f *os.File) error {
	return setNoCache(f)
}

func dropCache(f *os.File) error {
	return setNoCache(f)
}

func setNoCache(f *os.File) error {
	if _, err := unix.FcntlInt(f.Fd(), unix.F_NOCACHE, 1); err != nil {
		return fmt.Errorf("F_NOCACHE: %w", err)
	}
	return nil
}
