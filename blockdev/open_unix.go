//go:build linux || darwin

package blockdev

import (
	"os"

	"golang.org/x/sys/unix"

	"platter/integrity"
)

// OS opens devices on the local machine.
type OS struct{}

var _ integrity.Opener = OS{}

// OpenWrite opens path with O_DSYNC so a write returns only once the
// data has reached the device.
func (OS) OpenWrite(path string) (integrity.Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_DSYNC|exclusiveFlag, 0)
	if err != nil {
		return nil, err
	}
	if err := bypassWriteCache(f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// OpenRead opens path for reading and drops or bypasses the page cache
// for it, so the read-back comes from the media rather than from memory.
func (OS) OpenRead(path string) (integrity.Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|exclusiveFlag, 0)
	if err != nil {
		return nil, err
	}
	if err := dropCache(f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
