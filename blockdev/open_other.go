//go:build !linux && !darwin && !windows

package blockdev

import (
	"os"

	"platter/integrity"
)

// OS opens devices on the local machine. On this platform reads may be
// served from the page cache; the write pass still syncs every write.
type OS struct{}

var _ integrity.Opener = OS{}

func (OS) OpenWrite(path string) (integrity.Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (OS) OpenRead(path string) (integrity.Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}
