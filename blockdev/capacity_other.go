//go:build !linux && !darwin && !windows

package blockdev

import (
	"io"
	"os"
)

// capacity seeks to the end, which works for files and for the device
// nodes of most BSDs.
func capacity(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	return uint64(size), nil
}
