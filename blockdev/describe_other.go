//go:build !linux && !darwin && !windows

package blockdev

import (
	"fmt"
	"os"
)

// describe on platforms without a device model only tells files from
// devices; partition, media and mount state stay unknown.
func describe(path string) (Descriptor, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Descriptor{}, err
	}
	if fi.Mode().IsRegular() {
		return Descriptor{Path: path, Whole: path, Regular: true}, nil
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return Descriptor{}, fmt.Errorf("not a block device or regular file")
	}
	return Descriptor{Path: path, Whole: path}, nil
}
