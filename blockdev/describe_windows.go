//go:build windows

package blockdev

import (
	"fmt"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	ioctlStorageGetDeviceNumber = 0x2D1080
	ioctlDiskGetLengthInfo      = 0x7405C
)

type storageDeviceNumber struct {
	DeviceType      uint32
	DeviceNumber    uint32
	PartitionNumber uint32
}

func describe(path string) (Descriptor, error) {
	if !strings.HasPrefix(path, `\\.\`) {
		fi, err := os.Stat(path)
		if err != nil {
			return Descriptor{}, err
		}
		if !fi.Mode().IsRegular() {
			return Descriptor{}, fmt.Errorf(`not a regular file or \\.\ device path`)
		}
		return Descriptor{Path: path, Whole: path, Regular: true}, nil
	}

	d := Descriptor{Path: path, Whole: path}
	if isVolumePath(path) {
		// a drive letter is a volume on some disk, never the whole disk
		d.Partition = true
		d.Whole = physicalDriveFor(path)
	}
	return d, nil
}

func isVolumePath(p string) bool {
	if len(p) < 6 {
		return false
	}
	letter := strings.ToUpper(p[4:5])
	return letter >= "A" && letter <= "Z" && p[5] == ':'
}

// physicalDriveFor maps \\.\A: to \\.\PhysicalDriveN if possible.
// If mapping fails, returns the input unchanged.
func physicalDriveFor(p string) string {
	vol := `\\.\` + strings.ToUpper(p[4:5]) + `:`
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(vol),
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return p
	}
	defer windows.CloseHandle(h)

	var out storageDeviceNumber
	var returned uint32
	err = windows.DeviceIoControl(h, ioctlStorageGetDeviceNumber, nil, 0,
		(*byte)(unsafe.Pointer(&out)), uint32(unsafe.Sizeof(out)), &returned, nil)
	if err != nil {
		return p
	}
	return fmt.Sprintf(`\\.\PhysicalDrive%d`, out.DeviceNumber)
}
