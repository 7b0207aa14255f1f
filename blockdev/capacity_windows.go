//go:build windows

package blockdev

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

func capacity(path string) (uint64, error) {
	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
		return uint64(fi.Size()), nil
	}

	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return 0, fmt.Errorf("cannot open device %s: %w", path, err)
	}
	defer windows.CloseHandle(h)

	var length int64
	var returned uint32
	err = windows.DeviceIoControl(h, ioctlDiskGetLengthInfo, nil, 0,
		(*byte)(unsafe.Pointer(&length)), uint32(unsafe.Sizeof(length)), &returned, nil)
	if err != nil {
		return 0, fmt.Errorf("IOCTL_DISK_GET_LENGTH_INFO: %w", err)
	}
	return uint64(length), nil
}
