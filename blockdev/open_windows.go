//go:build windows

package blockdev

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/windows"

	"platter/integrity"
)

const (
	fsctlLockVolume     = 0x90018
	fsctlDismountVolume = 0x90020
	fsctlUnlockVolume   = 0x9001c
)

// OS opens devices on the local machine.
type OS struct{}

var _ integrity.Opener = OS{}

// OpenWrite opens path with FILE_FLAG_WRITE_THROUGH. A drive-letter
// volume is locked and dismounted first and stays locked until the
// returned device is closed.
func (OS) OpenWrite(path string) (integrity.Device, error) {
	if !strings.HasPrefix(path, `\\.\`) {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_SYNC, 0)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return openRaw(path, windows.GENERIC_READ|windows.GENERIC_WRITE, windows.FILE_FLAG_WRITE_THROUGH)
}

// OpenRead opens path for reading with exclusive access.
func (OS) OpenRead(path string) (integrity.Device, error) {
	if !strings.HasPrefix(path, `\\.\`) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return openRaw(path, windows.GENERIC_READ, 0)
}

type lockedDevice struct {
	*os.File
	vol windows.Handle
}

func (d *lockedDevice) Close() error {
	err := d.File.Close()
	unlockVolume(d.vol)
	return err
}

func openRaw(path string, access, flags uint32) (integrity.Device, error) {
	vol, err := lockVolume(path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		access,
		0, // exclusive access for raw disk I/O
		nil,
		windows.OPEN_EXISTING,
		flags,
		0,
	)
	if err != nil {
		unlockVolume(vol)
		return nil, fmt.Errorf("cannot open device %s: %w (ensure you are running as administrator and no programs have the drive open)", path, err)
	}
	f := os.NewFile(uintptr(h), path)
	if f == nil {
		windows.CloseHandle(h)
		unlockVolume(vol)
		return nil, fmt.Errorf("cannot create file from handle")
	}
	return &lockedDevice{File: f, vol: vol}, nil
}

// lockVolume locks and dismounts a drive-letter volume before raw access.
// PhysicalDrive paths need no lock and get a zero handle.
func lockVolume(path string) (windows.Handle, error) {
	if !isVolumePath(path) {
		return 0, nil
	}
	volumePath := `\\.\` + strings.ToUpper(path[4:5]) + `:`
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(volumePath),
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return 0, fmt.Errorf("cannot open volume %s (may need admin privileges): %w", volumePath, err)
	}

	var returned uint32
	if err := windows.DeviceIoControl(h, fsctlLockVolume, nil, 0, nil, 0, &returned, nil); err != nil {
		windows.CloseHandle(h)
		if errors.Is(err, windows.ERROR_NOT_SUPPORTED) {
			return 0, nil
		}
		return 0, fmt.Errorf("cannot lock volume %s (volume may be in use - close all programs accessing it): %w", volumePath, err)
	}
	if err := windows.DeviceIoControl(h, fsctlDismountVolume, nil, 0, nil, 0, &returned, nil); err != nil {
		unlockVolume(h)
		if errors.Is(err, windows.ERROR_NOT_SUPPORTED) {
			return 0, nil
		}
		return 0, fmt.Errorf("cannot dismount volume %s: %w", volumePath, err)
	}
	return h, nil
}

func unlockVolume(h windows.Handle) {
	if h == 0 {
		return
	}
	var returned uint32
	_ = windows.DeviceIoControl(h, fsctlUnlockVolume, nil, 0, nil, 0, &returned, nil)
	windows.CloseHandle(h)
}
