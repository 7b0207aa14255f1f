//go:build darwin

package blockdev

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// DKIOCGETPHYSICALBLOCKSIZE is _IOR('d', 77, uint32_t).
const dkiocGetPhysicalBlockSize = 0x4004644d

// physicalBlockSize is zero when path does not answer the ioctl.
func physicalBlockSize(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	// the kernel fills a uint32; IoctlGetInt's zeroed int holds it
	n, err := unix.IoctlGetInt(int(f.Fd()), dkiocGetPhysicalBlockSize)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

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

	d := Descriptor{Path: path, Whole: path}
	// Partition if there's an 's' immediately followed by a digit (e.g., disk2s1, rdisk3s2)
	name := filepath.Base(path)
	for i := 0; i+1 < len(name); i++ {
		if name[i] == 's' && name[i+1] >= '0' && name[i+1] <= '9' && i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
			d.Partition = true
			d.Whole = filepath.Join("/dev", name[:i])
			break
		}
	}

	d.PhysicalBlockSize = physicalBlockSize(path)
	// IOKit is needed for the rotational flag; leave the media unknown.
	d.MountedAt = mountedAt(d)
	return d, nil
}

func mountedAt(d Descriptor) []string {
	whole := strings.TrimPrefix(filepath.Base(d.Whole), "r")
	var out []string
	for _, m := range listMounted() {
		from := strings.TrimPrefix(filepath.Base(m.Device), "r")
		if from == whole || strings.HasPrefix(from, whole+"s") {
			out = append(out, m.MountPoint)
		}
	}
	return out
}

type mountedVol struct {
	MountPoint string
	Device     string
	FSType     string
}

func listMounted() []mountedVol {
	n, err := unix.Getfsstat(nil, unix.MNT_NOWAIT)
	if err != nil || n <= 0 {
		return nil
	}
	buf := make([]unix.Statfs_t, n)
	if _, err := unix.Getfsstat(buf, unix.MNT_NOWAIT); err != nil {
		return nil
	}
	var out []mountedVol
	for _, st := range buf {
		out = append(out, mountedVol{
			MountPoint: filepath.Clean(cString(st.Mntonname[:])),
			Device:     cString(st.Mntfromname[:]),
			FSType:     cString(st.Fstypename[:]),
		})
	}
	return out
}

func cString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
