//go:build linux

package blockdev

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	sysRoot    = "/sys"
	mountsFile = "/proc/self/mounts"
)

func describe(path string) (Descriptor, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Descriptor{}, err
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		return Descriptor{Path: path, Whole: path, Regular: true}, nil
	case unix.S_IFBLK:
	default:
		return Descriptor{}, fmt.Errorf("not a block device or regular file")
	}

	d, err := describeBlock(sysRoot, path, unix.Major(uint64(st.Rdev)), unix.Minor(uint64(st.Rdev)))
	if err != nil {
		return Descriptor{}, err
	}
	if d.PhysicalBlockSize == 0 {
		d.PhysicalBlockSize = ioctlPhysicalBlockSize(path)
	}
	d.MountedAt = mountedAt(d)
	return d, nil
}

// describeBlock reads what sysfs knows about the block device major:minor.
func describeBlock(root, path string, major, minor uint32) (Descriptor, error) {
	link := filepath.Join(root, "dev", "block", fmt.Sprintf("%d:%d", major, minor))
	dir, err := filepath.EvalSymlinks(link)
	if err != nil {
		return Descriptor{}, fmt.Errorf("no sysfs entry for %s: %w", path, err)
	}

	d := Descriptor{Path: path, Whole: path}
	wholeDir := dir
	if _, err := os.Stat(filepath.Join(dir, "partition")); err == nil {
		d.Partition = true
		wholeDir = filepath.Dir(dir)
		d.Whole = filepath.Join("/dev", filepath.Base(wholeDir))
	}

	switch readSysfs(filepath.Join(wholeDir, "queue", "rotational")) {
	case "1":
		d.Media = MediaRotational
	case "0":
		d.Media = MediaSolidState
	}
	if n, err := strconv.Atoi(readSysfs(filepath.Join(wholeDir, "queue", "physical_block_size"))); err == nil && n > 0 {
		d.PhysicalBlockSize = n
	}
	d.Model = readSysfs(filepath.Join(wholeDir, "device", "model"))
	d.Serial = readSysfs(filepath.Join(wholeDir, "device", "serial"))
	return d, nil
}

func readSysfs(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func ioctlPhysicalBlockSize(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	n, err := unix.IoctlGetUint32(int(f.Fd()), unix.BLKPBSZGET)
	if err != nil {
		return 0
	}
	return int(n)
}

type mountEntry struct {
	Source string
	Target string
	FSType string
}

// parseMounts reads the /proc/self/mounts format:
// <src> <target> <fstype> <opts> ...
func parseMounts(r io.Reader) []mountEntry {
	var out []mountEntry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		out = append(out, mountEntry{Source: fields[0], Target: unescapeMount(fields[1]), FSType: fields[2]})
	}
	return out
}

// unescapeMount undoes the octal escapes the kernel uses for spaces and
// tabs in mount paths.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// mountedAt lists mount points whose source is d itself, its whole disk,
// or a partition on the same disk.
func mountedAt(d Descriptor) []string {
	f, err := os.Open(mountsFile)
	if err != nil {
		return nil
	}
	defer f.Close()

	whole := filepath.Base(d.Whole)
	var out []string
	for _, m := range parseMounts(f) {
		if !strings.HasPrefix(m.Source, "/dev/") {
			continue
		}
		src := m.Source
		if resolved, err := filepath.EvalSymlinks(src); err == nil {
			src = resolved
		}
		if src == d.Path || src == d.Whole || belongsTo(filepath.Base(src), whole) {
			out = append(out, m.Target)
		}
	}
	return out
}

// belongsTo reports whether name is a partition of the disk named whole:
// sda -> sda1, nvme0n1 -> nvme0n1p2, mmcblk0 -> mmcblk0p1.
func belongsTo(name, whole string) bool {
	if !strings.HasPrefix(name, whole) || name == whole {
		return false
	}
	rest := name[len(whole):]
	// disks whose name ends in a digit separate the partition number with "p"
	if last := whole[len(whole)-1]; last >= '0' && last <= '9' {
		if !strings.HasPrefix(rest, "p") {
			return false
		}
		rest = rest[1:]
	}
	if rest == "" {
		return false
	}
	_, err := strconv.Atoi(rest)
	return err == nil
}
