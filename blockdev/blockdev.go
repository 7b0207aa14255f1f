// Package blockdev decides whether a path may be used as a destructive
// test target and opens it for the write and read-back passes.
//
// Platform code lives in the build-tagged files; callers only need the
// Validator interface and OS.
package blockdev

import (
	"fmt"
	"strings"

	"platter/integrity"
)

// Media classifies the storage behind a device.
type Media int

const (
	MediaUnknown Media = iota
	MediaRotational
	MediaSolidState
)

func (m Media) String() string {
	switch m {
	case MediaRotational:
		return "rotational"
	case MediaSolidState:
		return "solid-state"
	default:
		return "unknown"
	}
}

// Descriptor is what the platform could learn about a path.
type Descriptor struct {
	Path string
	// Whole is the whole-disk device the path belongs to. It equals Path
	// unless Path is a partition.
	Whole     string
	Partition bool
	// Regular is set for plain files such as disk images.
	Regular bool
	// PhysicalBlockSize is zero when the platform does not report one.
	PhysicalBlockSize int
	Media             Media
	// MountedAt lists mount points of the device or any of its partitions.
	MountedAt []string
	Model     string
	Serial    string
}

// Policy relaxes the sanity checks applied by Validate.
type Policy struct {
	AllowAnyMedia       bool
	AllowAnyBlockDevice bool
	// SkipSanityChecks disables every check and admits regular files.
	SkipSanityChecks bool
}

// Validator turns a path into a checked Descriptor and probes its size.
type Validator interface {
	Validate(path string) (Descriptor, error)
	Capacity(d Descriptor) (uint64, error)
}

// ValidationError means a path must not be tested. It only ever excludes
// that one device.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("refusing to test %s: %s", e.Path, e.Reason)
}

// System is the Validator for the running platform.
type System struct {
	Policy Policy
}

// Validate describes path and applies the policy checks.
func (s System) Validate(path string) (Descriptor, error) {
	d, err := describe(path)
	if err != nil {
		return Descriptor{}, &ValidationError{Path: path, Reason: err.Error()}
	}
	if err := Check(d, s.Policy); err != nil {
		return d, err
	}
	return d, nil
}

// Capacity returns the addressable size of d in bytes.
func (System) Capacity(d Descriptor) (uint64, error) {
	n, err := capacity(d.Path)
	if err != nil {
		return 0, fmt.Errorf("determining device capacity of %s: %w", d.Path, err)
	}
	return n, nil
}

// Check applies the sanity rules of p to d.
func Check(d Descriptor, p Policy) error {
	if p.SkipSanityChecks {
		return nil
	}
	reject := func(format string, args ...any) error {
		return &ValidationError{Path: d.Path, Reason: fmt.Sprintf(format, args...)}
	}
	if d.Regular {
		return reject("not a block device (use --i-know-what-im-doing-let-me-skip-sanity-checks to test a file)")
	}
	if len(d.MountedAt) > 0 {
		return reject("device is mounted at %s", strings.Join(d.MountedAt, ", "))
	}
	if d.Partition && !p.AllowAnyBlockDevice {
		return reject("%s is a partition of %s, not a whole disk (use --allow-any-block-device)", d.Path, d.Whole)
	}
	if d.Media != MediaRotational && !p.AllowAnyMedia {
		return reject("media type is %s, not a spinning disk (use --allow-any-media)", d.Media)
	}
	return nil
}

// BufferSize picks the chunk size for d: the override if set, else the
// physical block size, else integrity.DefaultBufferSize.
func BufferSize(d Descriptor, override int) int {
	if override > 0 {
		return override
	}
	if d.PhysicalBlockSize > 0 {
		return d.PhysicalBlockSize
	}
	return integrity.DefaultBufferSize
}
