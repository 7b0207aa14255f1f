// Package integrity implements the destructive write/read-back test run
// against each device: the write pass, the verify pass, the per-device
// classification and the concurrent run over many devices.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/time/rate"
)

// DefaultBufferSize is used when neither the caller nor the device
// supplies a block size.
const DefaultBufferSize = 8192

// TestOptions is the fixed configuration of one device's test.
type TestOptions struct {
	// BufferSize is the number of bytes per I/O operation (one chunk).
	BufferSize int
	// Seed selects the content stream. All devices in a run share it.
	Seed uint64
	// Capacity is the number of bytes exercised, probed once up front.
	Capacity uint64
	// MaxRate caps throughput in bytes per second. Zero means no cap.
	MaxRate float64
}

// Validate reports whether the options can drive a test.
func (o TestOptions) Validate() error {
	if o.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive, got %d", o.BufferSize)
	}
	if o.MaxRate < 0 {
		return fmt.Errorf("max rate must not be negative, got %g", o.MaxRate)
	}
	return nil
}

// Chunks returns the number of chunks covering Capacity, counting a
// trailing partial chunk.
func (o TestOptions) Chunks() uint64 {
	if o.BufferSize <= 0 {
		return 0
	}
	b := uint64(o.BufferSize)
	return (o.Capacity + b - 1) / b
}

// chunkLen is the length of the chunk at off; only the last one can be
// shorter than BufferSize.
func (o TestOptions) chunkLen(off uint64) int {
	if rest := o.Capacity - off; rest < uint64(o.BufferSize) {
		return int(rest)
	}
	return o.BufferSize
}

// Device is an open handle on the extent under test.
type Device interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
}

// Opener opens devices for each pass. OpenWrite should request
// write-through where the platform has it; OpenRead should bypass or
// drop cached pages so the read-back observes the media.
type Opener interface {
	OpenWrite(path string) (Device, error)
	OpenRead(path string) (Device, error)
}

// WriteError reports where and why the write pass stopped.
type WriteError struct {
	Offset uint64
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write at offset %d: %v", e.Offset, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError reports where and why the verify pass stopped.
type ReadError struct {
	Offset uint64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read at offset %d: %v", e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// errShortRead is returned when a device yields fewer bytes than its
// probed capacity promised.
var errShortRead = errors.New("short read")

// throttle paces a pass to TestOptions.MaxRate. A nil throttle never waits.
type throttle struct {
	lim *rate.Limiter
}

func newThrottle(o TestOptions) *throttle {
	if o.MaxRate <= 0 {
		return nil
	}
	burst := o.BufferSize
	if int(o.MaxRate) > burst {
		burst = int(o.MaxRate)
	}
	return &throttle{lim: rate.NewLimiter(rate.Limit(o.MaxRate), burst)}
}

func (t *throttle) wait(ctx context.Context, n int) error {
	if t == nil {
		return nil
	}
	return t.lim.WaitN(ctx, n)
}
