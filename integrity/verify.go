package integrity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"platter/integrity/pattern"
)

// MaxRecordedMismatches bounds VerifyReport.BadOffsets. The mismatch
// count itself is never capped.
const MaxRecordedMismatches = 64

// VerifyReport is the result of a completed verify pass.
type VerifyReport struct {
	// Mismatches is the number of chunks whose content was wrong.
	Mismatches uint64
	// LastOffset is the offset of the last chunk compared.
	LastOffset uint64
	// Bytes is the number of bytes read and compared.
	Bytes uint64
	// BadOffsets holds the first MaxRecordedMismatches bad chunk offsets.
	BadOffsets []uint64
}

// OK reports whether every chunk matched.
func (r VerifyReport) OK() bool { return r.Mismatches == 0 }

// Verify opens path and runs the verify pass over it.
func Verify(ctx context.Context, o Opener, path string, opts TestOptions, p Progress) (VerifyReport, error) {
	dev, err := o.OpenRead(path)
	if err != nil {
		return VerifyReport{}, &ReadError{Offset: 0, Err: fmt.Errorf("open for reading: %w", err)}
	}
	defer dev.Close()
	return VerifyDevice(ctx, dev, opts, p)
}

// VerifyDevice reads dev back in the chunking of the write pass and
// compares each chunk with the regenerated stream. A content mismatch is
// counted and the pass moves on; an I/O error ends the pass with a
// *ReadError because the device state is then unknown.
func VerifyDevice(ctx context.Context, dev Device, opts TestOptions, p Progress) (VerifyReport, error) {
	var rep VerifyReport
	if err := opts.Validate(); err != nil {
		return rep, err
	}
	if p == nil {
		p = Nop{}
	}
	src := pattern.New(opts.Seed)
	got := make([]byte, opts.BufferSize)
	want := make([]byte, opts.BufferSize)
	thr := newThrottle(opts)

	p.Begin(PhaseReadingBack, opts.Capacity)
	var off uint64
	for off < opts.Capacity {
		if err := context.Cause(ctx); err != nil {
			return rep, &ReadError{Offset: off, Err: err}
		}
		l := opts.chunkLen(off)
		if err := thr.wait(ctx, l); err != nil {
			return rep, &ReadError{Offset: off, Err: err}
		}

		n, err := dev.ReadAt(got[:l], int64(off))
		if n == l && errors.Is(err, io.EOF) {
			err = nil
		}
		if err == nil && n < l {
			err = errShortRead
		}
		if err != nil {
			return rep, &ReadError{Offset: off, Err: err}
		}

		src.Fill(off, want[:l])
		if !bytes.Equal(got[:l], want[:l]) {
			rep.Mismatches++
			if len(rep.BadOffsets) < MaxRecordedMismatches {
				rep.BadOffsets = append(rep.BadOffsets, off)
			}
			p.Mismatch(off)
		}
		rep.LastOffset = off
		off += uint64(l)
		rep.Bytes = off
		p.Advance(off)
	}
	return rep, nil
}
