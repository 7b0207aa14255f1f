package integrity

import (
	"context"
	"fmt"
	"io"

	"platter/integrity/pattern"
)

// Write opens path and runs the write pass over it.
func Write(ctx context.Context, o Opener, path string, opts TestOptions, p Progress) error {
	dev, err := o.OpenWrite(path)
	if err != nil {
		return &WriteError{Offset: 0, Err: fmt.Errorf("open for writing: %w", err)}
	}
	werr := WriteDevice(ctx, dev, opts, p)
	if cerr := dev.Close(); cerr != nil && werr == nil {
		werr = &WriteError{Offset: opts.Capacity, Err: fmt.Errorf("close: %w", cerr)}
	}
	return werr
}

// WriteDevice fills dev with the stream for opts.Seed from offset 0 to
// opts.Capacity, one chunk at a time and strictly in offset order, then
// flushes it. The first failed or short write ends the pass; there are
// no retries.
func WriteDevice(ctx context.Context, dev Device, opts TestOptions, p Progress) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if p == nil {
		p = Nop{}
	}
	src := pattern.New(opts.Seed)
	buf := make([]byte, opts.BufferSize)
	thr := newThrottle(opts)

	p.Begin(PhaseWriting, opts.Capacity)
	var off uint64
	for off < opts.Capacity {
		if err := context.Cause(ctx); err != nil {
			return &WriteError{Offset: off, Err: err}
		}
		chunk := buf[:opts.chunkLen(off)]
		src.Fill(off, chunk)
		if err := thr.wait(ctx, len(chunk)); err != nil {
			return &WriteError{Offset: off, Err: err}
		}

		n, err := dev.WriteAt(chunk, int64(off))
		if err == nil && n < len(chunk) {
			err = io.ErrShortWrite
		}
		if err != nil {
			return &WriteError{Offset: off, Err: err}
		}
		off += uint64(n)
		p.Advance(off)
	}

	if err := dev.Sync(); err != nil {
		return &WriteError{Offset: off, Err: fmt.Errorf("flush: %w", err)}
	}
	return nil
}
