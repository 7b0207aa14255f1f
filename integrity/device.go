package integrity

import (
	"context"
	"fmt"
	"log/slog"
)

// Kind is the final classification of a device.
type Kind int

const (
	// Good: every chunk read back exactly as written.
	Good Kind = iota
	// Bad: the read-back completed and at least one chunk was wrong.
	Bad
	// Uncertain: an I/O error stopped a pass, so the media state is unknown.
	Uncertain
)

func (k Kind) String() string {
	switch k {
	case Good:
		return "good"
	case Bad:
		return "bad"
	case Uncertain:
		return "uncertain"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Outcome is the verdict for one device. It is built once at the end of
// the device's task and not changed afterwards.
type Outcome struct {
	Kind       Kind
	Path       string
	Mismatches uint64
	BadOffsets []uint64
	// Err is the write or read error behind an Uncertain outcome.
	Err error
}

func (o Outcome) String() string {
	switch o.Kind {
	case Bad:
		return fmt.Sprintf("%s: bad (%d mismatching chunks)", o.Path, o.Mismatches)
	case Uncertain:
		return fmt.Sprintf("%s: uncertain (%v)", o.Path, o.Err)
	default:
		return fmt.Sprintf("%s: %s", o.Path, o.Kind)
	}
}

// TestDevice runs the write pass and, only if it succeeds, the verify
// pass against path, and classifies the device:
//
//	write failed            -> Uncertain (read-back skipped)
//	read-back I/O error     -> Uncertain
//	read-back, n mismatches -> Bad
//	read-back, no mismatch  -> Good
func TestDevice(ctx context.Context, o Opener, path string, opts TestOptions, p Progress) Outcome {
	if p == nil {
		p = Nop{}
	}
	log := slog.Default().With("device", path)
	out := classify(ctx, o, path, opts, p, log)
	p.Begin(PhaseDone, 0)
	p.Finish(out)
	return out
}

func classify(ctx context.Context, o Opener, path string, opts TestOptions, p Progress, log *slog.Logger) Outcome {
	if err := Write(ctx, o, path, opts, p); err != nil {
		log.Error("write test failed, skipping read-back test. Uncertain if the device works.", "error", err)
		return Outcome{Kind: Uncertain, Path: path, Err: fmt.Errorf("during write test: %w", err)}
	}
	log.Info("write test succeeded")

	rep, err := Verify(ctx, o, path, opts, p)
	if err != nil {
		log.Error("read-back test resulted in an error. Uncertain if the device works.", "error", err)
		return Outcome{Kind: Uncertain, Path: path, Err: fmt.Errorf("during read test: %w", err)}
	}
	if !rep.OK() {
		log.Error("Data on disk is inconsistent/corrupted. THIS IS BAD - RMA THE DRIVE!",
			"bad_blocks", rep.Mismatches, "first_bad_offsets", rep.BadOffsets)
		return Outcome{Kind: Bad, Path: path, Mismatches: rep.Mismatches, BadOffsets: rep.BadOffsets}
	}
	log.Info("read-back test succeeded", "bytes", rep.Bytes)
	return Outcome{Kind: Good, Path: path}
}
