package integrity

import (
	"context"
	"errors"
	"testing"
)

const chunk = 512

func threeChunkOpts() TestOptions {
	return TestOptions{BufferSize: chunk, Seed: 0xfeed, Capacity: 3 * chunk}
}

// corruptAfterWrite zeroes a chunk between the two passes, the way a
// device that drops writes would leave it.
type corruptAfterWrite struct {
	*memOpener
	path  string
	chunk int
}

func (c *corruptAfterWrite) OpenRead(path string) (Device, error) {
	if path == c.path {
		c.devs[path].corrupt(c.chunk*chunk, chunk)
	}
	return c.memOpener.OpenRead(path)
}

func TestTestDevice_Scenarios(t *testing.T) {
	const path = "/dev/sdz"

	tests := []struct {
		name       string
		setup      func() Opener
		want       Kind
		mismatches uint64
		readOpens  int
		cause      any
	}{
		{
			name: "A: clean device is good",
			setup: func() Opener {
				o := newMemOpener()
				o.add(path, newMemDevice(3*chunk))
				return o
			},
			want:      Good,
			readOpens: 1,
		},
		{
			name: "B: zeroed chunk after write is bad",
			setup: func() Opener {
				o := newMemOpener()
				o.add(path, newMemDevice(3*chunk))
				return &corruptAfterWrite{memOpener: o, path: path, chunk: 1}
			},
			want:       Bad,
			mismatches: 1,
			readOpens:  1,
		},
		{
			name: "C: write error is uncertain and skips read-back",
			setup: func() Opener {
				o := newMemOpener()
				o.add(path, newMemDevice(3*chunk)).failWriteAt = 2 * chunk
				return o
			},
			want:      Uncertain,
			readOpens: 0,
			cause:     new(*WriteError),
		},
		{
			name: "D: read error is uncertain, not bad",
			setup: func() Opener {
				o := newMemOpener()
				o.add(path, newMemDevice(3*chunk)).failReadAt = chunk
				return o
			},
			want:      Uncertain,
			readOpens: 1,
			cause:     new(*ReadError),
		},
		{
			name:      "missing device is uncertain",
			setup:     func() Opener { return newMemOpener() },
			want:      Uncertain,
			readOpens: 0,
			cause:     new(*WriteError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.setup()
			rec := &recordingProgress{}
			out := TestDevice(context.Background(), o, path, threeChunkOpts(), rec)

			if out.Kind != tt.want {
				t.Fatalf("expected %s, got %s (%v)", tt.want, out.Kind, out.Err)
			}
			if out.Path != path {
				t.Errorf("expected path %s, got %s", path, out.Path)
			}
			if out.Mismatches != tt.mismatches {
				t.Errorf("expected %d mismatches, got %d", tt.mismatches, out.Mismatches)
			}

			var mo *memOpener
			switch v := o.(type) {
			case *memOpener:
				mo = v
			case *corruptAfterWrite:
				mo = v.memOpener
			}
			if got := mo.readOpens[path]; got != tt.readOpens {
				t.Errorf("expected %d read-back opens, got %d", tt.readOpens, got)
			}

			switch target := tt.cause.(type) {
			case **WriteError:
				if !errors.As(out.Err, target) {
					t.Errorf("expected a write error, got %v", out.Err)
				}
			case **ReadError:
				if !errors.As(out.Err, target) {
					t.Errorf("expected a read error, got %v", out.Err)
				}
			case nil:
				if out.Err != nil {
					t.Errorf("unexpected error %v", out.Err)
				}
			}

			if rec.finished == nil || rec.finished.Kind != tt.want {
				t.Error("progress sink did not receive the final outcome")
			}
			if rec.phases[len(rec.phases)-1] != PhaseDone {
				t.Errorf("last phase %s, expected done", rec.phases[len(rec.phases)-1])
			}
		})
	}
}

func TestTestDevice_PhaseOrder(t *testing.T) {
	o := newMemOpener()
	o.add("/dev/a", newMemDevice(3*chunk))
	rec := &recordingProgress{}

	TestDevice(context.Background(), o, "/dev/a", threeChunkOpts(), rec)

	want := []Phase{PhaseWriting, PhaseReadingBack, PhaseDone}
	if len(rec.phases) != len(want) {
		t.Fatalf("expected phases %v, got %v", want, rec.phases)
	}
	for i := range want {
		if rec.phases[i] != want[i] {
			t.Errorf("phase %d: expected %s, got %s", i, want[i], rec.phases[i])
		}
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{Good, "good"},
		{Bad, "bad"},
		{Uncertain, "uncertain"},
		{Kind(9), "Kind(9)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.expected {
			t.Errorf("Kind(%d).String(): expected %q, got %q", int(tt.kind), tt.expected, got)
		}
	}
}
