package integrity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Job is one device to test with its options already resolved.
type Job struct {
	Path    string
	Options TestOptions
}

// TaskFault is a failure inside a device task that is not a device
// error, such as a panic. It invalidates the whole run.
type TaskFault struct {
	Path  string
	Value any
	Stack []byte
}

func (f *TaskFault) Error() string {
	return fmt.Sprintf("panic in data-integrity test for %s: %v", f.Path, f.Value)
}

// Result holds every device outcome in the order the jobs were given.
type Result struct {
	Outcomes []Outcome
}

// Succeeded returns the Good outcomes.
func (r Result) Succeeded() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Kind == Good {
			out = append(out, o)
		}
	}
	return out
}

// Failed returns every outcome that is not Good.
func (r Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Kind != Good {
			out = append(out, o)
		}
	}
	return out
}

// AllGood reports whether every device is Good.
func (r Result) AllGood() bool {
	return len(r.Failed()) == 0
}

// LogSummary writes the aggregate verdict.
func (r Result) LogSummary(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	if ok := r.Succeeded(); len(ok) > 0 {
		log.Info("Devices have succeeded validation!", "devices", paths(ok))
	}
	if bad := r.Failed(); len(bad) > 0 {
		log.Error("Devices have failed validation. You should return them.", "devices", paths(bad))
	}
}

func paths(outs []Outcome) []string {
	out := make([]string, len(outs))
	for i, o := range outs {
		out[i] = o.Path
	}
	return out
}

// Run tests every job concurrently, one goroutine per device, and
// returns the outcomes in job order. Device errors never escape a task;
// they become Uncertain outcomes. A task that panics cancels every other
// task and makes Run return a *TaskFault (joined if several) and no
// Result, because the tool itself misbehaved and no verdict can be
// trusted.
func Run(ctx context.Context, o Opener, jobs []Job, r Reporter) (Result, error) {
	for _, j := range jobs {
		if err := j.Options.Validate(); err != nil {
			return Result{}, fmt.Errorf("options for %s: %w", j.Path, err)
		}
	}
	if r == nil {
		r = Nop{}
	}

	type slot struct {
		outcome Outcome
		fault   error
	}
	slots := make([]slot, len(jobs))

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	for i, j := range jobs {
		i, j := i, j
		p := r.Device(j.Path)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					fault := &TaskFault{Path: j.Path, Value: v, Stack: debug.Stack()}
					slots[i].fault = fault
					// the other devices stop at their next chunk
					cancel(fault)
				}
			}()
			slog.Info("Starting test", "device", j.Path, "seed", j.Options.Seed,
				"capacity", j.Options.Capacity, "buffer_size", j.Options.BufferSize)
			slots[i].outcome = TestDevice(ctx, o, j.Path, j.Options, p)
		}()
	}
	wg.Wait()

	res := Result{Outcomes: make([]Outcome, 0, len(jobs))}
	var faults []error
	for _, s := range slots {
		if s.fault != nil {
			faults = append(faults, s.fault)
			continue
		}
		res.Outcomes = append(res.Outcomes, s.outcome)
	}
	if len(faults) > 0 {
		return Result{}, errors.Join(faults...)
	}
	return res, nil
}
