package integrity

import (
	"log/slog"
	"sync"
)

// Phase is the stage a device test is in.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseWriting
	PhaseReadingBack
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "waiting"
	case PhaseWriting:
		return "writing"
	case PhaseReadingBack:
		return "reading back"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Progress receives advisory updates for a single device. Nothing in the
// test depends on what a Progress does with them.
type Progress interface {
	// Begin starts a pass covering total bytes.
	Begin(phase Phase, total uint64)
	// Advance reports the bytes of the current pass completed so far.
	Advance(done uint64)
	// Mismatch reports a chunk at offset whose content was wrong.
	Mismatch(offset uint64)
	// Finish reports the device's final outcome.
	Finish(o Outcome)
}

// Reporter hands out a Progress per device. It is called once per device
// before that device's task starts.
type Reporter interface {
	Device(path string) Progress
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Device(string) Progress { return Nop{} }
func (Nop) Begin(Phase, uint64)    {}
func (Nop) Advance(uint64)         {}
func (Nop) Mismatch(uint64)        {}
func (Nop) Finish(Outcome)         {}

// LogReporter logs progress through slog every Step percent of a pass.
// It is used when no interactive display is available.
type LogReporter struct {
	Logger *slog.Logger
	Step   int
}

func (r LogReporter) Device(path string) Progress {
	lg := r.Logger
	if lg == nil {
		lg = slog.Default()
	}
	step := r.Step
	if step <= 0 {
		step = 10
	}
	return &logProgress{log: lg.With("device", path), step: step}
}

type logProgress struct {
	mu    sync.Mutex
	log   *slog.Logger
	step  int
	phase Phase
	total uint64
	next  int
}

func (p *logProgress) Begin(phase Phase, total uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase, p.total, p.next = phase, total, p.step
	p.log.Info("pass started", "phase", phase.String(), "bytes", total)
}

func (p *logProgress) Advance(done uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == 0 {
		return
	}
	pct := int(done * 100 / p.total)
	if pct < p.next {
		return
	}
	p.log.Info("progress", "phase", p.phase.String(), "percent", pct, "bytes", done)
	for p.next <= pct {
		p.next += p.step
	}
}

func (p *logProgress) Mismatch(offset uint64) {
	p.log.Debug("chunk mismatch", "offset", offset)
}

func (p *logProgress) Finish(Outcome) {}
