package retrodfrg

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"platter/integrity"
)

// mapCells is the resolution of a device's surface map. It is scaled to
// the screen width when drawn.
const mapCells = 512

type cell uint8

const (
	cellEmpty cell = iota
	cellWritten
	cellVerified
	cellBad
)

var glyphs = [...]rune{
	cellEmpty:    '░',
	cellWritten:  '▒',
	cellVerified: '█',
	cellBad:      'B',
}

// Legend describes the map glyphs.
const Legend = "Legend:  ░ pending   ▒ written   █ verified   B mismatch | Q to quit"

// Device registers path on the board and returns its progress sink.
// Devices are drawn in registration order.
func (u *UI) Device(path string) integrity.Progress {
	u.mu.Lock()
	defer u.mu.Unlock()
	d := &deviceState{ui: u, path: path}
	u.devices = append(u.devices, d)
	return d
}

var _ integrity.Reporter = (*UI)(nil)

// deviceState is one device's row. All fields are guarded by ui.mu.
type deviceState struct {
	ui    *UI
	path  string
	phase integrity.Phase
	total uint64
	done  uint64
	start time.Time
	bad   uint64
	cells [mapCells]cell

	finished bool
	outcome  integrity.Outcome
}

func (d *deviceState) Begin(phase integrity.Phase, total uint64) {
	d.ui.mu.Lock()
	defer d.ui.mu.Unlock()
	d.phase = phase
	if phase == integrity.PhaseDone {
		return
	}
	d.total, d.done, d.start = total, 0, time.Now()
}

func (d *deviceState) Advance(done uint64) {
	d.ui.mu.Lock()
	defer d.ui.mu.Unlock()
	from := d.cellOf(d.done)
	d.done = done
	to := d.cellOf(done)
	if done >= d.total {
		to = mapCells
	}
	mark := cellWritten
	if d.phase == integrity.PhaseReadingBack {
		mark = cellVerified
	}
	for i := from; i < to; i++ {
		if d.cells[i] != cellBad {
			d.cells[i] = mark
		}
	}
}

func (d *deviceState) Mismatch(offset uint64) {
	d.ui.mu.Lock()
	defer d.ui.mu.Unlock()
	d.bad++
	if i := d.cellOf(offset); i < mapCells {
		d.cells[i] = cellBad
	}
}

func (d *deviceState) Finish(o integrity.Outcome) {
	d.ui.mu.Lock()
	defer d.ui.mu.Unlock()
	d.finished = true
	d.outcome = o
}

func (d *deviceState) cellOf(offset uint64) int {
	if d.total == 0 {
		return 0
	}
	return int(offset * mapCells / d.total)
}

func (d *deviceState) statusLine(now time.Time) (string, tcell.Style) {
	style := tcell.StyleDefault
	if d.finished {
		switch d.outcome.Kind {
		case integrity.Good:
			style = style.Foreground(tcell.ColorGreen)
			return "GOOD - all data verified", style
		case integrity.Bad:
			style = style.Foreground(tcell.ColorRed).Bold(true)
			return fmt.Sprintf("BAD - %d mismatching chunks - RMA the drive", d.outcome.Mismatches), style
		default:
			style = style.Foreground(tcell.ColorYellow)
			return fmt.Sprintf("UNCERTAIN - %v", d.outcome.Err), style
		}
	}
	if d.phase == integrity.PhaseNotStarted {
		return "waiting", style
	}

	elapsed := now.Sub(d.start).Truncate(time.Second)
	var rate float64
	if elapsed > 0 {
		rate = float64(d.done) / elapsed.Seconds()
	}
	etaStr := "—"
	if rate > 0 && d.total >= d.done {
		eta := time.Duration(float64(d.total-d.done) / rate * float64(time.Second)).Truncate(time.Second)
		etaStr = eta.String()
	}
	line := fmt.Sprintf("%-12s %s / %s  %s/s  Elapsed: %s  ETA: %s",
		d.phase, Human(d.done), Human(d.total), Human(uint64(rate)), elapsed, etaStr)
	if d.bad > 0 {
		line += fmt.Sprintf("  mismatches: %d", d.bad)
		style = style.Foreground(tcell.ColorRed)
	}
	return line, style
}

// mapLine scales the surface map to width runes. A screen cell shows the
// worst state of the map cells it covers.
func (d *deviceState) mapLine(width int) string {
	if width <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(width * 3)
	for col := 0; col < width; col++ {
		lo := col * mapCells / width
		hi := (col + 1) * mapCells / width
		if hi <= lo {
			hi = lo + 1
		}
		c := d.cells[lo]
		for i := lo; i < hi && i < mapCells; i++ {
			c = worse(c, d.cells[i])
		}
		b.WriteRune(glyphs[c])
	}
	return b.String()
}

// worse orders cells by how much they matter to the operator: a bad
// chunk always shows, pending beats done.
func worse(a, b cell) cell {
	rank := func(c cell) int {
		switch c {
		case cellBad:
			return 3
		case cellEmpty:
			return 2
		case cellWritten:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
