// Package retrodfrg provides a fullscreen terminal board showing the
// progress of every device under test, in the style of an old DOS disk
// surface scanner.
package retrodfrg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
)

// ErrInterrupted is returned when the user requests to stop the operation.
var ErrInterrupted = errors.New("interrupted")

const maxLogLines = 1000

// UI renders a title, summary lines, one block per device, a log pane
// and a legend. It is safe for concurrent use.
type UI struct {
	mu       sync.Mutex
	s        tcell.Screen
	stopChan chan struct{}
	once     sync.Once
	done     chan struct{}

	title        string
	summaryLines []string
	legendLines  []string
	devices      []*deviceState
	logLines     []string
	partial      []byte
	logOut       io.Writer
}

// NewUI creates a UI on the terminal. Log lines written to the UI are
// replayed to logOut when it closes.
func NewUI(logOut io.Writer) (*UI, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return NewUIWithScreen(s, logOut)
}

// NewUIWithScreen is NewUI on a caller-supplied screen.
func NewUIWithScreen(s tcell.Screen, logOut io.Writer) (*UI, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	u := &UI{
		s:        s,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		logOut:   logOut,
	}
	go u.eventLoop()
	return u, nil
}

// Close restores the terminal and replays captured log lines.
func (u *UI) Close() {
	u.mu.Lock()
	s := u.s
	u.s = nil
	lines := u.logLines
	if len(u.partial) > 0 {
		lines = append(lines, string(u.partial))
		u.partial = nil
	}
	u.mu.Unlock()
	if s == nil {
		return
	}
	s.Fini()
	<-u.done
	if u.logOut != nil {
		for _, l := range lines {
			fmt.Fprintln(u.logOut, l)
		}
	}
}

// RequestStop signals that the user has requested to stop the current operation.
// It can be called multiple times safely.
func (u *UI) RequestStop() {
	u.once.Do(func() {
		close(u.stopChan)
	})
}

// Stopped is closed once a stop has been requested.
func (u *UI) Stopped() <-chan struct{} { return u.stopChan }

// IsStopped returns true if the user has requested to stop the operation.
func (u *UI) IsStopped() bool {
	select {
	case <-u.stopChan:
		return true
	default:
		return false
	}
}

// Write captures log output for the log pane. It implements io.Writer so
// the UI can sit behind a slog handler while it owns the screen.
func (u *UI) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	buf := append(u.partial, p...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		u.logLines = append(u.logLines, string(buf[:i]))
		buf = buf[i+1:]
	}
	if over := len(u.logLines) - maxLogLines; over > 0 {
		u.logLines = u.logLines[over:]
	}
	u.partial = append([]byte(nil), buf...)
	return len(p), nil
}

// SetTitle sets the title displayed at the top of the UI.
func (u *UI) SetTitle(t string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.title = t
}

// SetSummaryLines sets the summary/info lines displayed below the title.
func (u *UI) SetSummaryLines(lines []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.summaryLines = append([]string(nil), lines...)
}

// SetLegend sets the legend lines displayed at the bottom.
func (u *UI) SetLegend(lines []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.legendLines = append([]string(nil), lines...)
}

// Run redraws every interval until stop is closed.
func (u *UI) Run(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		u.LayoutAndDraw()
		select {
		case <-t.C:
		case <-stop:
			u.LayoutAndDraw()
			return
		}
	}
}

func putStr(s tcell.Screen, x, y int, str string, style tcell.Style) {
	w, _ := s.Size()
	pos := x
	for _, r := range str {
		if pos >= w {
			break // Don't write beyond screen width
		}
		s.SetContent(pos, y, r, nil, style)
		pos++
	}
}

// LayoutAndDraw redraws the entire UI with the current state.
func (u *UI) LayoutAndDraw() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.s == nil {
		return
	}
	u.s.Clear()
	w, h := u.s.Size()
	plain := tcell.StyleDefault
	y := 0

	if u.title != "" {
		putStr(u.s, 0, y, strings.Repeat("═", w), plain)
		centerX := (w - len([]rune(u.title))) / 2
		if centerX < 0 {
			centerX = 0
		}
		putStr(u.s, centerX, y, u.title, plain)
		y++
	}
	for _, line := range u.summaryLines {
		if y >= h {
			break
		}
		putStr(u.s, 0, y, line, plain)
		y++
	}

	now := time.Now()
	for _, d := range u.devices {
		if y+2 >= h {
			break
		}
		putStr(u.s, 0, y, strings.Repeat("─", w), plain)
		putStr(u.s, 2, y, " "+d.path+" ", plain)
		y++
		status, style := d.statusLine(now)
		putStr(u.s, 0, y, status, style)
		y++
		putStr(u.s, 0, y, d.mapLine(w), plain)
		y++
	}

	// log pane takes what is left above the legend
	legendAt := h - len(u.legendLines)
	if y < legendAt-1 && len(u.logLines) > 0 {
		putStr(u.s, 0, y, strings.Repeat("─", w), plain)
		putStr(u.s, 2, y, " Log ", plain)
		y++
		rows := legendAt - y
		start := len(u.logLines) - rows
		if start < 0 {
			start = 0
		}
		for _, line := range u.logLines[start:] {
			putStr(u.s, 0, y, line, plain)
			y++
		}
	}
	for i, line := range u.legendLines {
		if legendAt+i >= 0 {
			putStr(u.s, 0, legendAt+i, line, plain)
		}
	}

	u.s.Show()
}

func (u *UI) eventLoop() {
	defer close(u.done)
	for {
		u.mu.Lock()
		s := u.s
		u.mu.Unlock()
		if s == nil {
			return
		}
		ev := s.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyCtrlC:
				u.RequestStop()
			case ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q'):
				u.RequestStop()
			case ev.Key() == tcell.KeyEscape:
				u.RequestStop()
			}
		case *tcell.EventResize:
			s.Sync()
		case nil:
			return
		}
	}
}
