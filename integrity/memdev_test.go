package integrity

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var errInjected = errors.New("injected I/O error")

// memDevice is an in-memory Device with fault injection by chunk offset.
type memDevice struct {
	mu   sync.Mutex
	data []byte

	failWriteAt int64 // -1 disables
	failReadAt  int64 // -1 disables
	shortWrite  bool
	syncErr     error
	writeDelay  time.Duration

	writes []int64
}

func newMemDevice(size int) *memDevice {
	return &memDevice{data: make([]byte, size), failWriteAt: -1, failReadAt: -1}
}

func (d *memDevice) WriteAt(p []byte, off int64) (int, error) {
	if d.writeDelay > 0 {
		time.Sleep(d.writeDelay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if off == d.failWriteAt {
		return 0, errInjected
	}
	if off >= int64(len(d.data)) {
		return 0, io.ErrShortWrite
	}
	d.writes = append(d.writes, off)
	n := copy(d.data[off:], p)
	if d.shortWrite && n > 1 {
		n--
	}
	return n, nil
}

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if off == d.failReadAt {
		return 0, errInjected
	}
	if off >= int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *memDevice) Sync() error  { return d.syncErr }
func (d *memDevice) Close() error { return nil }

// corrupt overwrites length bytes at off with zeros.
func (d *memDevice) corrupt(off, length int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.data[off : off+length])
}

func (d *memDevice) snapshot() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.data...)
}

// memOpener serves memDevices by path and counts opens.
type memOpener struct {
	mu         sync.Mutex
	devs       map[string]*memDevice
	writeOpens map[string]int
	readOpens  map[string]int
	panicOn    string
}

func newMemOpener() *memOpener {
	return &memOpener{
		devs:       make(map[string]*memDevice),
		writeOpens: make(map[string]int),
		readOpens:  make(map[string]int),
	}
}

func (o *memOpener) add(path string, d *memDevice) *memDevice {
	o.devs[path] = d
	return d
}

func (o *memOpener) get(path string) (Device, error) {
	if path == o.panicOn {
		panic("broken opener")
	}
	d, ok := o.devs[path]
	if !ok {
		return nil, fmt.Errorf("no such device %s", path)
	}
	return d, nil
}

func (o *memOpener) OpenWrite(path string) (Device, error) {
	o.mu.Lock()
	o.writeOpens[path]++
	o.mu.Unlock()
	return o.get(path)
}

func (o *memOpener) OpenRead(path string) (Device, error) {
	o.mu.Lock()
	o.readOpens[path]++
	o.mu.Unlock()
	return o.get(path)
}

// recordingProgress keeps every update it receives.
type recordingProgress struct {
	mu         sync.Mutex
	phases     []Phase
	advances   []uint64
	mismatches []uint64
	finished   *Outcome
}

func (r *recordingProgress) Begin(p Phase, _ uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, p)
}

func (r *recordingProgress) Advance(done uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advances = append(r.advances, done)
}

func (r *recordingProgress) Mismatch(off uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mismatches = append(r.mismatches, off)
}

func (r *recordingProgress) Finish(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = &o
}
