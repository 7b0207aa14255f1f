package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"platter/blockdev"
	"platter/config"
	"platter/integrity"
	"platter/retrodfrg"
)

var errTestsFailed = errors.New("not every device passed")

// runner carries the collaborators of one test run so tests can swap
// the platform out.
type runner struct {
	validator blockdev.Validator
	opener    integrity.Opener
	stderr    io.Writer
	// forceNoUI keeps the fullscreen board off regardless of the terminal.
	forceNoUI bool
}

// plan is the set of devices that passed validation plus the ones that
// were refused.
type plan struct {
	jobs     []integrity.Job
	rejected []string
}

// newLogger builds the slog logger described by cfg writing to w.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// resolveSeed returns the configured seed or draws a fresh one.
func resolveSeed(cfg *config.Config) uint64 {
	if cfg.Seed != nil {
		return *cfg.Seed
	}
	return rand.Uint64()
}

// plan validates every device and resolves its options. A refused device
// is logged and skipped; the others still run.
func (r runner) plan(log *slog.Logger, cfg *config.Config, seed uint64) plan {
	var p plan
	for _, path := range cfg.Devices {
		d, err := r.validator.Validate(path)
		if err != nil {
			log.Error("Device failed validation", "device", path, "error", err)
			p.rejected = append(p.rejected, path)
			continue
		}
		capacity, err := r.validator.Capacity(d)
		if err != nil {
			log.Error("Could not determine device capacity", "device", path, "error", err)
			p.rejected = append(p.rejected, path)
			continue
		}
		if capacity == 0 {
			log.Error("Device reports zero capacity", "device", path)
			p.rejected = append(p.rejected, path)
			continue
		}
		opts := integrity.TestOptions{
			BufferSize: blockdev.BufferSize(d, int(cfg.BufferSize)),
			Seed:       seed,
			Capacity:   capacity,
			MaxRate:    float64(cfg.MaxRate),
		}
		log.Debug("Device accepted", "device", path, "whole", d.Whole, "media", d.Media.String(),
			"model", d.Model, "serial", d.Serial, "capacity", capacity, "buffer_size", opts.BufferSize)
		p.jobs = append(p.jobs, integrity.Job{Path: path, Options: opts})
	}
	return p
}

func (r runner) wantUI(cfg *config.Config) bool {
	if r.forceNoUI || cfg.NoUI {
		return false
	}
	f, ok := r.stderr.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// run executes a full test and returns the process exit status. A non-nil
// error is only returned alongside status 2.
func (r runner) run(parent context.Context, cfg *config.Config) (int, error) {
	log := newLogger(r.stderr, cfg)
	prev := slog.Default()
	slog.SetDefault(log)
	defer slog.SetDefault(prev)

	seed := resolveSeed(cfg)
	log.Info("Using seed", "seed", seed)

	p := r.plan(log, cfg, seed)

	sigCtx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancelCause(sigCtx)
	defer cancel(nil)

	var reporter integrity.Reporter = integrity.LogReporter{Logger: log}
	var ui *retrodfrg.UI
	drawDone := make(chan struct{})
	stopDraw := make(chan struct{})
	if len(p.jobs) > 0 && r.wantUI(cfg) {
		var err error
		ui, err = retrodfrg.NewUI(r.stderr)
		if err != nil {
			log.Warn("Fullscreen display unavailable, falling back to log lines", "error", err)
		}
	}
	if ui != nil {
		log = newLogger(ui, cfg)
		slog.SetDefault(log)
		ui.SetTitle(fmt.Sprintf("platter v%s  -  data-integrity test", version))
		ui.SetSummaryLines([]string{
			fmt.Sprintf("Seed: %d   Devices: %d   Refused: %d", seed, len(p.jobs), len(p.rejected)),
			"ALL DATA ON THESE DEVICES IS BEING DESTROYED.",
		})
		ui.SetLegend([]string{retrodfrg.Legend, "Q/Esc: stop (devices in progress become UNCERTAIN)"})
		reporter = ui
		go func() {
			select {
			case <-ui.Stopped():
				cancel(retrodfrg.ErrInterrupted)
			case <-ctx.Done():
			}
		}()
		go func() {
			defer close(drawDone)
			ui.Run(250*time.Millisecond, stopDraw)
		}()
	} else {
		close(drawDone)
	}

	res, err := integrity.Run(ctx, r.opener, p.jobs, reporter)

	close(stopDraw)
	<-drawDone
	if ui != nil {
		ui.Close()
		log = newLogger(r.stderr, cfg)
		slog.SetDefault(log)
	}

	if err != nil {
		var fault *integrity.TaskFault
		if errors.As(err, &fault) {
			log.Error("Panic in one of the data-integrity test threads. Test results are not trustworthy.", "error", err)
		}
		return 2, err
	}

	res.LogSummary(log)
	if len(p.rejected) > 0 {
		log.Error("Devices were not tested", "devices", p.rejected)
	}

	interrupted := sigCtx.Err() != nil || errors.Is(context.Cause(ctx), retrodfrg.ErrInterrupted)
	switch {
	case interrupted:
		log.Warn("Test was interrupted; unfinished devices are uncertain")
		return 130, nil
	case !res.AllGood() || len(p.rejected) > 0:
		return 1, nil
	}
	return 0, nil
}

// printDeviceInfo shows what validation and capacity probing report for
// path without touching its contents.
func printDeviceInfo(w io.Writer, v blockdev.Validator, path string) error {
	d, verr := v.Validate(path)
	var ve *blockdev.ValidationError
	if verr != nil && !errors.As(verr, &ve) {
		return verr
	}
	if d.Path == "" {
		return verr
	}

	fmt.Fprintf(w, "Path:          %s\n", d.Path)
	fmt.Fprintf(w, "Whole disk:    %s\n", d.Whole)
	fmt.Fprintf(w, "Partition:     %t\n", d.Partition)
	fmt.Fprintf(w, "Regular file:  %t\n", d.Regular)
	fmt.Fprintf(w, "Media:         %s\n", d.Media)
	if d.Model != "" {
		fmt.Fprintf(w, "Model:         %s\n", d.Model)
	}
	if d.Serial != "" {
		fmt.Fprintf(w, "Serial:        %s\n", d.Serial)
	}
	if d.PhysicalBlockSize > 0 {
		fmt.Fprintf(w, "Physical blk:  %d\n", d.PhysicalBlockSize)
	}
	fmt.Fprintf(w, "Buffer size:   %d\n", blockdev.BufferSize(d, 0))
	if len(d.MountedAt) > 0 {
		fmt.Fprintf(w, "Mounted at:    %s\n", strings.Join(d.MountedAt, ", "))
	}
	if n, err := v.Capacity(d); err != nil {
		fmt.Fprintf(w, "Capacity:      unknown (%v)\n", err)
	} else {
		fmt.Fprintf(w, "Capacity:      %d bytes (%s)\n", n, retrodfrg.Human(n))
	}
	if verr != nil {
		fmt.Fprintf(w, "Verdict:       %v\n", verr)
	} else {
		fmt.Fprintf(w, "Verdict:       would be tested\n")
	}
	return nil
}
