// platter.go
// Destructive write/read-back integrity test for spinning disks.
// Writes a seeded pseudorandom stream over the whole device, reads it
// back and tells you whether to keep the drive or RMA it.
//
// Build:
//
//	go build -o platter .
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"platter/blockdev"
	"platter/config"
	"platter/integrity"
	"platter/retrodfrg"
)

var version = "0.1.0"

// exitError carries a process exit status out of a cobra command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func must(err error) {
	if err == nil {
		return
	}
	code := 2
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(code)
}

func main() {
	must(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		flags      = config.Default()
		seed       uint64
	)

	root := &cobra.Command{
		Use:   "platter [flags] DEVICE...",
		Short: "Destructive data-integrity test for mechanical disks",
		Long: "Writes a seeded pseudorandom stream across the full capacity of each device,\n" +
			"reads it back and classifies every device as good, bad or uncertain.\n\n" +
			"ALL DATA ON THE GIVEN DEVICES IS DESTROYED.\n\n" +
			"Each device should be a mechanical disk block device (e.g. /dev/sda,\n" +
			"/dev/disk/by-id/wwn-...).",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}
			mergeFlags(cmd, cfg, flags, seed)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Devices = args
			}
			if len(cfg.Devices) == 0 {
				return fmt.Errorf("no devices given")
			}

			r := runner{
				validator: blockdev.System{Policy: blockdev.Policy{
					AllowAnyMedia:       cfg.AllowAnyMedia,
					AllowAnyBlockDevice: cfg.AllowAnyBlockDevice,
					SkipSanityChecks:    cfg.SkipSanityChecks,
				}},
				opener: blockdev.OS{},
				stderr: os.Stderr,
			}
			code, err := r.run(cmd.Context(), cfg)
			if err != nil {
				return &exitError{code: code, err: err}
			}
			switch code {
			case 0:
			case 130:
				return &exitError{code: code, err: retrodfrg.ErrInterrupted}
			default:
				return &exitError{code: code, err: errTestsFailed}
			}
			return nil
		},
	}

	f := root.Flags()
	f.StringVar(&configPath, "config", "", "YAML configuration file")
	f.Var(&flags.BufferSize, "buffer-size", "bytes per I/O (e.g. 4k, 1m); defaults to the physical block size of the device, or 8192 if that is unset")
	f.Uint64Var(&seed, "seed", 0, "random seed for the test data; by default a fresh one is drawn and logged")
	f.Var(&flags.MaxRate, "max-rate", "cap each device's throughput, in bytes per second (e.g. 100m)")
	f.BoolVar(&flags.AllowAnyMedia, "allow-any-media", false, "test the device even if the media type is not a spinning disk")
	f.BoolVar(&flags.AllowAnyBlockDevice, "allow-any-block-device", false, "run the test even if the path is a block device but not a disk (e.g. a single partition)")
	f.BoolVar(&flags.SkipSanityChecks, "i-know-what-im-doing-let-me-skip-sanity-checks", false, "run the test even if any sanity check at all could fail. This is dangerous")
	f.BoolVar(&flags.NoUI, "no-ui", false, "log progress lines instead of drawing the fullscreen board")
	f.StringVar(&flags.LogLevel, "log-level", "info", "debug|info|warn|error")
	f.StringVar(&flags.LogFormat, "log-format", "text", "text|json")

	root.AddCommand(newDeviceCmd(), newVersionCmd())
	return root
}

// mergeFlags copies every flag the user set explicitly over cfg.
func mergeFlags(cmd *cobra.Command, cfg, flags *config.Config, seed uint64) {
	changed := cmd.Flags().Changed
	if changed("buffer-size") {
		cfg.BufferSize = flags.BufferSize
	}
	if changed("seed") {
		cfg.Seed = &seed
	}
	if changed("max-rate") {
		cfg.MaxRate = flags.MaxRate
	}
	if changed("allow-any-media") {
		cfg.AllowAnyMedia = flags.AllowAnyMedia
	}
	if changed("allow-any-block-device") {
		cfg.AllowAnyBlockDevice = flags.AllowAnyBlockDevice
	}
	if changed("i-know-what-im-doing-let-me-skip-sanity-checks") {
		cfg.SkipSanityChecks = flags.SkipSanityChecks
	}
	if changed("no-ui") {
		cfg.NoUI = flags.NoUI
	}
	if changed("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
	if changed("log-format") {
		cfg.LogFormat = flags.LogFormat
	}
}

func newDeviceCmd() *cobra.Command {
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Device related utilities (safe, read-only)",
	}

	var (
		infoPath string
		policy   blockdev.Policy
	)
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show what the sanity checks see for a device (read-only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printDeviceInfo(cmd.OutOrStdout(), blockdev.System{Policy: policy}, infoPath)
		},
	}
	infoCmd.Flags().StringVar(&infoPath, "path", "", "device path (e.g. /dev/sdb)")
	infoCmd.Flags().BoolVar(&policy.AllowAnyMedia, "allow-any-media", false, "check as if --allow-any-media were given")
	infoCmd.Flags().BoolVar(&policy.AllowAnyBlockDevice, "allow-any-block-device", false, "check as if --allow-any-block-device were given")
	_ = infoCmd.MarkFlagRequired("path")
	deviceCmd.AddCommand(infoCmd)
	return deviceCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "platter v%s (default buffer %d bytes)\n", version, integrity.DefaultBufferSize)
		},
	}
}
