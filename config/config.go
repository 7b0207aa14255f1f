// Package config handles the optional YAML configuration file.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every setting a run can take from a file. Command-line
// flags override it field by field.
type Config struct {
	Devices []string `yaml:"devices"`
	// BufferSize is bytes per I/O; zero means the device's physical
	// block size.
	BufferSize Size `yaml:"buffer_size"`
	// Seed is nil when a random seed should be drawn.
	Seed *uint64 `yaml:"seed,omitempty"`
	// MaxRate caps each device's throughput in bytes per second.
	MaxRate Size `yaml:"max_rate"`

	AllowAnyMedia       bool `yaml:"allow_any_media"`
	AllowAnyBlockDevice bool `yaml:"allow_any_block_device"`
	SkipSanityChecks    bool `yaml:"skip_sanity_checks"`

	NoUI      bool   `yaml:"no_ui"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{LogLevel: "info", LogFormat: "text"}
}

// Load reads and parses a YAML configuration file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values that YAML typing cannot.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q (want text or json)", c.LogFormat)
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return l, nil
}

// Size is a byte count written either as an integer or with a k, m, g or
// t suffix (powers of 1024).
type Size int64

// UnmarshalYAML accepts both 4096 and "4k".
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", value.Line)
	}
	n, err := ParseSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = Size(n)
	return nil
}

// String formats s the way ParseSize reads it.
func (s Size) String() string {
	units := []string{"t", "g", "m", "k"}
	for i, u := range units {
		mult := int64(1) << (10 * (len(units) - i))
		if s != 0 && int64(s)%mult == 0 {
			return strconv.FormatInt(int64(s)/mult, 10) + u
		}
	}
	return strconv.FormatInt(int64(s), 10)
}

// Set implements pflag.Value so a Size can back a command-line flag.
func (s *Size) Set(v string) error {
	n, err := ParseSize(v)
	if err != nil {
		return err
	}
	*s = Size(n)
	return nil
}

// Type implements pflag.Value.
func (*Size) Type() string { return "size" }

// ParseSize converts a human size string (e.g. "512", "4k", "1.5m") to a
// positive whole number of bytes.
func ParseSize(s string) (int64, error) {
	ss := strings.TrimSpace(strings.ToLower(s))
	if ss == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(ss, "k"):
		mult = 1 << 10
		ss = strings.TrimSuffix(ss, "k")
	case strings.HasSuffix(ss, "m"):
		mult = 1 << 20
		ss = strings.TrimSuffix(ss, "m")
	case strings.HasSuffix(ss, "g"):
		mult = 1 << 30
		ss = strings.TrimSuffix(ss, "g")
	case strings.HasSuffix(ss, "t"):
		mult = 1 << 40
		ss = strings.TrimSuffix(ss, "t")
	case strings.HasSuffix(ss, "b"):
		ss = strings.TrimSuffix(ss, "b")
	}
	v, err := strconv.ParseFloat(ss, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	n := v * float64(mult)
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("size %q is not a whole number of bytes", s)
	}
	if n == 0 {
		return 0, fmt.Errorf("size %q is zero; leave it unset for the default", s)
	}
	return int64(n), nil
}
