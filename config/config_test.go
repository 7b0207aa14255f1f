package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "platter.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
devices:
  - /dev/disk/by-id/wwn-0x5000c500a1b2c3d4
  - /dev/sdc
buffer_size: 64k
seed: 18446744073709551615
max_rate: 150m
allow_any_media: true
log_level: debug
log_format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Devices) != 2 || cfg.Devices[1] != "/dev/sdc" {
		t.Errorf("unexpected devices %v", cfg.Devices)
	}
	if cfg.BufferSize != 64*1024 {
		t.Errorf("expected buffer_size 65536, got %d", cfg.BufferSize)
	}
	if cfg.Seed == nil || *cfg.Seed != ^uint64(0) {
		t.Errorf("unexpected seed %v", cfg.Seed)
	}
	if cfg.MaxRate != 150<<20 {
		t.Errorf("expected max_rate %d, got %d", 150<<20, cfg.MaxRate)
	}
	if !cfg.AllowAnyMedia || cfg.AllowAnyBlockDevice || cfg.SkipSanityChecks {
		t.Errorf("unexpected policy flags %+v", cfg)
	}
	if lvl, _ := cfg.Level(); lvl != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", lvl)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "devices: [/dev/sdb]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Seed != nil {
		t.Error("seed should be unset")
	}
	if cfg.BufferSize != 0 || cfg.MaxRate != 0 {
		t.Errorf("sizes should default to zero, got %d and %d", cfg.BufferSize, cfg.MaxRate)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("unexpected log defaults %q %q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad size", "buffer_size: lots\n", "invalid size"},
		{"fractional size", "buffer_size: 0.5\n", "whole number of bytes"},
		{"zero size", "max_rate: 0\n", "zero"},
		{"bad level", "log_level: loud\n", "log_level"},
		{"bad format", "log_format: xml\n", "log_format"},
		{"not yaml", "devices: [\n", "parsing config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"512", 512, false},
		{"512b", 512, false},
		{"4k", 4096, false},
		{"4K", 4096, false},
		{"1.5m", 1536 * 1024, false},
		{"2g", 2 << 30, false},
		{"1t", 1 << 40, false},
		{" 8k ", 8192, false},
		{"", 0, true},
		{"k", 0, true},
		{"-1k", 0, true},
		{"0.5", 0, true},
		{"1.0001k", 0, true},
		{"0.5k", 512, false},
		{"0", 0, true},
		{"0k", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q): unexpected error state %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseSize(%q): expected %d, got %d", tt.input, tt.expected, got)
		}
	}
}

func TestSize_String(t *testing.T) {
	tests := []struct {
		size     Size
		expected string
	}{
		{0, "0"},
		{512, "512"},
		{4096, "4k"},
		{1 << 20, "1m"},
		{3 << 30, "3g"},
		{1 << 40, "1t"},
		{1536, "1536"},
	}
	for _, tt := range tests {
		if got := tt.size.String(); got != tt.expected {
			t.Errorf("Size(%d).String(): expected %q, got %q", int64(tt.size), tt.expected, got)
		}
	}
}

func TestSize_Set(t *testing.T) {
	var s Size
	if err := s.Set("2k"); err != nil || s != 2048 {
		t.Fatalf("Set(2k) = %d, %v", s, err)
	}
	for _, in := range []string{"0.5", "0"} {
		if err := s.Set(in); err == nil {
			t.Errorf("Set(%q): expected error", in)
		}
	}
	if s != 2048 {
		t.Errorf("failed Set changed the value to %d", s)
	}
}
