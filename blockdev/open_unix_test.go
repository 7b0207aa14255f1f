//go:build linux || darwin

package blockdev

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"platter/integrity"
)

func tempImage(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSystem_ImageFile(t *testing.T) {
	path := tempImage(t, 3*4096+123)

	_, err := System{}.Validate(path)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected a plain file to be refused, got %v", err)
	}

	sys := System{Policy: Policy{SkipSanityChecks: true}}
	d, err := sys.Validate(path)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !d.Regular {
		t.Error("expected descriptor for a regular file")
	}
	n, err := sys.Capacity(d)
	if err != nil {
		t.Fatalf("Capacity: %v", err)
	}
	if n != 3*4096+123 {
		t.Errorf("expected capacity %d, got %d", 3*4096+123, n)
	}
}

func TestSystem_Missing(t *testing.T) {
	_, err := System{Policy: Policy{SkipSanityChecks: true}}.Validate(filepath.Join(t.TempDir(), "nope"))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestOS_RoundTrip(t *testing.T) {
	const size = 5*4096 + 17
	path := tempImage(t, size)
	opts := integrity.TestOptions{BufferSize: 4096, Seed: 2024, Capacity: size}

	out := integrity.TestDevice(context.Background(), OS{}, path, opts, nil)
	if out.Kind != integrity.Good {
		t.Fatalf("expected good, got %s (%v)", out.Kind, out.Err)
	}

	// flip one byte in the fourth chunk and verify again
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, 3*4096+5); err != nil {
		t.Fatal(err)
	}
	b[0] ^= 0xff
	if _, err := f.WriteAt(b, 3*4096+5); err != nil {
		t.Fatal(err)
	}
	f.Close()

	rep, err := integrity.Verify(context.Background(), OS{}, path, opts, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Mismatches != 1 || rep.BadOffsets[0] != 3*4096 {
		t.Errorf("expected one mismatch at %d, got %d %v", 3*4096, rep.Mismatches, rep.BadOffsets)
	}
}
