package trace_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hellman/wboxkit/trace"
)

func writeFixture(t *testing.T, dir string, n int, traceBytes int) {
	t.Helper()
	for i := 0; i < n; i++ {
		bin := make([]byte, traceBytes)
		for j := range bin {
			bin[j] = byte(i + j)
		}
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("%04d.bin", i)), bin, 0o644); err != nil {
			t.Fatal(err)
		}
		pt := make([]byte, 16)
		ct := make([]byte, 16)
		for j := 0; j < 16; j++ {
			pt[j] = byte(i*16 + j)
			ct[j] = byte(255 - (i*16 + j))
		}
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("%04d.pt", i)), pt, 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("%04d.ct", i)), ct, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoadValidatesSizes(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, 4, 32)

	set, err := trace.Load(dir, 4)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer set.Close()

	if set.TraceBytes != 32 {
		t.Errorf("TraceBytes = %d, want 32", set.TraceBytes)
	}
	if len(set.PT) != 4 || len(set.CT) != 4 {
		t.Errorf("expected 4 PT/CT pairs, got %d/%d", len(set.PT), len(set.CT))
	}
}

func TestLoadRejectsMismatchedTraceSize(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, 3, 32)
	// Corrupt the last trace's size.
	if err := os.WriteFile(filepath.Join(dir, "0002.bin"), make([]byte, 16), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := trace.Load(dir, 3)
	if err == nil {
		t.Fatal("expected an InputError for mismatched trace size")
	}
	var ie *trace.InputError
	if !asInputError(err, &ie) {
		t.Fatalf("expected *trace.InputError, got %T: %v", err, err)
	}
}

func TestLoadRejectsBadPlaintextSize(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, 2, 32)
	if err := os.WriteFile(filepath.Join(dir, "0000.pt"), make([]byte, 8), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := trace.Load(dir, 2)
	if err == nil {
		t.Fatal("expected an InputError for bad plaintext size")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, 2, 32)
	os.Remove(filepath.Join(dir, "0001.ct"))

	_, err := trace.Load(dir, 2)
	if err == nil {
		t.Fatal("expected an InputError for a missing file")
	}
}

func asInputError(err error, target **trace.InputError) bool {
	ie, ok := err.(*trace.InputError)
	if ok {
		*target = ie
	}
	return ok
}
