// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package trace loads packed computation-trace files (the ".bin"/".pt"/
// ".ct" triples produced by a white-box circuit evaluator) and streams
// them to the sliding-window reader, WindowReader.
package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/glog"
)

const (
	traceFilenameFormat      = "%04d.bin"
	plaintextFilenameFormat  = "%04d.pt"
	ciphertextFilenameFormat = "%04d.ct"
	blockSize                = 16
)

// InputError reports a missing, truncated, or inconsistently sized input
// file. It is fatal: the caller should abort the run.
type InputError struct {
	Path string
	Msg  string
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("trace: input error: %s", e.Msg)
	}
	return fmt.Sprintf("trace: input error: %s: %s", e.Path, e.Msg)
}

//go:generate mockgen -destination=mocks/file_reader.go -package=mocks github.com/hellman/wboxkit/trace FileReader

// FileReader is the minimal file-handle surface Set depends on for
// streaming chunk reads. *os.File satisfies it directly; tests
// substitute mocks/MockFileReader to assert the reads ReadChunk makes
// on each handle, the same boundary-mocking pattern the teacher
// used for its USB device transport.
type FileReader interface {
	Read(p []byte) (int, error)
	Close() error
}

// Set is a loaded collection of N packed traces together with the
// plaintext/ciphertext pair used for each. Trace file handles are kept
// open and streamed rather than copied fully into memory; Set is the
// sole owner of these handles -- no concurrent reader is permitted (see
// spec.md §5).
type Set struct {
	Dir        string
	N          int
	TraceBytes int64
	PT         [][]byte
	CT         [][]byte

	files []FileReader
}

// Load opens the n trace/plaintext/ciphertext file triples (0000.bin,
// 0000.pt, 0000.ct, 0001.bin, ...) under dir. All ".bin" files must have
// identical size; ".pt"/".ct" files must each be exactly 16 bytes.
func Load(dir string, n int) (*Set, error) {
	if n < 1 {
		return nil, &InputError{Msg: "n-traces must be at least 1"}
	}

	s := &Set{Dir: dir, N: n}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	for i := 0; i < n; i++ {
		ptPath := filepath.Join(dir, fmt.Sprintf(plaintextFilenameFormat, i))
		pt, err := os.ReadFile(ptPath)
		if err != nil {
			return nil, &InputError{Path: ptPath, Msg: err.Error()}
		}
		if len(pt) != blockSize {
			return nil, &InputError{Path: ptPath, Msg: fmt.Sprintf("expected %d bytes, got %d", blockSize, len(pt))}
		}

		ctPath := filepath.Join(dir, fmt.Sprintf(ciphertextFilenameFormat, i))
		ct, err := os.ReadFile(ctPath)
		if err != nil {
			return nil, &InputError{Path: ctPath, Msg: err.Error()}
		}
		if len(ct) != blockSize {
			return nil, &InputError{Path: ctPath, Msg: fmt.Sprintf("expected %d bytes, got %d", blockSize, len(ct))}
		}

		tracePath := filepath.Join(dir, fmt.Sprintf(traceFilenameFormat, i))
		info, err := os.Stat(tracePath)
		if err != nil {
			return nil, &InputError{Path: tracePath, Msg: err.Error()}
		}
		if i == 0 {
			s.TraceBytes = info.Size()
		} else if info.Size() != s.TraceBytes {
			return nil, &InputError{Path: tracePath, Msg: fmt.Sprintf(
				"trace size %d does not match first trace's size %d", info.Size(), s.TraceBytes)}
		}

		f, err := os.Open(tracePath)
		if err != nil {
			return nil, &InputError{Path: tracePath, Msg: err.Error()}
		}

		s.PT = append(s.PT, pt)
		s.CT = append(s.CT, ct)
		s.files = append(s.files, f)
	}

	glog.Infof("Loaded %d traces of %d bytes each from %s", s.N, s.TraceBytes, dir)
	ok = true
	return s, nil
}

// Close releases the kept file handles.
func (s *Set) Close() error {
	var firstErr error
	for _, f := range s.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.files = nil
	return firstErr
}

// ReadChunk reads up to numBytes from each trace file, in trace order.
// It returns the actual number of bytes read per trace (identical across
// traces, since all traces share the same size) and the per-trace byte
// slices. A short read (fewer than numBytes, including zero at EOF) is
// not an error -- callers use the returned length to detect the final,
// possibly partial, window.
func (s *Set) ReadChunk(numBytes int) ([][]byte, int, error) {
	out := make([][]byte, s.N)
	got := -1
	for i, f := range s.files {
		buf := make([]byte, numBytes)
		n, err := readFull(f, buf)
		if err != nil {
			return nil, 0, fmt.Errorf("trace: reading trace %d: %w", i, err)
		}
		if got == -1 {
			got = n
		} else if got != n {
			return nil, 0, fmt.Errorf("trace: trace %d read %d bytes, expected %d (trace files desynced)", i, n, got)
		}
		out[i] = buf[:n]
	}
	if got < 0 {
		got = 0
	}
	return out, got, nil
}

// readFull reads from f until buf is full or EOF, like io.ReadFull but
// treating EOF as success instead of an error, since the caller relies on
// short reads to detect the end of the trace file.
func readFull(f FileReader, buf []byte) (int, error) {
	n, err := io.ReadFull(f, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}
