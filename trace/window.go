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

package trace

import (
	"github.com/golang/glog"

	"github.com/hellman/wboxkit/gf2"
)

// ConfigError reports an invalid window/step combination that was
// cannot be used, per spec.md §7. NewWindowReader returns it for a
// non-positive window; combinations it can auto-correct are corrected
// instead and only logged.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "trace: config warning: " + e.Msg }

// Window is one sliding-window snapshot: the column vectors for every
// bit offset in [OffsetBits, OffsetBits+len(Vectors)), aligned to the
// trace's absolute bit numbering.
type Window struct {
	OffsetBits int
	Vectors    []gf2.BitVec
}

// WindowReader produces successive Windows over a Set using a rolling
// ring buffer, as specified in spec.md §4.2. It is strictly sequential:
// exactly one reader may be active per Set, and windows are emitted in
// order (spec.md §5).
type WindowReader struct {
	set *Set

	windowBytes int
	stepBytes   int

	offsetBytes int
	buf         []gf2.BitVec // ring buffer, logically ordered oldest-to-newest
	started     bool
	done        bool
}

// NumWindows returns ceil((L - W)/S) + 1. This equals the number of
// windows Next emits when (L - W) is a multiple of S; otherwise the last
// step is short, Next discards it, and one fewer window is emitted.
func (r *WindowReader) NumWindows() int {
	return int((r.set.TraceBytes-int64(r.windowBytes)+int64(r.stepBytes)-1)/int64(r.stepBytes) + 1)
}

// NewWindowReader builds a WindowReader over set with the given window
// and step sizes, both in bits. Both are rounded up to a whole byte and
// clamped to the trace size; a step larger than the window or not
// positive is auto-corrected to window/4 (the first case with a logged
// warning), matching the original tool's Reader.from_args.
func NewWindowReader(set *Set, windowBits, stepBits int) (*WindowReader, error) {
	if windowBits <= 0 {
		return nil, &ConfigError{Msg: "window must be positive"}
	}
	windowBits = roundUpToByte(windowBits)

	if stepBits > windowBits {
		glog.Warningf("step (%d bits) larger than window (%d bits), reducing to window/4", stepBits, windowBits)
		stepBits = windowBits / 4
	}
	if stepBits <= 0 {
		stepBits = windowBits / 4
	}
	if stepBits <= 0 {
		stepBits = 1
	}
	stepBits = roundUpToByte(stepBits)

	windowBytes := windowBits / 8
	stepBytes := stepBits / 8

	if int64(windowBytes) > set.TraceBytes {
		glog.Warningf("window (%d bytes) larger than trace (%d bytes), clamping", windowBytes, set.TraceBytes)
		windowBytes = int(set.TraceBytes)
	}
	if int64(stepBytes) > set.TraceBytes {
		stepBytes = int(set.TraceBytes)
	}
	if stepBytes < 1 {
		stepBytes = 1
	}

	return &WindowReader{
		set:         set,
		windowBytes: windowBytes,
		stepBytes:   stepBytes,
	}, nil
}

func roundUpToByte(bitsN int) int {
	return bitsN + (8-bitsN%8)%8
}

// Next returns the next Window, or ok==false once the trace has been
// fully covered (the final short window, if any, is discarded per
// spec.md §4.2's failure semantics).
func (r *WindowReader) Next() (Window, bool) {
	if r.done {
		return Window{}, false
	}

	if !r.started {
		r.started = true
		vecs, n, err := r.advance(r.windowBytes)
		if err != nil || n < r.windowBytes {
			r.done = true
			return Window{}, false
		}
		r.buf = vecs
		r.offsetBytes = 0
		return Window{OffsetBits: 0, Vectors: append([]gf2.BitVec(nil), r.buf...)}, true
	}

	if int64(r.offsetBytes+r.windowBytes) >= r.set.TraceBytes {
		r.done = true
		return Window{}, false
	}

	vecs, n, err := r.advance(r.stepBytes)
	if err != nil || n < r.stepBytes {
		r.done = true
		return Window{}, false
	}
	r.buf = append(r.buf[len(vecs):], vecs...)
	r.offsetBytes += r.stepBytes

	return Window{OffsetBits: r.offsetBytes * 8, Vectors: append([]gf2.BitVec(nil), r.buf...)}, true
}

// advance reads numBytes from every trace and transposes them, MSB-first
// within each byte (bit j of byte b has value (b >> (7-j)) & 1), into
// numBytes*8 column vectors of length N.
func (r *WindowReader) advance(numBytes int) ([]gf2.BitVec, int, error) {
	data, n, err := r.set.ReadChunk(numBytes)
	if err != nil {
		return nil, 0, err
	}
	vecs := make([]gf2.BitVec, n*8)
	for i := range vecs {
		vecs[i] = gf2.NewBitVec(r.set.N)
	}
	for itrace, traceData := range data {
		for i := 0; i < n; i++ {
			b := traceData[i]
			for j := 0; j < 8; j++ {
				bit := (b >> uint(7-j)) & 1
				vecs[(i<<3)|j].SetBit(itrace, int(bit))
			}
		}
	}
	return vecs, n, nil
}
