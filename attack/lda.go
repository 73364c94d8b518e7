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

package attack

import (
	"fmt"

	"github.com/hellman/wboxkit/aes"
	"github.com/hellman/wboxkit/gf2"
	"github.com/hellman/wboxkit/trace"
)

// LDAPreconditionError reports that a window does not have enough
// redundancy for a non-trivial kernel (the retained rows have rank equal
// to the number of traces); the caller should skip the window, per
// spec.md §4.5/§7.
type LDAPreconditionError struct {
	Msg string
}

func (e *LDAPreconditionError) Error() string { return "attack: LDA precondition: " + e.Msg }

// LDAMatch runs the Linear Decoding Attack matcher over a single window:
// it builds a GF(2) matrix from the window's distinct, non-trivial
// column vectors, computes a right-kernel basis (parity-check vectors),
// and tests every target for row-space membership. On a match, it solves
// for the linear combination of retained sample offsets that reproduces
// the target and reports those offsets as the witness.
func LDAMatch(win trace.Window, targets []aes.Target) ([]Match, error) {
	n := 0
	if len(win.Vectors) > 0 {
		n = win.Vectors[0].Len()
	}
	zero := gf2.NewBitVec(n)
	ones := gf2.Ones(n)

	type retained struct {
		vec    gf2.BitVec
		offset int
	}

	// Deduplicate by value, keeping the first (lowest) offset as the
	// representative row; the row-space membership test only needs one
	// representative per distinct value.
	seen := map[string]bool{}
	var rows []gf2.BitVec
	var offsets []int
	for off, v := range win.Vectors {
		if v.Equal(zero) || v.Equal(ones) {
			continue
		}
		key := v.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, v)
		offsets = append(offsets, win.OffsetBits+off)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	m := gf2.NewMatrix(rows, n)
	kernel := m.RightKernelBasis()
	if len(kernel) == 0 {
		return nil, &LDAPreconditionError{Msg: fmt.Sprintf(
			"window at offset %d has full-rank sample matrix (%d rows, %d traces): no redundancy for a non-trivial kernel",
			win.OffsetBits, len(rows), n)}
	}

	var matches []Match
	for _, tgt := range targets {
		if !gf2.InRowSpace(tgt.Vector, kernel) {
			continue
		}
		sol, ok := m.SolveLeft(tgt.Vector)
		if !ok {
			// Parity check passed, exact solve disagreed: should not
			// happen if RightKernelBasis and SolveLeft are consistent.
			continue
		}
		var absOffsets []int
		for i := 0; i < sol.Len(); i++ {
			if sol.Bit(i) == 1 {
				absOffsets = append(absOffsets, offsets[i])
			}
		}
		matches = append(matches, Match{
			Guess:    tgt.Guess,
			Order:    1,
			Witness1: Witness{Offsets: absOffsets},
		})
	}
	return matches, nil
}
