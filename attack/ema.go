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

// Package attack implements the Exact Matching Attack (EMA) and Linear
// Decoding Attack (LDA) matchers, and the candidate aggregator/reporter
// that merges their results across windows.
package attack

import (
	"github.com/hellman/wboxkit/aes"
	"github.com/hellman/wboxkit/gf2"
	"github.com/hellman/wboxkit/trace"
)

// Witness justifies a reported match: for EMA, absolute bit offsets
// whose column vector equals the matched value (up to 10 for an order-1
// match, up to 5 for each of the two values of an order-2 match); for LDA, the
// full set of offsets whose XOR equals the target (see LDAMatch).
type Witness struct {
	Offsets []int
}

// Match is a single reported hit against one guess.
type Match struct {
	Guess    aes.Guess
	Order    int // 1 or 2
	Witness1 Witness
	Witness2 Witness // only set for order-2 matches
}

// columnIndex maps a column value to the (sorted) absolute bit offsets
// where it occurs within the current window.
type columnIndex map[string][]int

func buildIndex(win trace.Window) columnIndex {
	idx := make(columnIndex, len(win.Vectors))
	for off, v := range win.Vectors {
		key := v.Key()
		idx[key] = append(idx[key], win.OffsetBits+off)
	}
	return idx
}

// ExactMatch runs the EMA matcher (order 1, and order 2 if order == 2)
// over a single window against targets, returning every match found.
func ExactMatch(win trace.Window, targets []aes.Target, order int) []Match {
	idx := buildIndex(win)
	valueOf := make(map[string]gf2.BitVec, len(win.Vectors))
	for _, v := range win.Vectors {
		valueOf[v.Key()] = v
	}

	n := 0
	if len(win.Vectors) > 0 {
		n = win.Vectors[0].Len()
	}
	zero := gf2.NewBitVec(n)
	ones := gf2.Ones(n)
	zeroKey, onesKey := zero.Key(), ones.Key()

	var matches []Match

	for _, tgt := range targets {
		key := tgt.Vector.Key()
		if offs, ok := idx[key]; ok {
			matches = append(matches, Match{
				Guess:    tgt.Guess,
				Order:    1,
				Witness1: Witness{Offsets: firstN(offs, 10)},
			})
		}

		if order == 2 {
			for v1Key, offs1 := range idx {
				if v1Key == zeroKey || v1Key == onesKey {
					continue
				}
				v2 := tgt.Vector.Xor(valueOf[v1Key])
				v2Key := v2.Key()
				if offs2, ok := idx[v2Key]; ok {
					matches = append(matches, Match{
						Guess:    tgt.Guess,
						Order:    2,
						Witness1: Witness{Offsets: firstN(offs1, 5)},
						Witness2: Witness{Offsets: firstN(offs2, 5)},
					})
				}
			}
		}
	}

	return matches
}

func firstN(xs []int, n int) []int {
	if len(xs) <= n {
		return append([]int(nil), xs...)
	}
	return append([]int(nil), xs[:n]...)
}
