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

// Package profile ranks candidate (key, mask, trace-bit-offset) triples
// by Pearson correlation between a predicted S-box output bit and the
// observed trace-bit columns. Unlike EMA/LDA, it tolerates noisy
// leakage: a column doesn't need to match the prediction exactly, only
// to correlate with it. It's a diagnostic for locating where in a trace
// a given byte's S-box lookup leaks, before committing a full attack run
// to that byte.
package profile

import (
	"fmt"
	"math"
	"sync"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/stat"

	"github.com/hellman/wboxkit/aes"
	"github.com/hellman/wboxkit/trace"
)

// Guess is the best-correlated (key, mask, offset) triple found for one
// byte position.
type Guess struct {
	Key        byte
	Mask       byte
	Corr       float64
	OffsetBits int
}

func (g Guess) String() string {
	return fmt.Sprintf("<Key:0x%02x, Mask:0x%02x, Corr:%f, Offset:%d>", g.Key, g.Mask, g.Corr, g.OffsetBits)
}

// leakModel predicts the single output bit parity(SBOX[pt^key] & mask)
// for every trace, the same prediction EMA/LDA build their targets from.
func leakModel(key, mask byte, bytePos int, pts [][]byte) []float64 {
	out := make([]float64, len(pts))
	for i, pt := range pts {
		x := aes.SBOX[pt[bytePos]^key]
		out[i] = float64(aes.ScalarProduct(x, mask))
	}
	return out
}

// Rank loads the entire trace set as a single window and, for each byte
// position, correlates every (key, mask) guess's leakage model against
// every trace-bit column, keeping the strongest absolute correlation.
// Byte positions are ranked concurrently, one goroutine each.
func Rank(set *trace.Set, positions []int, masks []byte) ([16]Guess, error) {
	var result [16]Guess

	windowBits := int(set.TraceBytes) * 8
	if windowBits == 0 {
		return result, fmt.Errorf("profile: trace set has zero bytes")
	}
	reader, err := trace.NewWindowReader(set, windowBits, windowBits)
	if err != nil {
		return result, err
	}
	win, ok := reader.Next()
	if !ok {
		return result, fmt.Errorf("profile: could not read a full window over the trace set")
	}

	var wg sync.WaitGroup
	for _, b := range positions {
		wg.Add(1)
		go func(bytePos int) {
			defer wg.Done()
			var best Guess
			for key := 0; key < 256; key++ {
				for _, mask := range masks {
					x := leakModel(byte(key), mask, bytePos, set.PT)
					for offset, vec := range win.Vectors {
						y := vec.ToFloat64()
						pcc := math.Abs(stat.Correlation(x, y, nil))
						if math.IsNaN(pcc) {
							continue
						}
						if pcc > best.Corr {
							best = Guess{Key: byte(key), Mask: mask, Corr: pcc, OffsetBits: win.OffsetBits + offset}
						}
					}
				}
			}
			glog.V(1).Infof("leakage profile: best guess for byte %d: %v", bytePos, best)
			result[bytePos] = best
		}(b)
	}
	wg.Wait()

	return result, nil
}
