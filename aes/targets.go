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

package aes

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/hellman/wboxkit/gf2"
)

// Side selects which round of AES the targets predict: the first-round
// S-box lookup keyed off the plaintext byte, or the last-round inverse
// S-box lookup keyed off the ciphertext byte. Only PLAINTEXT is
// implemented; see DESIGN.md's Open Question decisions.
type Side int

const (
	PLAINTEXT Side = iota
	CIPHERTEXT
)

// Guess names a single prediction: byte position b, linear mask lin over
// the S-box output, key-byte guess k, and whether the vector is negated.
type Guess struct {
	Byte       int
	Mask       byte
	Key        byte
	Complement bool
}

func (g Guess) String() string {
	return fmt.Sprintf("sbox #%d, lin.mask 0x%02x, key 0x%02x=%q, negated? %v",
		g.Byte, g.Mask, g.Key, string(rune(g.Key)), g.Complement)
}

// Target pairs a predicted bit vector with the guess that produced it.
type Target struct {
	Vector gf2.BitVec
	Guess  Guess
}

// Config enumerates which guesses to generate targets for.
type Config struct {
	Positions []int  // byte positions in the AES state, subset of 0..15
	Masks     []byte // linear masks, subset of 1..255
	Keys      []byte // key-byte guesses, subset of 0..255
	Side      Side
}

// DefaultPositions returns all 16 AES state byte positions.
func DefaultPositions() []int {
	p := make([]int, 16)
	for i := range p {
		p[i] = i
	}
	return p
}

// DefaultKeys returns all 256 key-byte guesses.
func DefaultKeys() []byte {
	k := make([]byte, 256)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

// DefaultMasks returns the 8 single-bit linear masks, matching the
// original tool's un-overridden --masks default.
func DefaultMasks() []byte {
	return []byte{1, 2, 4, 8, 16, 32, 64, 128}
}

// AllMasks returns every non-zero mask 1..255 ("all" preset).
func AllMasks() []byte {
	m := make([]byte, 255)
	for i := range m {
		m[i] = byte(i + 1)
	}
	return m
}

// RandomMasks returns the 8 single-bit masks plus a uniform sample of
// `extra` non-power-of-two masks, for the "random16"/"random32" presets.
// rng must be supplied explicitly by the caller (no package-level PRNG
// state), matching DESIGN NOTES' requirement that the mask-selection RNG
// be an explicit, seedable parameter.
func RandomMasks(rng *rand.Rand, extra int) []byte {
	var pool []byte
	for i := 1; i < 256; i++ {
		if i&(i-1) != 0 { // not a power of two
			pool = append(pool, byte(i))
		}
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if extra > len(pool) {
		extra = len(pool)
	}
	out := DefaultMasks()
	out = append(out, pool[:extra]...)
	return out
}

// GenerateTargets builds one Target (plus its complement) per (byte
// position, mask, key) guess in cfg, against the given per-trace
// plaintexts/ciphertexts (each a 16-byte AES block, one pair per trace).
func GenerateTargets(cfg Config, pts, cts [][]byte) ([]Target, error) {
	if cfg.Side != PLAINTEXT {
		return nil, fmt.Errorf("aes: ciphertext-side targets are not supported")
	}
	if len(pts) != len(cts) {
		return nil, fmt.Errorf("aes: plaintext/ciphertext count mismatch: %d vs %d", len(pts), len(cts))
	}
	n := len(pts)
	ones := gf2.Ones(n)

	total := len(cfg.Positions) * len(cfg.Masks) * len(cfg.Keys)
	out := make([]Target, 0, total*2)

	for _, b := range cfg.Positions {
		if b < 0 || b >= 16 {
			return nil, fmt.Errorf("aes: byte position out of range: %d", b)
		}
		for _, lin := range cfg.Masks {
			for _, k := range cfg.Keys {
				vec := gf2.NewBitVec(n)
				for i := 0; i < n; i++ {
					x := SBOX[pts[i][b]^k]
					vec.SetBit(i, int(ScalarProduct(x, lin)))
				}
				out = append(out, Target{Vector: vec, Guess: Guess{Byte: b, Mask: lin, Key: k}})
				out = append(out, Target{Vector: vec.Xor(ones), Guess: Guess{Byte: b, Mask: lin, Key: k, Complement: true}})
			}
		}
	}
	return out, nil
}

// GenerateTargetsParallel splits the (byte, mask, key) Cartesian product
// across workers goroutines and writes results into a pre-sized slice at
// deterministic indices, so the output is identical regardless of the
// worker count (see spec.md §5).
func GenerateTargetsParallel(cfg Config, pts, cts [][]byte, workers int) ([]Target, error) {
	if cfg.Side != PLAINTEXT {
		return nil, fmt.Errorf("aes: ciphertext-side targets are not supported")
	}
	if len(pts) != len(cts) {
		return nil, fmt.Errorf("aes: plaintext/ciphertext count mismatch: %d vs %d", len(pts), len(cts))
	}
	if workers < 1 {
		workers = 1
	}
	n := len(pts)
	ones := gf2.Ones(n)

	type guessIdx struct {
		b   int
		lin byte
		k   byte
	}
	var guesses []guessIdx
	for _, b := range cfg.Positions {
		if b < 0 || b >= 16 {
			return nil, fmt.Errorf("aes: byte position out of range: %d", b)
		}
		for _, lin := range cfg.Masks {
			for _, k := range cfg.Keys {
				guesses = append(guesses, guessIdx{b, lin, k})
			}
		}
	}

	out := make([]Target, 2*len(guesses))
	var wg sync.WaitGroup
	chunk := (len(guesses) + workers - 1) / workers
	if chunk == 0 {
		chunk = 1
	}
	for start := 0; start < len(guesses); start += chunk {
		end := start + chunk
		if end > len(guesses) {
			end = len(guesses)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for idx := start; idx < end; idx++ {
				g := guesses[idx]
				vec := gf2.NewBitVec(n)
				for i := 0; i < n; i++ {
					x := SBOX[pts[i][g.b]^g.k]
					vec.SetBit(i, int(ScalarProduct(x, g.lin)))
				}
				out[2*idx] = Target{Vector: vec, Guess: Guess{Byte: g.b, Mask: g.lin, Key: g.k}}
				out[2*idx+1] = Target{Vector: vec.Xor(ones), Guess: Guess{Byte: g.b, Mask: g.lin, Key: g.k, Complement: true}}
			}
		}(start, end)
	}
	wg.Wait()
	return out, nil
}
