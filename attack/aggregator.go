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
	"sort"
	"strings"
)

// CandidateSnapshot is an immutable view of the aggregator's state,
// suitable for handing to a live viewer (cmd/attack writes it to disk
// for cmd/traceview) without exposing the mutable G[b] sets themselves.
type CandidateSnapshot struct {
	Window    int
	Candidate [16][]byte // sorted key-byte candidates per position
	Hits      [16]int
	Example   string
}

// Aggregator accumulates per-byte key candidates across windows,
// insert-only (spec.md's "Candidate set" §3 invariant), and renders the
// final report.
type Aggregator struct {
	candidates [16]map[byte]bool
	hits       [16]int
	windowsRun int
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	a := &Aggregator{}
	for i := range a.candidates {
		a.candidates[i] = map[byte]bool{}
	}
	return a
}

// Merge folds one window's matches into the global candidate sets.
// Re-encountering the same (byte, key) pair only increments the hit
// count; it never removes anything already present (idempotence,
// spec.md §7).
func (a *Aggregator) Merge(matches []Match) (keyFound bool) {
	a.windowsRun++
	for _, m := range matches {
		b := m.Guess.Byte
		a.candidates[b][m.Guess.Key] = true
		a.hits[b]++
		keyFound = true
	}
	return keyFound
}

// Snapshot renders the current state without mutating it.
func (a *Aggregator) Snapshot() CandidateSnapshot {
	var s CandidateSnapshot
	s.Window = a.windowsRun
	for b := 0; b < 16; b++ {
		s.Candidate[b] = sortedKeys(a.candidates[b])
		s.Hits[b] = a.hits[b]
	}
	s.Example = a.ExampleKey()
	return s
}

// ExampleKey renders a single 32-hex-character key by picking one
// candidate per byte position (the smallest, for determinism); "??" for
// positions with no candidate.
func (a *Aggregator) ExampleKey() string {
	var sb strings.Builder
	for b := 0; b < 16; b++ {
		cands := sortedKeys(a.candidates[b])
		if len(cands) == 0 {
			sb.WriteString("??")
			continue
		}
		fmt.Fprintf(&sb, "%02x", cands[0])
	}
	return sb.String()
}

// Candidates returns the sorted key-byte candidates found so far for
// byte position b.
func (a *Aggregator) Candidates(b int) []byte {
	return sortedKeys(a.candidates[b])
}

// Hits returns the number of matches recorded so far for byte position b.
func (a *Aggregator) Hits(b int) int {
	return a.hits[b]
}

// KeyComplete reports whether every byte position has at least one
// candidate. It is not a claim that the recovered key is correct, only
// that every position is covered.
func (a *Aggregator) KeyComplete() bool {
	for b := 0; b < 16; b++ {
		if len(a.candidates[b]) == 0 {
			return false
		}
	}
	return true
}

func sortedKeys(m map[byte]bool) []byte {
	out := make([]byte, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
