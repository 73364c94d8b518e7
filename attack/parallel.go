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
	"sync"

	"github.com/hellman/wboxkit/aes"
	"github.com/hellman/wboxkit/trace"
)

// ExactMatchParallel shards targets across workers goroutines, each with
// read-only access to the window index, and merges their local match
// lists at a barrier -- matching spec.md §5's "aggregated locally and
// merged at barrier" policy instead of per-byte locking.
func ExactMatchParallel(win trace.Window, targets []aes.Target, order, workers int) []Match {
	if workers < 1 {
		workers = 1
	}
	chunk := (len(targets) + workers - 1) / workers
	if chunk == 0 {
		return nil
	}

	results := make([][]Match, (len(targets)+chunk-1)/chunk)
	var wg sync.WaitGroup
	shard := 0
	for start := 0; start < len(targets); start += chunk {
		end := start + chunk
		if end > len(targets) {
			end = len(targets)
		}
		wg.Add(1)
		go func(shard, start, end int) {
			defer wg.Done()
			results[shard] = ExactMatch(win, targets[start:end], order)
		}(shard, start, end)
		shard++
	}
	wg.Wait()

	var out []Match
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}
