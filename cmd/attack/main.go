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

// Command attack recovers an AES-128 key from computation traces of a
// white-box implementation, using either the Exact Matching Attack
// (`attack exact <trace_dir>`) or the Linear Decoding Attack
// (`attack lda <trace_dir>`).
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/hellman/wboxkit/aes"
	"github.com/hellman/wboxkit/attack"
	"github.com/hellman/wboxkit/trace"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: attack {exact|lda} <trace_dir> [flags]")
	fmt.Fprintln(os.Stderr, "  exact: -n-traces, -window, -step, -masks, -mask-seed, -pos, -order, -stop-on-first-match, -results-dir")
	fmt.Fprintln(os.Stderr, "  lda:   -n-traces, -window, -step, -masks, -mask-seed, -pos, -stop-on-first-match, -results-dir")
}

func main() {
	defer glog.Flush()

	if len(os.Args) < 3 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	var defaultWindow int
	switch cmd {
	case "exact":
		defaultWindow = 2048
	case "lda":
		defaultWindow = 256
	default:
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	nTraces := fs.Int("n-traces", 0, "number of trace files to load (required)")
	window := fs.Int("window", defaultWindow, "sliding window size in bits")
	step := fs.Int("step", 0, "sliding window step in bits (default window/4)")
	masksFlag := fs.String("masks", "default", "linear masks: csv of hex bytes, \"default\" (8 single-bit), \"all\", \"random16\", or \"random32\"")
	maskSeed := fs.Int64("mask-seed", 0, "PRNG seed for -masks=random16/random32 (0 picks and logs a fresh seed)")
	posFlag := fs.String("pos", "all", "byte positions to target: csv of 0..15, or \"all\"")
	orderFlag := fs.Int("order", 1, "EMA order, 1 or 2 (exact only)")
	stopOnFirstMatch := fs.Bool("stop-on-first-match", false, "abort after the first window that produces any match")
	resultsDir := fs.String("results-dir", "", "if set, write a <name>.snapshot.json after every window, for cmd/traceview")
	fs.Parse(os.Args[2:])

	traceDir := fs.Arg(0)
	if traceDir == "" || *nTraces < 1 {
		usage()
		os.Exit(2)
	}
	if cmd == "exact" && *orderFlag != 1 && *orderFlag != 2 {
		glog.Errorf("attack: -order must be 1 or 2, got %d", *orderFlag)
		os.Exit(2)
	}

	masks, err := parseMasks(*masksFlag, *maskSeed)
	if err != nil {
		glog.Errorf("attack: %v", err)
		os.Exit(2)
	}
	positions, err := parsePositions(*posFlag)
	if err != nil {
		glog.Errorf("attack: %v", err)
		os.Exit(2)
	}

	set, err := trace.Load(traceDir, *nTraces)
	if err != nil {
		glog.Errorf("attack: %v", err)
		os.Exit(1)
	}
	defer set.Close()

	reader, err := trace.NewWindowReader(set, *window, *step)
	if err != nil {
		glog.Errorf("attack: %v", err)
		os.Exit(1)
	}

	cfg := aes.Config{Positions: positions, Masks: masks, Keys: aes.DefaultKeys()}
	targets, err := aes.GenerateTargetsParallel(cfg, set.PT, set.CT, runtime.NumCPU())
	if err != nil {
		glog.Errorf("attack: %v", err)
		os.Exit(1)
	}
	glog.Infof("Generated %d targets over %d positions, %d masks, %d keys", len(targets), len(positions), len(masks), len(aes.DefaultKeys()))

	agg := attack.NewAggregator()
	runName := strings.TrimSuffix(filepath.Base(traceDir), filepath.Ext(traceDir))

	windows := 0
	for {
		win, ok := reader.Next()
		if !ok {
			break
		}
		windows++

		var matches []attack.Match
		if cmd == "exact" {
			matches = attack.ExactMatchParallel(win, targets, *orderFlag, runtime.NumCPU())
		} else {
			matches, err = attack.LDAMatch(win, targets)
			if err != nil {
				if _, ok := err.(*attack.LDAPreconditionError); ok {
					glog.Warningf("attack: %v", err)
					continue
				}
				glog.Errorf("attack: %v", err)
				os.Exit(1)
			}
		}

		keyFound := agg.Merge(matches)
		glog.V(1).Infof("window %d (offset %d bits): %d matches, example so far %s", windows, win.OffsetBits, len(matches), agg.ExampleKey())

		if *resultsDir != "" {
			if err := writeSnapshot(*resultsDir, runName, agg.Snapshot()); err != nil {
				glog.Warningf("attack: writing snapshot: %v", err)
			}
		}

		if *stopOnFirstMatch && keyFound {
			glog.Infof("stopping after window %d: it produced a match", windows)
			break
		}
	}

	fmt.Printf("Example: %s\n", agg.ExampleKey())
}

// parseMasks resolves -masks. For the random16/random32 presets, seed
// picks the PRNG seed: 0 means "choose one from the current time", and
// the chosen seed is always logged so a run can be reproduced with
// -mask-seed (spec.md §5, §8.7).
func parseMasks(spec string, seed int64) ([]byte, error) {
	var extra int
	switch spec {
	case "default", "":
		return aes.DefaultMasks(), nil
	case "all":
		return aes.AllMasks(), nil
	case "random16":
		extra = 8
	case "random32":
		extra = 24
	default:
		return parseByteCSV(spec)
	}

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	glog.Infof("attack: -masks=%s using mask-seed=%d (pass -mask-seed=%d to reproduce)", spec, seed, seed)
	return aes.RandomMasks(rand.New(rand.NewSource(seed)), extra), nil
}

func parsePositions(spec string) ([]int, error) {
	if spec == "all" || spec == "" {
		return aes.DefaultPositions(), nil
	}
	var out []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 || v >= 16 {
			return nil, fmt.Errorf("invalid -pos value %q: must be 0..15", part)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("-pos produced no byte positions")
	}
	return out, nil
}

func parseByteCSV(spec string) ([]byte, error) {
	var out []byte
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(strings.TrimPrefix(part, "0x"))
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid mask byte %q: %v", part, err)
		}
		out = append(out, byte(v))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("-masks produced no masks")
	}
	return out, nil
}

// snapshotDTO mirrors attack.CandidateSnapshot with each candidate key
// byte rendered as its own two-character hex string, for a JSON wire
// format cmd/traceview can render directly.
type snapshotDTO struct {
	Window     int          `json:"window"`
	Candidates [16][]string `json:"candidates"`
	Hits       [16]int      `json:"hits"`
	Example    string       `json:"example"`
}

func writeSnapshot(dir, name string, snap attack.CandidateSnapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dto := snapshotDTO{Window: snap.Window, Hits: snap.Hits, Example: snap.Example}
	for b := 0; b < 16; b++ {
		for _, k := range snap.Candidate[b] {
			dto.Candidates[b] = append(dto.Candidates[b], hex.EncodeToString([]byte{k}))
		}
	}
	data, err := json.MarshalIndent(dto, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, name+".snapshot.json.tmp")
	final := filepath.Join(dir, name+".snapshot.json")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}
