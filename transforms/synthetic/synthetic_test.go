// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package synthetic

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	beam "lostluck.dev/beam-windowing"
	"lostluck.dev/beam-windowing/coders"
	"lostluck.dev/beam-windowing/direct"
	"lostluck.dev/beam-windowing/gabw"
	"lostluck.dev/beam-windowing/window"
)

func collect(cfg SourceConfig) []window.Value[beam.KV[[]byte, []byte]] {
	return slices.Collect(Records(cfg))
}

func TestRecords(t *testing.T) {
	cfg := SourceConfig{NumRecords: 500, NumKeys: 7, KeySize: 4, ValueSize: 16, Start: 1000, MeanInterarrival: time.Second, Seed: 42}
	recs := collect(cfg)
	if len(recs) != cfg.NumRecords {
		t.Fatalf("got %v records, want %v", len(recs), cfg.NumRecords)
	}
	if d := cmp.Diff(recs, collect(cfg)); d != "" {
		t.Errorf("records differ between runs (-first, +second):\n%v", d)
	}
	if recs[0].Timestamp != cfg.Start {
		t.Errorf("first timestamp = %v, want %v", recs[0].Timestamp, cfg.Start)
	}
	keys := map[string]bool{}
	for i, r := range recs {
		if i > 0 && r.Timestamp.Before(recs[i-1].Timestamp) {
			t.Fatalf("record %d at %v is before its predecessor at %v", i, r.Timestamp, recs[i-1].Timestamp)
		}
		if len(r.Value.Key) != cfg.KeySize || len(r.Value.Value) != cfg.ValueSize {
			t.Fatalf("record %d sizes = %v, %v, want %v, %v", i, len(r.Value.Key), len(r.Value.Value), cfg.KeySize, cfg.ValueSize)
		}
		keys[string(r.Value.Key)] = true
	}
	if len(keys) > cfg.NumKeys {
		t.Errorf("got %v distinct keys, want at most %v", len(keys), cfg.NumKeys)
	}

	other := cfg
	other.Seed++
	if cmp.Equal(recs, collect(other)) {
		t.Error("different seeds produced the same records")
	}
}

func TestRecords_zipf(t *testing.T) {
	cfg := SourceConfig{NumRecords: 10000, NumKeys: 100, KeySize: 8, KeyDistribution: "zipf", Seed: 1}
	counts := map[string]int{}
	for r := range Records(cfg) {
		counts[string(r.Value.Key)]++
	}
	top := 0
	for _, n := range counts {
		top = max(top, n)
	}
	// Uniform keys would each have about 1%.
	if share := float64(top) / float64(cfg.NumRecords); share < 0.1 {
		t.Errorf("most frequent key has %.3f of records, want at least 0.1", share)
	}
}

func TestSourceConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  SourceConfig
		want string
	}{
		{"noKeys", SourceConfig{NumRecords: 1}, "at least 1 key"},
		{"distribution", SourceConfig{NumKeys: 1, KeyDistribution: "pareto"}, "unknown key distribution"},
		{"interarrival", SourceConfig{NumKeys: 1, MeanInterarrival: -time.Second}, "negative interarrival"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Source(test.cfg)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("Source() = %v, want error containing %q", err, test.want)
			}
		})
	}
}

func TestStep(t *testing.T) {
	src, err := Source(SourceConfig{NumRecords: 1000, NumKeys: 3, Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	r := direct.NewRunner()
	Register(r)

	tests := []struct {
		name     string
		cfg      StepConfig
		min, max int
	}{
		{"passThrough", StepConfig{}, 1000, 1000},
		{"fanOut", StepConfig{OutputRecordsPerInputRecord: 3}, 3000, 3000},
		{"filter", StepConfig{OutputFilterRatio: 0.5, Seed: 7}, 400, 600},
		{"filterAll", StepConfig{OutputFilterRatio: 1}, 0, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			out, err := r.Run(context.Background(), src, Step(test.name, test.cfg))
			if err != nil {
				t.Fatal(err)
			}
			if n := len(out.Elements); n < test.min || n > test.max {
				t.Errorf("step output %v elements, want in [%v, %v]", n, test.min, test.max)
			}
		})
	}
}

// group is a pane reduced to what both engines must agree on.
type group struct {
	Key, Window string
	Values      []string
}

func runEngine(t *testing.T, e gabw.Engine[string, string], byKey map[string][]window.Value[string]) []group {
	t.Helper()
	var out []group
	for _, k := range slices.Sorted(maps.Keys(byKey)) {
		err := e.ProcessElement(context.Background(), k, byKey[k], func(p gabw.Pane[string, string]) {
			vs := slices.Sorted(p.Values.All())
			out = append(out, group{Key: p.Key, Window: fmt.Sprint(p.Window), Values: vs})
		})
		if err != nil {
			t.Fatalf("ProcessElement(%q): %v", k, err)
		}
	}
	slices.SortFunc(out, func(a, b group) int {
		return strings.Compare(a.Key+a.Window, b.Key+b.Window)
	})
	return out
}

func TestEngines_agree(t *testing.T) {
	cfg := SourceConfig{NumRecords: 2000, NumKeys: 5, KeySize: 6, ValueSize: 6, MeanInterarrival: 2 * time.Second, Seed: 9}
	fns := []window.Fn{
		window.GlobalWindows{},
		window.FixedOf(time.Minute),
		window.SlidingOf(time.Minute, 20*time.Second),
	}
	for _, fn := range fns {
		t.Run(fmt.Sprint(fn), func(t *testing.T) {
			byKey := map[string][]window.Value[string]{}
			total := 0
			for r := range Records(cfg) {
				ws, err := fn.AssignWindows(r.Timestamp)
				if err != nil {
					t.Fatal(err)
				}
				k := fmt.Sprintf("%x", r.Value.Key)
				byKey[k] = append(byKey[k], window.Value[string]{Value: fmt.Sprintf("%x", r.Value.Value), Timestamp: r.Timestamp, Windows: ws, Pane: r.Pane})
				total += len(ws)
			}

			s := beam.Of(fn)
			fast := runEngine(t, gabw.NewViaIterators[string, string](), byKey)
			general, err := gabw.NewViaState[string, string](s, coders.String{}, coders.String{})
			if err != nil {
				t.Fatal(err)
			}
			if d := cmp.Diff(fast, runEngine(t, general, byKey)); d != "" {
				t.Errorf("engines disagree (-iterators, +state):\n%v", d)
			}
			n := 0
			for _, g := range fast {
				n += len(g.Values)
			}
			if n != total {
				t.Errorf("grouped %v values, want %v", n, total)
			}
		})
	}
}
