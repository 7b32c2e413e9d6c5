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

package gabw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	beam "lostluck.dev/beam-windowing"
	"lostluck.dev/beam-windowing/mtime"
	"lostluck.dev/beam-windowing/window"
)

const sec = mtime.Time(1000)

// windowed assigns each value at its timestamp with fn.
func windowed(t *testing.T, fn window.Fn, elms ...elm) []window.Value[string] {
	t.Helper()
	var out []window.Value[string]
	for _, e := range elms {
		ws, err := fn.AssignWindows(e.ts)
		if err != nil {
			t.Fatalf("AssignWindows(%v): %v", e.ts, err)
		}
		out = append(out, window.Value[string]{Value: e.v, Timestamp: e.ts, Windows: ws, Pane: window.NoFiringPane})
	}
	return out
}

type elm struct {
	ts mtime.Time
	v  string
}

type gotPane struct {
	Key       string
	Window    window.Window
	Timestamp mtime.Time
	Info      window.PaneInfo
	Values    []string
}

func collector(out *[]gotPane) func(Pane[string, string]) {
	return func(p Pane[string, string]) {
		*out = append(*out, gotPane{
			Key:       p.Key,
			Window:    p.Window,
			Timestamp: p.Timestamp,
			Info:      p.Info,
			Values:    slices.Collect(p.Values.All()),
		})
	}
}

func iw(start, end mtime.Time) window.IntervalWindow {
	return window.IntervalWindow{Start: start, End: end}
}

func TestViaIterators_fixedMinute(t *testing.T) {
	input := windowed(t, window.FixedOf(time.Minute),
		elm{15 * sec, "a"}, elm{30 * sec, "b"}, elm{45 * sec, "c"}, elm{90 * sec, "d"})

	var got []gotPane
	if err := NewViaIterators[string, string]().ProcessElement(context.Background(), "k", input, collector(&got)); err != nil {
		t.Fatalf("ProcessElement: %v", err)
	}
	want := []gotPane{
		{Key: "k", Window: iw(0, 60*sec), Timestamp: 15 * sec, Info: window.OnTimeAndOnlyFiring, Values: []string{"a", "b", "c"}},
		{Key: "k", Window: iw(60*sec, 120*sec), Timestamp: 90 * sec, Info: window.OnTimeAndOnlyFiring, Values: []string{"d"}},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("panes diff (-want, +got):\n%v", d)
	}
}

// expectedGroups computes the contents of each window, in order of first
// observation.
func expectedGroups(input []window.Value[string]) ([]window.Window, map[window.Window][]string) {
	var order []window.Window
	groups := map[window.Window][]string{}
	for _, e := range input {
		for _, w := range e.Windows {
			if _, ok := groups[w]; !ok {
				order = append(order, w)
			}
			groups[w] = append(groups[w], e.Value)
		}
	}
	return order, groups
}

func TestViaIterators_noLossNoDuplication(t *testing.T) {
	fns := []window.Fn{
		window.FixedOf(time.Minute),
		window.SlidingOf(time.Minute, 20*time.Second),
		window.SlidingOf(time.Minute, time.Minute),
		window.Sliding{Size: 90 * time.Second, Period: 30 * time.Second, Offset: 10 * time.Second},
		window.GlobalWindows{},
	}
	var elms []elm
	for i := range 60 {
		// Several elements share timestamps.
		elms = append(elms, elm{mtime.Time(i/3) * 7 * sec, fmt.Sprint(i)})
	}
	for _, fn := range fns {
		t.Run(fmt.Sprint(fn), func(t *testing.T) {
			input := windowed(t, fn, elms...)
			wantOrder, wantGroups := expectedGroups(input)

			var got []gotPane
			if err := NewViaIterators[string, string]().ProcessElement(context.Background(), "k", input, collector(&got)); err != nil {
				t.Fatalf("ProcessElement: %v", err)
			}
			var gotOrder []window.Window
			gotGroups := map[window.Window][]string{}
			for _, p := range got {
				gotOrder = append(gotOrder, p.Window)
				gotGroups[p.Window] = p.Values
				if p.Info != window.OnTimeAndOnlyFiring {
					t.Errorf("pane %v has info %v, want %v", p.Window, p.Info, window.OnTimeAndOnlyFiring)
				}
			}
			if d := cmp.Diff(wantOrder, gotOrder); d != "" {
				t.Errorf("window order diff (-want, +got):\n%v", d)
			}
			if d := cmp.Diff(wantGroups, gotGroups); d != "" {
				t.Errorf("window contents diff (-want, +got):\n%v", d)
			}
		})
	}
}

func TestViaIterators_deferredReads(t *testing.T) {
	input := windowed(t, window.SlidingOf(time.Minute, 30*time.Second),
		elm{0, "a"}, elm{20 * sec, "b"}, elm{40 * sec, "c"}, elm{70 * sec, "d"}, elm{100 * sec, "e"})
	src := newCounting(input...)

	var panes []Pane[string, string]
	if err := NewViaIterators[string, string]().ProcessElement(context.Background(), "k", src, func(p Pane[string, string]) {
		panes = append(panes, p)
	}); err != nil {
		t.Fatalf("ProcessElement: %v", err)
	}
	_, want := expectedGroups(input)

	// Read in reverse, twice each, abandoning a partial read first.
	for _, p := range slices.Backward(panes) {
		it := p.Values.Reiterator()
		it.Next()
		for range 2 {
			if d := cmp.Diff(want[p.Window], slices.Collect(p.Values.All())); d != "" {
				t.Errorf("window %v diff (-want, +got):\n%v", p.Window, d)
			}
		}
	}
	if got := *src.pulls; got != len(input) {
		t.Errorf("input pulled %d times, want each element once (%d)", got, len(input))
	}
}

func TestViaIterators_abandonedView(t *testing.T) {
	input := windowed(t, window.SlidingOf(time.Minute, 30*time.Second),
		elm{10 * sec, "a"}, elm{35 * sec, "b"}, elm{50 * sec, "c"}, elm{65 * sec, "d"})

	var panes []Pane[string, string]
	if err := NewViaIterators[string, string]().ProcessElement(context.Background(), "k", input, func(p Pane[string, string]) {
		panes = append(panes, p)
	}); err != nil {
		t.Fatalf("ProcessElement: %v", err)
	}
	if len(panes) < 2 {
		t.Fatalf("got %d panes, want at least 2", len(panes))
	}
	// Stop reading the first view after one element.
	first := panes[0].Values.Reiterator()
	if v, ok := first.Next(); !ok || v != "a" {
		t.Fatalf("first view Next() = %v, %v, want a, true", v, ok)
	}
	_, want := expectedGroups(input)
	for _, p := range panes[1:] {
		if d := cmp.Diff(want[p.Window], slices.Collect(p.Values.All())); d != "" {
			t.Errorf("window %v diff (-want, +got):\n%v", p.Window, d)
		}
	}
	// The abandoned view resumes where it stopped.
	if d := cmp.Diff(want[panes[0].Window][1:], drain(first)); d != "" {
		t.Errorf("resumed first view diff (-want, +got):\n%v", d)
	}
}

func TestViaIterators_lazy(t *testing.T) {
	input := windowed(t, window.FixedOf(time.Minute),
		elm{0, "a"}, elm{10 * sec, "b"}, elm{70 * sec, "c"}, elm{130 * sec, "d"})
	src := newCounting(input...)

	var pulledAtEmit []int
	if err := NewViaIterators[string, string]().ProcessElement(context.Background(), "k", src, func(Pane[string, string]) {
		pulledAtEmit = append(pulledAtEmit, *src.pulls)
	}); err != nil {
		t.Fatalf("ProcessElement: %v", err)
	}
	// Each pane is emitted as soon as its first element is read.
	if d := cmp.Diff([]int{1, 3, 4}, pulledAtEmit); d != "" {
		t.Errorf("elements read when each pane was emitted diff (-want, +got):\n%v", d)
	}
}

// recorder keeps log messages with their attributes.
type recorder struct {
	events *[]string
}

func (r recorder) Enabled(context.Context, slog.Level) bool { return true }
func (r recorder) WithAttrs([]slog.Attr) slog.Handler      { return r }
func (r recorder) WithGroup(string) slog.Handler           { return r }

func (r recorder) Handle(_ context.Context, rec slog.Record) error {
	msg := rec.Message
	rec.Attrs(func(a slog.Attr) bool {
		msg += fmt.Sprintf(" %v=%v", a.Key, a.Value)
		return true
	})
	*r.events = append(*r.events, msg)
	return nil
}

func TestViaIterators_promptEviction(t *testing.T) {
	input := windowed(t, window.FixedOf(time.Minute),
		elm{15 * sec, "a"}, elm{30 * sec, "b"}, elm{59 * sec, "c"}, elm{60 * sec, "d"}, elm{90 * sec, "e"}, elm{200 * sec, "f"})

	var events []string
	g := NewViaIterators[string, string](beam.Logger(slog.New(recorder{&events})))
	if err := g.ProcessElement(context.Background(), "k", input, func(p Pane[string, string]) {
		events = append(events, fmt.Sprintf("emit %v", p.Window))
	}); err != nil {
		t.Fatalf("ProcessElement: %v", err)
	}
	var got []string
	for _, e := range events {
		if strings.HasPrefix(e, "emit") || strings.HasPrefix(e, "windows evicted") {
			got = append(got, e)
		}
	}
	want := []string{
		"emit [0, 60000)",
		"emit [60000, 120000)",
		// Evicted by the first element past its max timestamp.
		"windows evicted maxTimestamp=59999 count=1",
		"emit [180000, 240000)",
		"windows evicted maxTimestamp=119999 count=1",
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("events diff (-want, +got):\n%v", d)
	}
}

func TestViaIterators_evictedMatchesOpened(t *testing.T) {
	input := windowed(t, window.SlidingOf(time.Minute, 30*time.Second),
		elm{15 * sec, "a"}, elm{45 * sec, "b"}, elm{200 * sec, "c"})

	reg := prometheus.NewRegistry()
	g := NewViaIterators[string, string](beam.Metrics(reg), beam.Name("sliding"))
	if err := g.ProcessElement(context.Background(), "k", input, func(Pane[string, string]) {}); err != nil {
		t.Fatalf("ProcessElement: %v", err)
	}
	// Windows still open at the end of the input are evicted with it.
	const windows = `
# HELP beam_grouping_windows_evicted_total Windows removed from the active set of a key.
# TYPE beam_grouping_windows_evicted_total counter
beam_grouping_windows_evicted_total{transform="sliding"} 5
# HELP beam_grouping_windows_opened_total Windows observed for the first time for a key.
# TYPE beam_grouping_windows_opened_total counter
beam_grouping_windows_opened_total{transform="sliding"} 5
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(windows), "beam_grouping_windows_opened_total", "beam_grouping_windows_evicted_total"); err != nil {
		t.Error(err)
	}
}

func TestViaIterators_errors(t *testing.T) {
	ctx := context.Background()
	g := NewViaIterators[string, string]()
	emit := func(Pane[string, string]) {}

	once := slices.Values([]window.Value[string]{{Value: "a", Windows: []window.Window{window.GlobalWindow{}}}})
	if err := g.ProcessElement(ctx, "k", once, emit); !errors.Is(err, ErrNotReiterable) {
		t.Errorf("single use input: got %v, want %v", err, ErrNotReiterable)
	}

	noWindows := []window.Value[string]{
		{Value: "a", Timestamp: 0, Windows: []window.Window{window.GlobalWindow{}}},
		{Value: "b", Timestamp: 1},
	}
	if err := g.ProcessElement(ctx, "k", noWindows, emit); !errors.Is(err, window.ErrNoWindows) {
		t.Errorf("element without windows: got %v, want %v", err, window.ErrNoWindows)
	}
}
