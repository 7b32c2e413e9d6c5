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

package window

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"lostluck.dev/beam-windowing/mtime"
)

func iw(start, end mtime.Time) Window {
	return IntervalWindow{Start: start, End: end}
}

func TestAssignWindows(t *testing.T) {
	tests := []struct {
		name string
		fn   Fn
		ts   mtime.Time
		want []Window
	}{
		{"global", GlobalWindows{}, 42, []Window{GlobalWindow{}}},
		{"fixed", FixedOf(time.Minute), 15_000, []Window{iw(0, 60_000)}},
		{"fixedBoundary", FixedOf(time.Minute), 60_000, []Window{iw(60_000, 120_000)}},
		{"fixedLastMilli", FixedOf(time.Minute), 59_999, []Window{iw(0, 60_000)}},
		{"fixedNegative", FixedOf(time.Minute), -1, []Window{iw(-60_000, 0)}},
		{"fixedOffset", Fixed{Size: time.Minute, Offset: 10 * time.Second}, 5_000, []Window{iw(-50_000, 10_000)}},
		{"sliding", SlidingOf(time.Minute, 30*time.Second), 45_000, []Window{iw(30_000, 90_000), iw(0, 60_000)}},
		{"slidingStart", SlidingOf(time.Minute, 30*time.Second), 30_000, []Window{iw(30_000, 90_000), iw(0, 60_000)}},
		{"sessions", SessionsOf(10 * time.Second), 5_000, []Window{iw(5_000, 15_000)}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := test.fn.AssignWindows(test.ts)
			if err != nil {
				t.Fatalf("%v.AssignWindows(%v) error: %v", test.fn, test.ts, err)
			}
			if d := cmp.Diff(test.want, got); d != "" {
				t.Errorf("%v.AssignWindows(%v) diff (-want, +got):\n%v", test.fn, test.ts, d)
			}
			for _, w := range got {
				if w.MaxTimestamp() < test.ts {
					t.Errorf("window %v ends before the element timestamp %v", w, test.ts)
				}
			}
		})
	}
}

func TestAssignWindows_invalid(t *testing.T) {
	tests := []struct {
		name string
		fn   Fn
	}{
		{"zeroFixed", Fixed{}},
		{"offsetTooLarge", Fixed{Size: time.Second, Offset: time.Second}},
		{"zeroPeriod", Sliding{Size: time.Second}},
		{"slidingGaps", SlidingOf(10*time.Second, time.Minute)},
		{"zeroGap", Sessions{}},
		{"invalid", Invalid{Cause: "grouped", Original: FixedOf(time.Second)}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := test.fn.AssignWindows(0); err == nil {
				t.Errorf("%v.AssignWindows(0) succeeded, want error", test.fn)
			}
		})
	}
	_, err := Invalid{Cause: "grouped"}.AssignWindows(0)
	if !errors.Is(err, ErrInvalidWindows) {
		t.Errorf("Invalid.AssignWindows error = %v, want %v", err, ErrInvalidWindows)
	}
}

func TestIsNonMerging(t *testing.T) {
	tests := []struct {
		fn   Fn
		want bool
	}{
		{GlobalWindows{}, true},
		{FixedOf(time.Second), true},
		{SlidingOf(time.Minute, time.Second), true},
		{SessionsOf(time.Second), false},
	}
	for _, test := range tests {
		if got := IsNonMerging(test.fn); got != test.want {
			t.Errorf("IsNonMerging(%v) = %v, want %v", test.fn, got, test.want)
		}
	}
}

func TestIsCompatible(t *testing.T) {
	if !FixedOf(time.Second).IsCompatible(FixedOf(time.Second)) {
		t.Error("identical fixed windows should be compatible")
	}
	if FixedOf(time.Second).IsCompatible(FixedOf(time.Minute)) {
		t.Error("fixed windows of different sizes should not be compatible")
	}
	if FixedOf(time.Second).IsCompatible(SlidingOf(time.Second, time.Second)) {
		t.Error("fixed and sliding windows should not be compatible")
	}
}

func TestMerge_sessions(t *testing.T) {
	tests := []struct {
		name   string
		active []Window
		want   []MergeResult
	}{
		{
			name:   "disjoint",
			active: []Window{iw(0, 10), iw(20, 30)},
		}, {
			name:   "overlapping",
			active: []Window{iw(5, 15), iw(0, 10), iw(30, 40)},
			want:   []MergeResult{{Sources: []Window{iw(0, 10), iw(5, 15)}, Result: iw(0, 15)}},
		}, {
			name:   "touching",
			active: []Window{iw(0, 10), iw(10, 20)},
			want:   []MergeResult{{Sources: []Window{iw(0, 10), iw(10, 20)}, Result: iw(0, 20)}},
		}, {
			name:   "chain",
			active: []Window{iw(0, 10), iw(8, 18), iw(16, 26), iw(100, 110), iw(105, 115)},
			want: []MergeResult{
				{Sources: []Window{iw(0, 10), iw(8, 18), iw(16, 26)}, Result: iw(0, 26)},
				{Sources: []Window{iw(100, 110), iw(105, 115)}, Result: iw(100, 115)},
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Merge(SessionsOf(10), test.active)
			if err != nil {
				t.Fatalf("Merge error: %v", err)
			}
			if d := cmp.Diff(test.want, got); d != "" {
				t.Errorf("Merge diff (-want, +got):\n%v", d)
			}
		})
	}
}

type badMerger struct {
	Sessions
	merge func(ctx MergeContext) error
}

func (b badMerger) MergeWindows(ctx MergeContext) error { return b.merge(ctx) }

func TestMerge_inconsistent(t *testing.T) {
	active := []Window{iw(0, 10), iw(5, 15)}
	tests := []struct {
		name  string
		merge func(ctx MergeContext) error
	}{
		{"unknownWindow", func(ctx MergeContext) error {
			return ctx.Merge([]Window{iw(100, 110)}, iw(100, 110))
		}},
		{"mergedTwice", func(ctx MergeContext) error {
			if err := ctx.Merge([]Window{iw(0, 10)}, iw(0, 15)); err != nil {
				return err
			}
			return ctx.Merge([]Window{iw(0, 10), iw(5, 15)}, iw(0, 15))
		}},
		{"empty", func(ctx MergeContext) error {
			return ctx.Merge(nil, iw(0, 15))
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Merge(badMerger{merge: test.merge}, active)
			if !errors.Is(err, ErrInconsistentMerge) {
				t.Errorf("Merge error = %v, want %v", err, ErrInconsistentMerge)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	ws := []Window{GlobalWindow{}, iw(10, 20), iw(0, 20), iw(0, 10)}
	for i, a := range ws {
		for j, b := range ws {
			got := Compare(a, b)
			switch {
			case i == j && got != 0:
				t.Errorf("Compare(%v, %v) = %d, want 0", a, b, got)
			case i < j && got <= 0, i > j && got >= 0:
				// ws is sorted in descending order.
				t.Errorf("Compare(%v, %v) = %d, wrong order", a, b, got)
			}
		}
	}
}
