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

// Package window contains window representations, the functions that
// assign elements to windows, and the metadata of windowed values.
package window

import (
	"cmp"
	"fmt"
	"slices"

	"lostluck.dev/beam-windowing/mtime"
)

// Window is a bounded region of event time that elements are grouped into.
//
// Windows are immutable values. Implementations outside this package are
// permitted, provided Equals is consistent with their encoding.
type Window interface {
	// MaxTimestamp returns the inclusive upper bound of timestamps for
	// elements in the window.
	MaxTimestamp() mtime.Time
	// Equals reports whether the two windows are the same window.
	Equals(o Window) bool
}

// IntervalWindow is the half open event time interval [Start, End).
type IntervalWindow struct {
	Start, End mtime.Time
}

// MaxTimestamp returns the last millisecond in the window.
func (w IntervalWindow) MaxTimestamp() mtime.Time {
	return w.End - 1
}

func (w IntervalWindow) Equals(o Window) bool {
	ow, ok := o.(IntervalWindow)
	return ok && w == ow
}

// Contains reports whether the timestamp is in the window.
func (w IntervalWindow) Contains(t mtime.Time) bool {
	return w.Start <= t && t < w.End
}

// Intersects reports whether the windows overlap or touch.
func (w IntervalWindow) Intersects(o IntervalWindow) bool {
	return w.Start <= o.End && o.Start <= w.End
}

// Span returns the smallest window containing both windows.
func (w IntervalWindow) Span(o IntervalWindow) IntervalWindow {
	return IntervalWindow{Start: mtime.Min(w.Start, o.Start), End: mtime.Max(w.End, o.End)}
}

func (w IntervalWindow) String() string {
	return fmt.Sprintf("[%v, %v)", w.Start, w.End)
}

// GlobalWindow is the single window covering all of event time.
type GlobalWindow struct{}

func (GlobalWindow) MaxTimestamp() mtime.Time {
	return mtime.EndOfGlobalWindowTime
}

func (GlobalWindow) Equals(o Window) bool {
	_, ok := o.(GlobalWindow)
	return ok
}

func (GlobalWindow) String() string {
	return "*"
}

var (
	_ Window = IntervalWindow{}
	_ Window = GlobalWindow{}
)

// Contains reports whether w is among ws.
func Contains(ws []Window, w Window) bool {
	return slices.ContainsFunc(ws, w.Equals)
}

// Compare orders windows by their max timestamp, and then by start time
// for interval windows.
func Compare(a, b Window) int {
	if c := cmp.Compare(a.MaxTimestamp(), b.MaxTimestamp()); c != 0 {
		return c
	}
	ai, aok := a.(IntervalWindow)
	bi, bok := b.(IntervalWindow)
	if aok && bok {
		return cmp.Compare(ai.Start, bi.Start)
	}
	return 0
}

// Less reports whether a sorts before b.
func Less(a, b Window) bool {
	return Compare(a, b) < 0
}
