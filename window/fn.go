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
	"fmt"
	"time"

	"github.com/pkg/errors"
	"lostluck.dev/beam-windowing/coders"
	"lostluck.dev/beam-windowing/mtime"
)

// Fn assigns timestamps to windows.
type Fn interface {
	// AssignWindows returns the windows an element with the timestamp
	// belongs to. The result is never empty unless an error is returned.
	AssignWindows(ts mtime.Time) ([]Window, error)
	// WindowCoder returns the coder for windows this Fn produces.
	WindowCoder() coders.Coder[Window]
	// IsCompatible reports whether the two Fns assign the same windows,
	// which makes their outputs safe to flatten or join.
	IsCompatible(o Fn) bool
}

// MergingFn is a Fn whose windows may be merged as elements arrive,
// such as sessions.
type MergingFn interface {
	Fn
	// MergeWindows inspects the active windows and reports merges to the
	// context.
	MergeWindows(ctx MergeContext) error
}

// MergeContext exposes the active windows to a MergingFn and collects its
// merge decisions.
type MergeContext interface {
	// Windows returns the windows currently active for the key.
	Windows() []Window
	// Merge records that the given windows are replaced by the result.
	Merge(toBeMerged []Window, result Window) error
}

// IsNonMerging reports whether the fn never merges windows.
func IsNonMerging(fn Fn) bool {
	_, ok := fn.(MergingFn)
	return !ok
}

// validator is implemented by Fns with configuration to check.
type validator interface {
	Validate() error
}

// Validate checks the Fn's configuration, if it has any.
func Validate(fn Fn) error {
	if fn == nil {
		return errors.New("nil window fn")
	}
	if v, ok := fn.(validator); ok {
		return v.Validate()
	}
	return nil
}

// GlobalWindows assigns every element to the single global window.
type GlobalWindows struct{}

func (GlobalWindows) AssignWindows(mtime.Time) ([]Window, error) {
	return []Window{GlobalWindow{}}, nil
}

func (GlobalWindows) WindowCoder() coders.Coder[Window] { return GlobalWindowCoder{} }

func (GlobalWindows) IsCompatible(o Fn) bool {
	_, ok := o.(GlobalWindows)
	return ok
}

func (GlobalWindows) String() string { return "GlobalWindows" }

// Fixed assigns elements to non overlapping windows of a fixed size,
// aligned to the epoch plus the offset.
type Fixed struct {
	Size, Offset time.Duration
}

// FixedOf returns fixed windows of the given size.
func FixedOf(size time.Duration) Fixed {
	return Fixed{Size: size}
}

func (f Fixed) Validate() error {
	if f.Size.Milliseconds() <= 0 {
		return errors.Errorf("fixed windows size must be at least 1ms, got %v", f.Size)
	}
	if f.Offset < 0 || f.Offset >= f.Size {
		return errors.Errorf("fixed windows offset must be in [0, %v), got %v", f.Size, f.Offset)
	}
	return nil
}

func (f Fixed) AssignWindows(ts mtime.Time) ([]Window, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	size := f.Size.Milliseconds()
	start := ts - mtime.Time(floorMod(int64(ts)-f.Offset.Milliseconds(), size))
	return []Window{IntervalWindow{Start: start, End: start.Add(f.Size)}}, nil
}

func (f Fixed) WindowCoder() coders.Coder[Window] { return IntervalWindowCoder{} }

func (f Fixed) IsCompatible(o Fn) bool {
	of, ok := o.(Fixed)
	return ok && f == of
}

func (f Fixed) String() string {
	return fmt.Sprintf("FixedWindows(%v, offset=%v)", f.Size, f.Offset)
}

// Sliding assigns elements to overlapping windows of the given size,
// starting every period.
type Sliding struct {
	Size, Period, Offset time.Duration
}

// SlidingOf returns sliding windows of the given size and period.
func SlidingOf(size, period time.Duration) Sliding {
	return Sliding{Size: size, Period: period}
}

func (s Sliding) Validate() error {
	if s.Size.Milliseconds() <= 0 {
		return errors.Errorf("sliding windows size must be at least 1ms, got %v", s.Size)
	}
	if s.Period.Milliseconds() <= 0 {
		return errors.Errorf("sliding windows period must be at least 1ms, got %v", s.Period)
	}
	if s.Offset < 0 || s.Offset >= s.Period {
		return errors.Errorf("sliding windows offset must be in [0, %v), got %v", s.Period, s.Offset)
	}
	// Otherwise some timestamps would have no windows at all.
	if s.Size < s.Period {
		return errors.Errorf("sliding windows size %v must be at least the period %v", s.Size, s.Period)
	}
	return nil
}

func (s Sliding) AssignWindows(ts mtime.Time) ([]Window, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	size, period := s.Size.Milliseconds(), s.Period.Milliseconds()
	lastStart := int64(ts) - floorMod(int64(ts)-s.Offset.Milliseconds()+period, period)
	var ws []Window
	for start := lastStart; start > int64(ts)-size; start -= period {
		st := mtime.Time(start)
		ws = append(ws, IntervalWindow{Start: st, End: st.Add(s.Size)})
	}
	return ws, nil
}

func (s Sliding) WindowCoder() coders.Coder[Window] { return IntervalWindowCoder{} }

func (s Sliding) IsCompatible(o Fn) bool {
	os, ok := o.(Sliding)
	return ok && s == os
}

func (s Sliding) String() string {
	return fmt.Sprintf("SlidingWindows(%v, every=%v, offset=%v)", s.Size, s.Period, s.Offset)
}

// Sessions assigns each element to a window of the gap duration starting at
// its timestamp. Windows that touch or overlap are merged.
type Sessions struct {
	Gap time.Duration
}

// SessionsOf returns session windows with the given gap.
func SessionsOf(gap time.Duration) Sessions {
	return Sessions{Gap: gap}
}

func (s Sessions) Validate() error {
	if s.Gap.Milliseconds() <= 0 {
		return errors.Errorf("session gap must be at least 1ms, got %v", s.Gap)
	}
	return nil
}

func (s Sessions) AssignWindows(ts mtime.Time) ([]Window, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return []Window{IntervalWindow{Start: ts, End: ts.Add(s.Gap)}}, nil
}

func (s Sessions) MergeWindows(ctx MergeContext) error {
	return MergeOverlappingIntervals(ctx)
}

func (s Sessions) WindowCoder() coders.Coder[Window] { return IntervalWindowCoder{} }

func (s Sessions) IsCompatible(o Fn) bool {
	os, ok := o.(Sessions)
	return ok && s == os
}

func (s Sessions) String() string {
	return fmt.Sprintf("Sessions(gap=%v)", s.Gap)
}

var (
	_ Fn        = GlobalWindows{}
	_ Fn        = Fixed{}
	_ Fn        = Sliding{}
	_ MergingFn = Sessions{}
	_ Fn        = Invalid{}
)

// Invalid stands in for a Fn whose windows can no longer be assigned,
// typically after a grouping. It remembers the original Fn so it can be
// restored.
type Invalid struct {
	Cause    string
	Original Fn
}

// ErrInvalidWindows is returned when assigning windows with an Invalid fn.
var ErrInvalidWindows = errors.New("invalid windows")

func (w Invalid) AssignWindows(mtime.Time) ([]Window, error) {
	return nil, errors.Wrap(ErrInvalidWindows, w.Cause)
}

func (w Invalid) WindowCoder() coders.Coder[Window] {
	return w.Original.WindowCoder()
}

// IsCompatible is false, nothing can be combined with invalid windows.
func (w Invalid) IsCompatible(Fn) bool { return false }

func (w Invalid) String() string {
	return fmt.Sprintf("InvalidWindows(%q, %v)", w.Cause, w.Original)
}

func floorMod(x, y int64) int64 {
	return ((x % y) + y) % y
}
