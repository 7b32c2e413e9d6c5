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
	"cmp"
	"slices"

	"github.com/pkg/errors"
)

// ErrInconsistentMerge is returned when a MergingFn reports merges that
// don't agree with the active windows.
var ErrInconsistentMerge = errors.New("inconsistent window merge")

// MergeResult is a single merge reported by a MergingFn.
type MergeResult struct {
	Sources []Window
	Result  Window
}

type mergeCollector struct {
	active  []Window
	merged  []bool
	results []MergeResult
}

func (c *mergeCollector) Windows() []Window {
	return slices.Clone(c.active)
}

func (c *mergeCollector) Merge(toBeMerged []Window, result Window) error {
	if len(toBeMerged) == 0 {
		return errors.Wrap(ErrInconsistentMerge, "no windows to merge")
	}
	if result == nil {
		return errors.Wrap(ErrInconsistentMerge, "nil merge result")
	}
	for _, w := range toBeMerged {
		i := slices.IndexFunc(c.active, w.Equals)
		if i < 0 {
			return errors.Wrapf(ErrInconsistentMerge, "window %v is not active", w)
		}
		if c.merged[i] {
			return errors.Wrapf(ErrInconsistentMerge, "window %v merged twice", w)
		}
		c.merged[i] = true
	}
	c.results = append(c.results, MergeResult{Sources: slices.Clone(toBeMerged), Result: result})
	return nil
}

// Merge asks fn to merge the active windows, and returns the validated merges.
func Merge(fn MergingFn, active []Window) ([]MergeResult, error) {
	c := &mergeCollector{
		active: active,
		merged: make([]bool, len(active)),
	}
	if err := fn.MergeWindows(c); err != nil {
		return nil, err
	}
	return c.results, nil
}

// MergeOverlappingIntervals merges all interval windows that overlap or touch
// into their span. Other window types are an error.
func MergeOverlappingIntervals(ctx MergeContext) error {
	var ws []IntervalWindow
	for _, w := range ctx.Windows() {
		iw, ok := w.(IntervalWindow)
		if !ok {
			return errors.Errorf("can't merge non interval window %v", w)
		}
		ws = append(ws, iw)
	}
	slices.SortFunc(ws, func(a, b IntervalWindow) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.End, b.End)
	})

	var group []Window
	var union IntervalWindow
	flush := func() error {
		if len(group) > 1 {
			return ctx.Merge(group, union)
		}
		return nil
	}
	for _, w := range ws {
		if len(group) > 0 && union.Intersects(w) {
			group = append(group, w)
			union = union.Span(w)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		group = []Window{w}
		union = w
	}
	return flush()
}
