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
	"iter"
	"log/slog"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/pkg/errors"
	beam "lostluck.dev/beam-windowing"
	"lostluck.dev/beam-windowing/internal/metrics"
	"lostluck.dev/beam-windowing/mtime"
	"lostluck.dev/beam-windowing/window"
)

// ViaIterators groups without buffering, for strategies that never merge
// windows and fire each window once. See [IsSupported].
//
// For each window first seen in the input, it emits a single on time pane
// whose values are a lazy view starting at the element that opened the
// window.
type ViaIterators[K, V any] struct {
	logger  *slog.Logger
	metrics *metrics.Transform
}

// NewViaIterators returns the lazy engine.
func NewViaIterators[K, V any](opts ...beam.Options) *ViaIterators[K, V] {
	o := resolve("iterators", opts)
	return &ViaIterators[K, V]{logger: o.logger, metrics: o.metrics}
}

var _ Engine[string, int] = (*ViaIterators[string, int])(nil)

func compareTime(a, b any) int {
	return mtime.Compare(a.(mtime.Time), b.(mtime.Time))
}

func (g *ViaIterators[K, V]) ProcessElement(ctx context.Context, key K, values any, emit func(Pane[K, V])) error {
	cur, err := NewCursor[window.Value[V]](values)
	if err != nil {
		return err
	}
	// Windows whose input hasn't been passed yet, by max timestamp.
	active := treemap.NewWith(compareTime)
	for {
		e, ok := cur.Peek()
		if !ok {
			break
		}
		if err := e.Validate(); err != nil {
			return errors.Wrapf(err, "grouping key %v", key)
		}
		for _, w := range e.Windows {
			maxTs := w.MaxTimestamp()
			var open []window.Window
			if ws, ok := active.Get(maxTs); ok {
				open = ws.([]window.Window)
			}
			if window.Contains(open, w) {
				continue
			}
			active.Put(maxTs, append(open, w))
			g.metrics.WindowOpened()
			g.logger.Log(ctx, slog.LevelDebug, "window opened", slog.Any("window", w), slog.Any("timestamp", e.Timestamp))
			emit(Pane[K, V]{
				Key:       key,
				Values:    windowIterable[V]{start: cur, w: w},
				Window:    w,
				Timestamp: e.Timestamp,
				Info:      window.OnTimeAndOnlyFiring,
			})
			g.metrics.PaneEmitted(window.OnTime)
		}
		// Views hold their own cursors, so consumers never move ours.
		cur = cur.Advance()

		// Input is sorted, so no later element can be in a window that ended
		// before this one.
		for !active.Empty() {
			maxTs, ws := active.Min()
			if !maxTs.(mtime.Time).Before(e.Timestamp) {
				break
			}
			active.Remove(maxTs)
			evicted := ws.([]window.Window)
			g.metrics.WindowsEvicted(len(evicted))
			g.logger.Log(ctx, slog.LevelDebug, "windows evicted", slog.Any("maxTimestamp", maxTs), slog.Int("count", len(evicted)))
		}
	}
	// The rest close with the input.
	remaining := 0
	for _, ws := range active.Values() {
		remaining += len(ws.([]window.Window))
	}
	if remaining > 0 {
		g.metrics.WindowsEvicted(remaining)
		g.logger.Log(ctx, slog.LevelDebug, "input exhausted", slog.Int("evicted", remaining))
	}
	return nil
}

// windowIterable is the lazy view of one window's values, starting at the
// element that opened the window.
type windowIterable[V any] struct {
	start Cursor[window.Value[V]]
	w     window.Window
}

func (wi windowIterable[V]) Reiterator() Reiterator[V] {
	return &windowReiterator[V]{cur: wi.start, w: wi.w}
}

func (wi windowIterable[V]) All() iter.Seq[V] {
	return all[V](wi)
}

type windowReiterator[V any] struct {
	cur Cursor[window.Value[V]]
	w   window.Window
}

// skip moves the cursor to the next element in the window. It stops at the
// first element past the end of the window without consuming it, and
// reports whether an element in the window was found.
func (r *windowReiterator[V]) skip() bool {
	maxTs := r.w.MaxTimestamp()
	for {
		e, ok := r.cur.Peek()
		if !ok || e.Timestamp.After(maxTs) {
			return false
		}
		if e.InWindow(r.w) {
			return true
		}
		r.cur = r.cur.Advance()
	}
}

func (r *windowReiterator[V]) Next() (V, bool) {
	if !r.skip() {
		var zero V
		return zero, false
	}
	e, _ := r.cur.Peek()
	r.cur = r.cur.Advance()
	return e.Value, true
}

func (r *windowReiterator[V]) Copy() Reiterator[V] {
	return &windowReiterator[V]{cur: r.cur, w: r.w}
}
