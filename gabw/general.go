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
	"log/slog"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	beam "lostluck.dev/beam-windowing"
	"lostluck.dev/beam-windowing/coders"
	"lostluck.dev/beam-windowing/internal/metrics"
	"lostluck.dev/beam-windowing/mtime"
	"lostluck.dev/beam-windowing/state"
	"lostluck.dev/beam-windowing/trigger"
	"lostluck.dev/beam-windowing/window"
)

// ViaState groups by keeping the contents of each window in state, and
// asking the strategy's trigger when to fire. It supports every strategy:
// merging windows, triggers that fire more than once, and late data.
//
// Per window, values are kept in a bag and the earliest element timestamp
// in a watermark hold, which becomes the timestamp of the next pane. When
// windows merge, all of their state is merged before any trigger runs.
type ViaState[K, V any] struct {
	strategy    beam.Strategy
	keyCoder    coders.Coder[K]
	windowCoder coders.Coder[window.Window]
	backend     state.Backend

	logger  *slog.Logger
	metrics *metrics.Transform

	buffer   state.BagTag[V]
	hold     state.WatermarkHoldTag
	pending  state.CombiningTag[int64, V, int64]
	pane     state.ValueTag[window.PaneInfo]
	finished state.ValueTag[bool]
	active   state.ValueTag[[]window.Window]

	// windowTags are all the tags kept per window, including the trigger's.
	windowTags []state.Tag
}

// NewViaState returns the state engine for the strategy. Without a
// configured backend, state is kept in memory.
func NewViaState[K, V any](s beam.Strategy, keyCoder coders.Coder[K], valueCoder coders.Coder[V], opts ...beam.Options) (*ViaState[K, V], error) {
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "can't group with invalid strategy")
	}
	if keyCoder == nil {
		return nil, errors.New("state engine requires a key coder")
	}
	o := resolve("state", opts)
	if o.backend == nil {
		o.backend = state.NewMemoryBackend()
	}
	wc := s.WindowFn().WindowCoder()
	g := &ViaState[K, V]{
		strategy:    s,
		keyCoder:    keyCoder,
		windowCoder: wc,
		backend:     o.backend,
		logger:      o.logger,
		metrics:     o.metrics,

		buffer:   state.Bag("buffer", valueCoder),
		hold:     state.WatermarkHold("hold"),
		pending:  state.Combining[int64, V, int64]("pending", coders.VarInt[int64]{}, state.CountFn[V]{}),
		pane:     state.Value[window.PaneInfo]("pane", window.PaneCoder{}),
		finished: state.Value[bool]("finished", coders.Bool{}),
		active:   state.Value[[]window.Window]("active", coders.Iterable[window.Window]{Elem: wc}),
	}
	g.windowTags = append([]state.Tag{g.buffer, g.hold, g.pending, g.pane, g.finished}, trigger.Tags(s.Trigger())...)

	validate := state.Validate
	if state.IsPersistent(g.backend) {
		validate = state.ValidatePersistable
	}
	if err := validate(append(slices.Clone(g.windowTags), g.active)...); err != nil {
		return nil, errors.Wrap(err, "invalid grouping state")
	}
	return g, nil
}

var _ Engine[string, int] = (*ViaState[string, int])(nil)

// ProcessElement groups a bounded sequence: it adds every value, then
// advances the watermark to the end of time, firing and releasing every
// window.
func (g *ViaState[K, V]) ProcessElement(ctx context.Context, key K, values any, emit func(Pane[K, V])) error {
	cur, err := NewCursor[window.Value[V]](values)
	if err != nil {
		return err
	}
	k := g.ForKey(key)
	for e := range cur.All() {
		if err := k.Add(ctx, e); err != nil {
			return err
		}
	}
	return k.AdvanceWatermark(ctx, mtime.MaxTimestamp, emit)
}

// ForKey returns the grouping of a single key, with the watermark at the
// start of time. Its state is read from and written to the engine's
// backend.
func (g *ViaState[K, V]) ForKey(key K) *Keyed[K, V] {
	return &Keyed[K, V]{
		g:         g,
		key:       key,
		in:        state.NewInternals(g.backend, coders.Encode(g.keyCoder, key)),
		watermark: mtime.MinTimestamp,
	}
}

// Keyed is the grouping of one key in a ViaState engine. It must not be used
// concurrently.
type Keyed[K, V any] struct {
	g         *ViaState[K, V]
	key       K
	in        *state.Internals
	watermark mtime.Time
}

// Watermark returns the input watermark last advanced to.
func (k *Keyed[K, V]) Watermark() mtime.Time {
	return k.watermark
}

func (k *Keyed[K, V]) accessor(w window.Window) state.Accessor {
	return k.in.Namespace(state.WindowNamespace(w, k.g.windowCoder))
}

// expired reports whether the window is past its allowed lateness, and is
// no longer accepting data. The final watermark expires every window.
func (k *Keyed[K, V]) expired(w window.Window) bool {
	if k.watermark == mtime.MaxTimestamp {
		return true
	}
	return k.watermark.After(w.MaxTimestamp().Add(k.g.strategy.AllowedLateness()))
}

func (k *Keyed[K, V]) readActive(ctx context.Context) ([]window.Window, error) {
	ws, _, err := k.g.active.Read(ctx, k.in.Namespace(state.GlobalNamespace))
	return ws, err
}

func (k *Keyed[K, V]) writeActive(ctx context.Context, ws []window.Window) error {
	acc := k.in.Namespace(state.GlobalNamespace)
	if len(ws) == 0 {
		if err := k.g.active.Clear(ctx, acc); err != nil {
			return err
		}
		// Nothing is left for the key.
		return k.in.Release(ctx)
	}
	return k.g.active.Write(ctx, acc, ws)
}

func (k *Keyed[K, V]) triggerContext(ctx context.Context, w window.Window, acc state.Accessor) (*trigger.Context, error) {
	n, err := k.g.pending.Read(ctx, acc)
	if err != nil {
		return nil, err
	}
	return &trigger.Context{Window: w, InputWatermark: k.watermark, Pending: n, State: acc}, nil
}

// Add adds values to their windows. Values for windows that expired or whose
// trigger finished are dropped.
//
// If Add fails, the values added before the failure stay in their windows
// and fire with them, so they must not be added again.
func (k *Keyed[K, V]) Add(ctx context.Context, values ...window.Value[V]) (err error) {
	active, err := k.readActive(ctx)
	if err != nil {
		return err
	}
	// Windows already holding state must stay active, even on error.
	defer func() {
		err = multierr.Append(err, k.writeActive(ctx, active))
	}()
	for _, e := range values {
		if err := e.Validate(); err != nil {
			return errors.Wrapf(err, "grouping key %v", k.key)
		}
		var targets []window.Window
		for _, w := range e.Windows {
			if k.expired(w) {
				k.g.metrics.LateDropped()
				k.g.logger.Log(ctx, slog.LevelDebug, "dropped late element", slog.Any("window", w), slog.Any("timestamp", e.Timestamp), slog.Any("watermark", k.watermark))
				continue
			}
			if !window.Contains(active, w) {
				active = append(active, w)
				k.g.metrics.WindowOpened()
			}
			targets = append(targets, w)
		}
		if len(targets) == 0 {
			continue
		}
		if fn, ok := k.g.strategy.WindowFn().(window.MergingFn); ok {
			merged, mergedTargets, err := k.merge(ctx, fn, active, targets)
			if err != nil {
				return err
			}
			active, targets = merged, mergedTargets
		}
		for i, w := range targets {
			if window.Contains(targets[:i], w) {
				continue
			}
			if err := k.addTo(ctx, w, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (k *Keyed[K, V]) addTo(ctx context.Context, w window.Window, e window.Value[V]) error {
	acc := k.accessor(w)
	if done, _, err := k.g.finished.Read(ctx, acc); err != nil || done {
		if done {
			k.g.logger.Log(ctx, slog.LevelDebug, "dropped element for finished window", slog.Any("window", w), slog.Any("timestamp", e.Timestamp))
		}
		return err
	}
	if err := k.g.buffer.Append(ctx, acc, e.Value); err != nil {
		return err
	}
	if err := k.g.hold.Add(ctx, acc, e.Timestamp); err != nil {
		return err
	}
	if err := k.g.pending.Add(ctx, acc, e.Value); err != nil {
		return err
	}
	tc, err := k.triggerContext(ctx, w, acc)
	if err != nil {
		return err
	}
	return errors.Wrapf(k.g.strategy.Trigger().OnElement(ctx, tc), "trigger %v", k.g.strategy.Trigger())
}

// merge applies the merges fn reports for the active windows to their state,
// and returns the new active windows, and the targets replaced by the
// windows they merged into.
func (k *Keyed[K, V]) merge(ctx context.Context, fn window.MergingFn, active, targets []window.Window) ([]window.Window, []window.Window, error) {
	results, err := window.Merge(fn, active)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "merging windows of key %v", k.key)
	}
	for _, r := range results {
		sources := make([]state.Namespace, 0, len(r.Sources))
		for _, w := range r.Sources {
			sources = append(sources, state.WindowNamespace(w, k.g.windowCoder))
		}
		if err := k.in.Merge(ctx, sources, state.WindowNamespace(r.Result, k.g.windowCoder), k.g.windowTags...); err != nil {
			return nil, nil, err
		}
		active = slices.DeleteFunc(active, func(w window.Window) bool {
			return window.Contains(r.Sources, w)
		})
		active = append(active, r.Result)
		for i, w := range targets {
			if window.Contains(r.Sources, w) {
				targets[i] = r.Result
			}
		}
		k.g.metrics.Merged()
		k.g.logger.Log(ctx, slog.LevelDebug, "merged windows", slog.Any("sources", r.Sources), slog.Any("result", r.Result))
	}
	return active, targets, nil
}

// AdvanceWatermark moves the input watermark forward, fires the windows
// whose trigger is ready, and releases the windows past their allowed
// lateness. A watermark behind the current one is ignored.
func (k *Keyed[K, V]) AdvanceWatermark(ctx context.Context, wm mtime.Time, emit func(Pane[K, V])) error {
	k.watermark = mtime.Max(k.watermark, wm)
	active, err := k.readActive(ctx)
	if err != nil {
		return err
	}
	slices.SortFunc(active, window.Compare)

	var remaining []window.Window
	for _, w := range active {
		closing := k.expired(w)
		if err := k.evaluate(ctx, w, closing, emit); err != nil {
			return err
		}
		if !closing {
			remaining = append(remaining, w)
			continue
		}
		if err := k.in.Clear(ctx, state.WindowNamespace(w, k.g.windowCoder), k.g.windowTags...); err != nil {
			return err
		}
		k.g.metrics.WindowsEvicted(1)
		k.g.logger.Log(ctx, slog.LevelDebug, "window expired", slog.Any("window", w), slog.Any("watermark", k.watermark))
	}
	return k.writeActive(ctx, remaining)
}

// evaluate asks the trigger whether the window fires. A closing window with
// unfired data fires a final pane regardless.
func (k *Keyed[K, V]) evaluate(ctx context.Context, w window.Window, closing bool, emit func(Pane[K, V])) error {
	acc := k.accessor(w)
	done, _, err := k.g.finished.Read(ctx, acc)
	if err != nil || done {
		return err
	}
	tc, err := k.triggerContext(ctx, w, acc)
	if err != nil {
		return err
	}
	if tc.Pending == 0 {
		// A window opened by a failed Add may hold nothing at all.
		if _, fired, err := k.g.pane.Read(ctx, acc); err != nil || !fired {
			return err
		}
	}
	t := k.g.strategy.Trigger()
	d, err := t.ShouldFire(ctx, tc)
	if err != nil {
		return errors.Wrapf(err, "trigger %v", t)
	}
	switch {
	case d == trigger.FireAndFinish:
		if err := k.fire(ctx, tc, true, emit); err != nil {
			return err
		}
		return k.g.finished.Write(ctx, acc, true)
	case d == trigger.Fire || (closing && tc.Pending > 0):
		return k.fire(ctx, tc, closing, emit)
	}
	return nil
}

func (k *Keyed[K, V]) fire(ctx context.Context, tc *trigger.Context, last bool, emit func(Pane[K, V])) error {
	acc, w := tc.State, tc.Window
	values, err := k.g.buffer.Read(ctx, acc)
	if err != nil {
		return err
	}
	prev, fired, err := k.g.pane.Read(ctx, acc)
	if err != nil {
		return err
	}
	ts, held, err := k.g.hold.Read(ctx, acc)
	if err != nil {
		return err
	}
	if !held {
		ts = w.MaxTimestamp()
	}

	info := window.PaneInfo{IsFirst: !fired, IsLast: last}
	if fired {
		info.Index = prev.Index + 1
	}
	switch {
	case !tc.IsPastEndOfWindow():
		info.Timing = window.Early
		info.NonSpeculativeIndex = -1
	case fired && prev.Timing != window.Early:
		info.Timing = window.Late
		info.NonSpeculativeIndex = prev.NonSpeculativeIndex + 1
	default:
		info.Timing = window.OnTime
	}

	emit(Pane[K, V]{
		Key:       k.key,
		Values:    Slice[V](values),
		Window:    w,
		Timestamp: ts,
		Info:      info,
	})
	k.g.metrics.PaneEmitted(info.Timing)
	k.g.logger.Log(ctx, slog.LevelDebug, "pane fired", slog.Any("window", w), slog.Any("pane", info), slog.Int("values", len(values)))

	if err := k.g.pane.Write(ctx, acc, info); err != nil {
		return err
	}
	if err := k.g.pending.Clear(ctx, acc); err != nil {
		return err
	}
	if err := k.g.hold.Clear(ctx, acc); err != nil {
		return err
	}
	if k.g.strategy.Mode() == beam.Discarding {
		if err := k.g.buffer.Clear(ctx, acc); err != nil {
			return err
		}
	}
	return errors.Wrapf(k.g.strategy.Trigger().OnFire(ctx, tc), "trigger %v", k.g.strategy.Trigger())
}
