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

// Package gabw groups the values of a key by window, and emits panes of
// them.
//
// The values of a key arrive as a sequence of windowed values, sorted by
// timestamp. [New] returns the engine for a windowing strategy:
// [ViaIterators] when the strategy never merges windows and fires each
// window once, and [ViaState] otherwise.
//
// ViaIterators doesn't buffer the sequence. Each pane it emits is a lazy
// view that reads the window's values from the shared input when iterated,
// so memory is bounded by the views still held, not by the length of the
// sequence.
package gabw

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	beam "lostluck.dev/beam-windowing"
	"lostluck.dev/beam-windowing/coders"
	"lostluck.dev/beam-windowing/internal/beamopts"
	"lostluck.dev/beam-windowing/internal/metrics"
	"lostluck.dev/beam-windowing/mtime"
	"lostluck.dev/beam-windowing/state"
	"lostluck.dev/beam-windowing/trigger"
	"lostluck.dev/beam-windowing/window"
)

// Pane is one firing of a window for a key.
type Pane[K, V any] struct {
	Key    K
	Values Values[V]
	Window window.Window
	// Timestamp is the event time of the pane.
	Timestamp mtime.Time
	Info      window.PaneInfo
}

func (p Pane[K, V]) String() string {
	return fmt.Sprintf("Pane{%v %v@%v %v}", p.Key, p.Window, p.Timestamp, p.Info)
}

// Engine groups the values of a key by window.
//
// values must be a []window.Value[V] or a Reiterable[window.Value[V]],
// sorted by timestamp. Panes are passed to emit as they are produced.
// An engine must not be used for the same key concurrently.
type Engine[K, V any] interface {
	ProcessElement(ctx context.Context, key K, values any, emit func(Pane[K, V])) error
}

// IsSupported reports whether the strategy can be grouped by ViaIterators:
// its windows never merge, and its trigger fires each window once.
func IsSupported(s beam.Strategy) bool {
	if s.WindowFn() == nil || !window.IsNonMerging(s.WindowFn()) {
		return false
	}
	if !trigger.IsDefault(s.Trigger()) {
		return false
	}
	// Without late data the default trigger fires once, so there is no
	// difference between the two modes.
	switch s.Mode() {
	case beam.Discarding, beam.Accumulating:
		return true
	}
	return false
}

// New returns the engine for the strategy. The coders are only used by the
// state engine, to keep window contents in its backend.
func New[K, V any](s beam.Strategy, keyCoder coders.Coder[K], valueCoder coders.Coder[V], opts ...beam.Options) (Engine[K, V], error) {
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "can't group with invalid strategy")
	}
	if IsSupported(s) {
		return NewViaIterators[K, V](opts...), nil
	}
	return NewViaState(s, keyCoder, valueCoder, opts...)
}

type engineOpts struct {
	name    string
	logger  *slog.Logger
	metrics *metrics.Transform
	backend state.Backend
}

func resolve(kind string, opts []beam.Options) engineOpts {
	opt := beamopts.Resolve(opts...)
	name := opt.Name
	if name == "" {
		name = kind
	}
	var g *metrics.Grouping
	if opt.Metrics != nil {
		g = metrics.NewGrouping(opt.Metrics)
	}
	return engineOpts{
		name:    name,
		logger:  opt.LoggerOrDefault().With(slog.String("transform", name), slog.String("engine", kind)),
		metrics: g.Transform(name),
		backend: opt.Backend,
	}
}
