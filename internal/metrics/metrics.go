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

// Package metrics exports counters for grouping by window.
//
// All methods are safe to call on nil receivers, which record nothing, so
// engines can be built without a registry.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"lostluck.dev/beam-windowing/window"
)

const (
	namespace = "beam"
	subsystem = "grouping"

	LabelTransform = "transform"
	LabelTiming    = "timing"
)

// Grouping holds the metric families for grouping transforms. Families are
// shared by transforms through the transform label.
type Grouping struct {
	opened  *prometheus.CounterVec
	evicted *prometheus.CounterVec
	panes   *prometheus.CounterVec
	dropped *prometheus.CounterVec
	merges  *prometheus.CounterVec
}

// NewGrouping registers the grouping metric families on reg. Families
// already registered by an earlier call are reused.
func NewGrouping(reg prometheus.Registerer) *Grouping {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, append([]string{LabelTransform}, labels...))
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return are.ExistingCollector.(*prometheus.CounterVec)
			}
			panic(err)
		}
		return c
	}
	return &Grouping{
		opened:  counter("windows_opened_total", "Windows observed for the first time for a key."),
		evicted: counter("windows_evicted_total", "Windows removed from the active set of a key."),
		panes:   counter("panes_emitted_total", "Panes emitted, by timing.", LabelTiming),
		dropped: counter("late_elements_dropped_total", "Elements dropped for arriving after their window expired."),
		merges:  counter("window_merges_total", "Window merges applied to state."),
	}
}

// Transform returns the counters of a single transform. Its series are
// created here, so they are exported at zero before the first event.
func (g *Grouping) Transform(name string) *Transform {
	if g == nil {
		return nil
	}
	return &Transform{
		opened:  g.opened.WithLabelValues(name),
		evicted: g.evicted.WithLabelValues(name),
		panes:   g.panes.MustCurryWith(prometheus.Labels{LabelTransform: name}),
		dropped: g.dropped.WithLabelValues(name),
		merges:  g.merges.WithLabelValues(name),
	}
}

// Transform records grouping events for one transform.
type Transform struct {
	opened, evicted, dropped, merges prometheus.Counter

	panes *prometheus.CounterVec
}

func (t *Transform) WindowOpened() {
	if t == nil {
		return
	}
	t.opened.Inc()
}

func (t *Transform) WindowsEvicted(n int) {
	if t == nil || n == 0 {
		return
	}
	t.evicted.Add(float64(n))
}

func (t *Transform) PaneEmitted(timing window.Timing) {
	if t == nil {
		return
	}
	t.panes.WithLabelValues(timing.String()).Inc()
}

func (t *Transform) LateDropped() {
	if t == nil {
		return
	}
	t.dropped.Inc()
}

func (t *Transform) Merged() {
	if t == nil {
		return
	}
	t.merges.Inc()
}
