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

package beam

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"lostluck.dev/beam-windowing/state"
	"lostluck.dev/beam-windowing/trigger"
	"lostluck.dev/beam-windowing/window"
)

// AccumulationMode says what happens to a window's contents after a pane
// fires.
type AccumulationMode int

const (
	// Discarding clears the contents, so each pane holds only the elements
	// that arrived since the previous one.
	Discarding AccumulationMode = iota
	// Accumulating keeps the contents, so each pane holds every element of
	// the window so far.
	Accumulating
)

func (m AccumulationMode) String() string {
	switch m {
	case Discarding:
		return "DISCARDING_FIRED_PANES"
	case Accumulating:
		return "ACCUMULATING_FIRED_PANES"
	}
	return fmt.Sprintf("AccumulationMode(%d)", int(m))
}

func (m AccumulationMode) valid() bool {
	return m == Discarding || m == Accumulating
}

// Strategy is the windowing configuration of a collection.
//
// The zero Strategy is not valid; use [Of] or [GlobalStrategy].
type Strategy struct {
	fn          window.Fn
	trigger     trigger.Trigger
	mode        AccumulationMode
	lateness    time.Duration
	latenessSet bool
}

// Of returns the strategy windowing with fn, firing with the default
// trigger, discarding fired panes, and allowing no late data.
func Of(fn window.Fn) Strategy {
	return Strategy{fn: fn, trigger: trigger.Default{}, mode: Discarding}
}

// GlobalStrategy is the strategy of collections that were never windowed.
func GlobalStrategy() Strategy {
	return Of(window.GlobalWindows{})
}

func (s Strategy) WindowFn() window.Fn            { return s.fn }
func (s Strategy) Trigger() trigger.Trigger       { return s.trigger }
func (s Strategy) Mode() AccumulationMode         { return s.mode }
func (s Strategy) AllowedLateness() time.Duration { return s.lateness }
func (s Strategy) IsDefaultAllowedLateness() bool { return !s.latenessSet }

// WithWindowFn returns a copy of the strategy using fn.
func (s Strategy) WithWindowFn(fn window.Fn) Strategy {
	s.fn = fn
	return s
}

// WithTrigger returns a copy of the strategy using the trigger.
func (s Strategy) WithTrigger(t trigger.Trigger) Strategy {
	s.trigger = t
	return s
}

// WithMode returns a copy of the strategy using the accumulation mode.
func (s Strategy) WithMode(m AccumulationMode) Strategy {
	s.mode = m
	return s
}

// WithAllowedLateness returns a copy of the strategy accepting data up to d
// behind the watermark. The lateness is then no longer the default.
func (s Strategy) WithAllowedLateness(d time.Duration) Strategy {
	s.lateness = d
	s.latenessSet = true
	return s
}

// Validate reports every problem with the strategy's configuration,
// including the state tags its trigger declares.
func (s Strategy) Validate() error {
	var err error
	if werr := window.Validate(s.fn); werr != nil {
		err = multierr.Append(err, errors.Wrap(werr, "window fn"))
	}
	if s.trigger == nil {
		err = multierr.Append(err, errors.New("nil trigger"))
	} else if terr := state.Validate(trigger.Tags(s.trigger)...); terr != nil {
		err = multierr.Append(err, errors.Wrapf(terr, "trigger %v", s.trigger))
	}
	if !s.mode.valid() {
		err = multierr.Append(err, errors.Errorf("unknown accumulation mode %v", s.mode))
	}
	if s.lateness < 0 {
		err = multierr.Append(err, errors.Errorf("negative allowed lateness %v", s.lateness))
	}
	return err
}

// IsCompatible reports whether collections of the two strategies may be
// combined, which requires compatible window fns.
func (s Strategy) IsCompatible(o Strategy) bool {
	return s.fn != nil && o.fn != nil && s.fn.IsCompatible(o.fn)
}

func (s Strategy) String() string {
	return fmt.Sprintf("Strategy{fn: %v, trigger: %v, mode: %v, allowedLateness: %v}", s.fn, s.trigger, s.mode, s.lateness)
}

// GroupedStrategy returns the strategy of the output of grouping a collection
// with the input strategy. Windows of a merging fn were merged by the
// grouping, so the fn can't be used to assign or merge them again until
// [Remerge] restores it.
func GroupedStrategy(input Strategy) Strategy {
	if input.fn == nil || window.IsNonMerging(input.fn) {
		return input
	}
	return input.WithWindowFn(window.Invalid{
		Cause:    "WindowFn has already been consumed by a previous grouping",
		Original: input.fn,
	})
}

// Remerge returns the strategy with the window fn invalidated by an
// earlier grouping restored, so the next grouping merges windows again.
func Remerge(input Strategy) Strategy {
	if inv, ok := input.fn.(window.Invalid); ok {
		return input.WithWindowFn(inv.Original)
	}
	return input
}
