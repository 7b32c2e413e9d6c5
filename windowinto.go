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
	"lostluck.dev/beam-windowing/internal/beamopts"
	"lostluck.dev/beam-windowing/trigger"
	"lostluck.dev/beam-windowing/window"
)

// Bound changes the windowing strategy of a collection. Like Strategy, it's
// a value: each method returns a new Bound.
type Bound struct {
	name     string
	strategy Strategy
}

// WindowInto returns a Bound that windows with fn, the default trigger, and
// discarding mode. Allowed lateness is taken from the input unless set.
func WindowInto(fn window.Fn, opts ...Options) Bound {
	opt := beamopts.Resolve(opts...)
	return Bound{name: opt.Name, strategy: Of(fn)}
}

// Triggering returns a Bound firing panes with t.
func (b Bound) Triggering(t trigger.Trigger) Bound {
	b.strategy = b.strategy.WithTrigger(t)
	return b
}

// DiscardingFiredPanes returns a Bound clearing window contents once fired.
func (b Bound) DiscardingFiredPanes() Bound {
	b.strategy = b.strategy.WithMode(Discarding)
	return b
}

// AccumulatingFiredPanes returns a Bound keeping window contents once fired,
// so later panes include earlier elements.
func (b Bound) AccumulatingFiredPanes() Bound {
	b.strategy = b.strategy.WithMode(Accumulating)
	return b
}

// WithAllowedLateness returns a Bound accepting elements up to d behind the
// watermark. Window state is kept that long past the end of the window.
func (b Bound) WithAllowedLateness(d time.Duration) Bound {
	b.strategy = b.strategy.WithAllowedLateness(d)
	return b
}

// Name returns the configured name, or a description of the Bound.
func (b Bound) Name() string {
	if b.name != "" {
		return b.name
	}
	return fmt.Sprintf("Window.Into(%v)", b.strategy.WindowFn())
}

// Strategy returns the strategy as configured, before it's applied to an
// input.
func (b Bound) Strategy() Strategy {
	return b.strategy
}

// Apply returns the strategy of the output, given the strategy of the input.
// The input's allowed lateness is kept unless the Bound set one.
func (b Bound) Apply(input Strategy) (Strategy, error) {
	out := b.strategy
	if out.IsDefaultAllowedLateness() {
		out = out.WithAllowedLateness(input.AllowedLateness())
	}
	if err := out.Validate(); err != nil {
		return Strategy{}, errors.Wrapf(err, "invalid windowing for %v", b.Name())
	}
	return out, nil
}
