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

// Package trigger defines how grouping decides when a window's contents are
// emitted as a pane.
//
// A Trigger is consulted for a single window of a single key. It sees the
// input watermark, the number of elements added since the window last
// fired, and the window's state, and decides whether to fire.
// Triggers that keep their own state declare its tags through [Stateful], so
// the state is merged with the window when windows merge.
package trigger

import (
	"context"
	"fmt"

	"lostluck.dev/beam-windowing/mtime"
	"lostluck.dev/beam-windowing/state"
	"lostluck.dev/beam-windowing/window"
)

// Decision is the outcome of evaluating a trigger.
type Decision int

const (
	// Continue leaves the window as is.
	Continue Decision = iota
	// Fire emits a pane of the window's contents.
	Fire
	// FireAndFinish emits a final pane. Later elements for the window are
	// dropped.
	FireAndFinish
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "Continue"
	case Fire:
		return "Fire"
	case FireAndFinish:
		return "FireAndFinish"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// Context is what a trigger sees of a window.
type Context struct {
	Window         window.Window
	InputWatermark mtime.Time
	// Pending is the number of elements added since the window last fired.
	Pending int64
	// State is the window's state, for triggers that declare tags.
	State state.Accessor
}

// IsPastEndOfWindow reports whether the watermark has passed the window.
func (c *Context) IsPastEndOfWindow() bool {
	return c.InputWatermark.After(c.Window.MaxTimestamp())
}

// Trigger decides when panes fire.
type Trigger interface {
	// OnElement is called after an element is added to the window.
	OnElement(ctx context.Context, tc *Context) error
	// ShouldFire is called when the watermark advances.
	ShouldFire(ctx context.Context, tc *Context) (Decision, error)
	// OnFire is called after the window fires, to reset trigger state.
	OnFire(ctx context.Context, tc *Context) error
}

// Stateful is implemented by triggers that keep state in the window.
type Stateful interface {
	Trigger
	StateTags() []state.Tag
}

// Tags returns the state tags the trigger declares, if any.
func Tags(t Trigger) []state.Tag {
	if s, ok := t.(Stateful); ok {
		return s.StateTags()
	}
	return nil
}

// Default fires once when the watermark passes the end of the window, and
// again for each batch of late elements within the allowed lateness.
type Default struct{}

var _ Trigger = Default{}

func (Default) OnElement(context.Context, *Context) error { return nil }
func (Default) OnFire(context.Context, *Context) error    { return nil }

func (Default) ShouldFire(_ context.Context, tc *Context) (Decision, error) {
	if tc.Pending > 0 && tc.IsPastEndOfWindow() {
		return Fire, nil
	}
	return Continue, nil
}

func (Default) String() string { return "Default" }

// IsDefault reports whether t is the default trigger.
func IsDefault(t Trigger) bool {
	switch t.(type) {
	case Default, *Default:
		return true
	}
	return false
}
