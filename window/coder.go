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

	"github.com/pkg/errors"
	"lostluck.dev/beam-windowing/coders"
	"lostluck.dev/beam-windowing/mtime"
)

// IntervalWindowCoder encodes interval windows as their end timestamp
// followed by a varint span.
type IntervalWindowCoder struct{}

func (IntervalWindowCoder) Encode(enc *coders.Encoder, w Window) {
	iw, ok := w.(IntervalWindow)
	if !ok {
		panic(fmt.Sprintf("IntervalWindowCoder can't encode %T", w))
	}
	coders.Timestamp{}.Encode(enc, iw.End)
	enc.Varint(uint64(iw.End - iw.Start))
}

func (IntervalWindowCoder) Decode(dec *coders.Decoder) Window {
	end := coders.Timestamp{}.Decode(dec)
	span := dec.Varint()
	return IntervalWindow{Start: end - mtime.Time(span), End: end}
}

func (IntervalWindowCoder) Deterministic() bool { return true }
func (IntervalWindowCoder) URN() string         { return "beam:coder:interval_window:v1" }

// GlobalWindowCoder encodes the global window as nothing at all.
type GlobalWindowCoder struct{}

func (GlobalWindowCoder) Encode(_ *coders.Encoder, w Window) {
	if _, ok := w.(GlobalWindow); !ok {
		panic(fmt.Sprintf("GlobalWindowCoder can't encode %T", w))
	}
}

func (GlobalWindowCoder) Decode(*coders.Decoder) Window { return GlobalWindow{} }
func (GlobalWindowCoder) Deterministic() bool           { return true }
func (GlobalWindowCoder) URN() string                   { return "beam:coder:global_window:v1" }

// ErrNoWindows is returned for values that aren't in any window.
var ErrNoWindows = errors.New("value has no windows")

// Value is a value with its event time, windows, and pane.
//
// The zero Pane is an early first firing, not NoFiringPane. Values that
// were never grouped should carry NoFiringPane.
type Value[V any] struct {
	Value     V
	Timestamp mtime.Time
	Windows   []Window
	Pane      PaneInfo
}

// Validate checks the value belongs to at least one window.
func (v Value[V]) Validate() error {
	if len(v.Windows) == 0 {
		return errors.Wrapf(ErrNoWindows, "value at %v", v.Timestamp)
	}
	return nil
}

// InWindow reports whether the value is in window w.
func (v Value[V]) InWindow(w Window) bool {
	return Contains(v.Windows, w)
}

// ValueCoder encodes windowed values as the timestamp, the windows, the
// pane, and then the value.
type ValueCoder[V any] struct {
	Value  coders.Coder[V]
	Window coders.Coder[Window]
}

// NewValueCoder returns a windowed value coder.
func NewValueCoder[V any](vc coders.Coder[V], wc coders.Coder[Window]) ValueCoder[V] {
	return ValueCoder[V]{Value: vc, Window: wc}
}

func (c ValueCoder[V]) Encode(enc *coders.Encoder, v Value[V]) {
	coders.Timestamp{}.Encode(enc, v.Timestamp)
	coders.Iterable[Window]{Elem: c.Window}.Encode(enc, v.Windows)
	PaneCoder{}.Encode(enc, v.Pane)
	c.Value.Encode(enc, v.Value)
}

func (c ValueCoder[V]) Decode(dec *coders.Decoder) Value[V] {
	var v Value[V]
	v.Timestamp = coders.Timestamp{}.Decode(dec)
	v.Windows = coders.Iterable[Window]{Elem: c.Window}.Decode(dec)
	v.Pane = PaneCoder{}.Decode(dec)
	v.Value = c.Value.Decode(dec)
	return v
}

func (c ValueCoder[V]) Deterministic() bool {
	return coders.IsDeterministic(c.Value) && coders.IsDeterministic(c.Window)
}
