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
	"bytes"
	_ "embed"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/encoding/charmap"
	"gopkg.in/yaml.v2"
	"lostluck.dev/beam-windowing/coders"
	"lostluck.dev/beam-windowing/mtime"
)

//go:embed testdata/window_coders.yaml
var windowCodersYAML []byte

func TestWindowCoders(t *testing.T) {
	dec := yaml.NewDecoder(bytes.NewReader(windowCodersYAML))
	for {
		var spec struct {
			Coder struct {
				URN string `yaml:"urn"`
			} `yaml:"coder"`
			Examples yaml.MapSlice `yaml:"examples"`
		}
		if err := dec.Decode(&spec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("decoding fixture: %v", err)
		}
		var c coders.Coder[Window]
		switch spec.Coder.URN {
		case "beam:coder:interval_window:v1":
			c = IntervalWindowCoder{}
		case "beam:coder:global_window:v1":
			c = GlobalWindowCoder{}
		default:
			t.Fatalf("unknown window coder %q", spec.Coder.URN)
		}
		t.Run(spec.Coder.URN, func(t *testing.T) {
			if got := coders.ID(c); got != spec.Coder.URN {
				t.Errorf("coders.ID() = %q, want %q", got, spec.Coder.URN)
			}
			for _, ex := range spec.Examples {
				data, err := charmap.ISO8859_1.NewEncoder().String(ex.Key.(string))
				if err != nil {
					t.Fatalf("recoding example %q: %v", ex.Key, err)
				}
				want := exampleWindow(ex.Value.(yaml.MapSlice))
				got, err := coders.Decode(c, []byte(data))
				if err != nil {
					t.Fatalf("decoding %x: %v", data, err)
				}
				if !got.Equals(want) {
					t.Errorf("decoding %x got %v want %v", data, got, want)
				}
				if enc := coders.Encode(c, want); !bytes.Equal(enc, []byte(data)) {
					t.Errorf("encoding %v got %x want %x", want, enc, data)
				}
			}
		})
	}
}

func exampleWindow(fields yaml.MapSlice) Window {
	if len(fields) == 0 {
		return GlobalWindow{}
	}
	var end, span int64
	for _, f := range fields {
		switch f.Key {
		case "end":
			end = int64(f.Value.(int))
		case "span":
			span = int64(f.Value.(int))
		}
	}
	return IntervalWindow{Start: mtime.Time(end - span), End: mtime.Time(end)}
}

func TestPaneCoder(t *testing.T) {
	tests := []struct {
		name string
		pane PaneInfo
		want []byte
	}{
		{"noFiring", NoFiringPane, []byte{0x0f}},
		{"onTimeOnly", OnTimeAndOnlyFiring, []byte{0x07}},
		{"firstEarly", PaneInfo{Timing: Early, IsFirst: true, Index: 0, NonSpeculativeIndex: -1}, []byte{0x11, 0x00}},
		{"secondEarly", PaneInfo{Timing: Early, Index: 1, NonSpeculativeIndex: -1}, []byte{0x10, 0x01}},
		{"onTimeAfterEarly", PaneInfo{Timing: OnTime, Index: 2, NonSpeculativeIndex: 0}, []byte{0x24, 0x02, 0x00}},
		{"lateFinal", PaneInfo{Timing: Late, IsLast: true, Index: 3, NonSpeculativeIndex: 1}, []byte{0x2a, 0x03, 0x01}},
		{"lateOnly", PaneInfo{Timing: Late, Index: 1, NonSpeculativeIndex: 1}, []byte{0x18, 0x01}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := coders.Encode(PaneCoder{}, test.pane)
			if !bytes.Equal(got, test.want) {
				t.Errorf("Encode(%v) = %x, want %x", test.pane, got, test.want)
			}
			back, err := coders.Decode(PaneCoder{}, got)
			if err != nil {
				t.Fatalf("Decode(%x): %v", got, err)
			}
			if d := cmp.Diff(test.pane, back); d != "" {
				t.Errorf("round trip diff (-want, +got):\n%v", d)
			}
		})
	}
}

func TestValueCoder(t *testing.T) {
	c := NewValueCoder[string](coders.String{}, IntervalWindowCoder{})
	want := Value[string]{
		Value:     "abc",
		Timestamp: 1454293425000,
		Windows:   []Window{iw(1454289825000, 1454293425001), iw(0, 10)},
		Pane:      PaneInfo{Timing: Late, Index: 3, NonSpeculativeIndex: 1},
	}
	got, err := coders.Decode[Value[string]](c, coders.Encode[Value[string]](c, want))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("round trip diff (-want, +got):\n%v", d)
	}
	if !coders.IsDeterministic(c) {
		t.Error("windowed string coder should be deterministic")
	}
}

func TestValue_Validate(t *testing.T) {
	if err := (Value[int]{Value: 1}).Validate(); !errors.Is(err, ErrNoWindows) {
		t.Errorf("Validate() of windowless value = %v, want %v", err, ErrNoWindows)
	}
	if err := (Value[int]{Value: 1, Windows: []Window{GlobalWindow{}}}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
