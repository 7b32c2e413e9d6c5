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

package state

import (
	"strings"
	"testing"

	"lostluck.dev/beam-windowing/coders"
)

// maxFn keeps the largest input. The zero accumulator makes it only
// suitable for non negative inputs.
type maxFn struct{}

func (maxFn) MergeAccumulators(a, b int) int { return max(a, b) }

func TestTagEquality(t *testing.T) {
	varInt := coders.VarInt[int]{}
	bigEndian := coders.BigEndianInt32{}
	sum := SimpleMerge[int](SumFn[int]{})
	maxC := SimpleMerge[int](maxFn{})

	tests := []struct {
		name string
		a, b Tag
		want bool
	}{
		{"valueSame", Value[int]("foo", varInt), Value[int]("foo", varInt), true},
		{"valueOtherID", Value[int]("foo", varInt), Value[int]("bar", varInt), false},
		{"valueOtherCoder", Value[int]("foo", varInt), Value[int32]("foo", bigEndian), false},

		{"bagSame", Bag[int]("foo", varInt), Bag[int]("foo", varInt), true},
		{"bagOtherID", Bag[int]("foo", varInt), Bag[int]("bar", varInt), false},
		{"bagOtherCoder", Bag[int]("foo", varInt), Bag[int32]("foo", bigEndian), false},
		{"bagIsNotValue", Bag[int]("foo", varInt), Value[int]("foo", varInt), false},

		{"holdSame", WatermarkHold("foo"), WatermarkHold("foo"), true},
		{"holdOtherID", WatermarkHold("foo"), WatermarkHold("bar"), false},

		{"combiningSame", Combining("foo", coders.Coder[int](varInt), maxC), Combining("foo", coders.Coder[int](varInt), maxC), true},
		{"combiningOtherFn", Combining("foo", coders.Coder[int](varInt), maxC), Combining("foo", coders.Coder[int](varInt), sum), true},
		{"combiningOtherID", Combining("foo", coders.Coder[int](varInt), maxC), Combining("bar", coders.Coder[int](varInt), maxC), false},
		{"combiningOtherCoder", Combining("foo", coders.Coder[int](varInt), maxC), Combining("foo", coders.Coder[int](nonDeterministicInt{}), maxC), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Equal(test.a, test.b); got != test.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", test.a.Spec(), test.b.Spec(), got, test.want)
			}
			if got := Equal(test.b, test.a); got != test.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", test.b.Spec(), test.a.Spec(), got, test.want)
			}
		})
	}
}

// nonDeterministicInt encodes ints like VarInt, but claims no guarantees.
type nonDeterministicInt struct{}

func (nonDeterministicInt) Encode(enc *coders.Encoder, v int) { enc.Varint(uint64(v)) }
func (nonDeterministicInt) Decode(dec *coders.Decoder) int    { return int(dec.Varint()) }

func TestMarshalSpec(t *testing.T) {
	got, err := MarshalSpec(Combining("total", coders.Coder[int](coders.VarInt[int]{}), SimpleMerge[int](SumFn[int]{})))
	if err != nil {
		t.Fatalf("MarshalSpec: %v", err)
	}
	want := `{"id":"total","kind":"combining","coder":"beam:coder:varint:v1"}`
	if string(got) != want {
		t.Errorf("MarshalSpec = %s, want %s", got, want)
	}

	hold, err := MarshalSpec(WatermarkHold("hold"))
	if err != nil {
		t.Fatalf("MarshalSpec: %v", err)
	}
	if want := `{"id":"hold","kind":"watermark_hold"}`; string(hold) != want {
		t.Errorf("MarshalSpec = %s, want %s", hold, want)
	}
}

func TestValidate(t *testing.T) {
	good := []Tag{
		Bag[string]("buffer", coders.String{}),
		WatermarkHold("hold"),
		Combining[int64, string, int64]("count", coders.VarInt[int64]{}, CountFn[string]{}),
	}
	if err := Validate(good...); err != nil {
		t.Errorf("Validate(good) = %v, want nil", err)
	}
	if err := ValidatePersistable(good...); err != nil {
		t.Errorf("ValidatePersistable(good) = %v, want nil", err)
	}

	tests := []struct {
		name    string
		tags    []Tag
		persist bool
		want    string
	}{
		{"emptyID", []Tag{Bag[string]("", coders.String{})}, false, "empty id"},
		{"noCoder", []Tag{Value[string]("v", nil)}, false, "has no coder"},
		{"noFn", []Tag{Combining[int, int, int]("c", coders.VarInt[int]{}, nil)}, false, "no combine fn"},
		{"conflict", []Tag{Bag[string]("x", coders.String{}), Value[string]("x", coders.String{})}, false, "conflicting specs"},
		{"nilTag", []Tag{nil}, false, "nil state tag"},
		{"nonDeterministic", []Tag{Bag[float64]("d", coders.Double{})}, true, "non deterministic"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var err error
			if test.persist {
				err = ValidatePersistable(test.tags...)
			} else {
				err = Validate(test.tags...)
			}
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("got error %v, want one containing %q", err, test.want)
			}
		})
	}
}
