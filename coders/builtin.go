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

package coders

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"lostluck.dev/beam-windowing/mtime"
)

const (
	urnBytes     = "beam:coder:bytes:v1"
	urnString    = "beam:coder:string_utf8:v1"
	urnVarInt    = "beam:coder:varint:v1"
	urnDouble    = "beam:coder:double:v1"
	urnBool      = "beam:coder:bool:v1"
	urnIterable  = "beam:coder:iterable:v1"
	urnTimestamp = "beam:coder:timestamp:v1"
	urnInt32     = "beam:go:coder:bigendian_int32:v1"
	urnSet       = "beam:go:coder:set:v1"
)

// Bytes encodes byte slices. Nested, the slice is varint length prefixed.
// In the whole stream context the bytes are written as is.
type Bytes struct{}

var _ wholeStream[[]byte] = Bytes{}

func (Bytes) Encode(enc *Encoder, v []byte) { enc.Bytes(v) }
func (Bytes) Decode(dec *Decoder) []byte    { return dec.Bytes() }

func (Bytes) encodeWholeStream(enc *Encoder, v []byte) { enc.Raw(v) }
func (Bytes) decodeWholeStream(dec *Decoder) []byte    { return dec.Raw() }

// StructuralValue returns the bytes as a string, so equal contents compare
// equal.
func (Bytes) StructuralValue(v []byte) any { return string(v) }
func (Bytes) Deterministic() bool          { return true }
func (Bytes) URN() string                  { return urnBytes }

func (Bytes) EncodedSize(v []byte) int {
	return uvarintSize(uint64(len(v))) + len(v)
}

// String encodes UTF-8 strings the same way Bytes encodes byte slices.
type String struct{}

var _ wholeStream[string] = String{}

func (String) Encode(enc *Encoder, v string) { enc.StringUtf8(v) }
func (String) Decode(dec *Decoder) string    { return dec.StringUtf8() }

func (String) encodeWholeStream(enc *Encoder, v string) { enc.Raw([]byte(v)) }
func (String) decodeWholeStream(dec *Decoder) string    { return string(dec.Raw()) }

func (String) StructuralValue(v string) any { return v }
func (String) Deterministic() bool          { return true }
func (String) URN() string                  { return urnString }

func (String) EncodedSize(v string) int {
	return uvarintSize(uint64(len(v))) + len(v)
}

// VarInt encodes integers as base 128 varints of their 64 bit two's
// complement, so negative values always take 10 bytes.
type VarInt[I constraints.Integer] struct{}

func (VarInt[I]) Encode(enc *Encoder, v I) { enc.Varint(uint64(int64(v))) }
func (VarInt[I]) Decode(dec *Decoder) I    { return I(int64(dec.Varint())) }

func (VarInt[I]) StructuralValue(v I) any { return v }
func (VarInt[I]) Deterministic() bool     { return true }
func (VarInt[I]) URN() string             { return urnVarInt }
func (VarInt[I]) EncodedSize(v I) int     { return uvarintSize(uint64(int64(v))) }

// BigEndianInt32 encodes int32 values in four bytes.
type BigEndianInt32 struct{}

func (BigEndianInt32) Encode(enc *Encoder, v int32) { enc.Int32(v) }
func (BigEndianInt32) Decode(dec *Decoder) int32    { return dec.Int32() }

func (BigEndianInt32) StructuralValue(v int32) any { return v }
func (BigEndianInt32) Deterministic() bool         { return true }
func (BigEndianInt32) URN() string                 { return urnInt32 }
func (BigEndianInt32) EncodedSize(int32) int       { return 4 }

// Double encodes float64 values as their big endian IEEE 754 bits.
//
// Double is not deterministic: NaN payloads and signed zeros compare
// differently from how they encode.
type Double struct{}

func (Double) Encode(enc *Encoder, v float64) { enc.Double(v) }
func (Double) Decode(dec *Decoder) float64    { return dec.Double() }

// StructuralValue returns the bit pattern, so NaN is equal to itself.
func (Double) StructuralValue(v float64) any { return math.Float64bits(v) }
func (Double) Deterministic() bool           { return false }
func (Double) URN() string                   { return urnDouble }
func (Double) EncodedSize(float64) int       { return 8 }

// Bool encodes booleans as a single byte.
type Bool struct{}

func (Bool) Encode(enc *Encoder, v bool) { enc.Bool(v) }
func (Bool) Decode(dec *Decoder) bool    { return dec.Bool() }

func (Bool) StructuralValue(v bool) any { return v }
func (Bool) Deterministic() bool        { return true }
func (Bool) URN() string                { return urnBool }
func (Bool) EncodedSize(bool) int       { return 1 }

// Timestamp encodes event times as big endian int64 milliseconds with the
// sign bit flipped, so encodings sort the same way as the times do.
type Timestamp struct{}

func (Timestamp) Encode(enc *Encoder, v mtime.Time) {
	enc.Uint64(uint64(v) ^ (1 << 63))
}

func (Timestamp) Decode(dec *Decoder) mtime.Time {
	return mtime.Time(dec.Uint64() ^ (1 << 63))
}

func (Timestamp) StructuralValue(v mtime.Time) any { return v }
func (Timestamp) Deterministic() bool              { return true }
func (Timestamp) URN() string                      { return urnTimestamp }
func (Timestamp) EncodedSize(mtime.Time) int       { return 8 }

// Iterable encodes slices as a big endian int32 count followed by each
// element.
type Iterable[E any] struct {
	Elem Coder[E]
}

func (c Iterable[E]) Encode(enc *Encoder, v []E) {
	enc.Int32(int32(len(v)))
	for _, e := range v {
		c.Elem.Encode(enc, e)
	}
}

func (c Iterable[E]) Decode(dec *Decoder) []E {
	n := dec.Int32()
	if n < 0 {
		fail(errors.Errorf("unsupported iterable length %d", n))
	}
	// Don't trust the count with the allocation, each element is at least a byte.
	out := make([]E, 0, min(int(n), len(dec.Remaining())))
	for range n {
		out = append(out, c.Elem.Decode(dec))
	}
	return out
}

func (c Iterable[E]) Deterministic() bool { return IsDeterministic(c.Elem) }
func (c Iterable[E]) URN() string         { return Composite(urnIterable, c.Elem) }

// Set encodes sets as an iterable whose elements are sorted by their
// encoding, so equal sets have equal encodings whenever the element coder
// is deterministic.
type Set[E comparable] struct {
	Elem Coder[E]
}

func (c Set[E]) Encode(enc *Encoder, v map[E]struct{}) {
	encoded := make([][]byte, 0, len(v))
	for e := range v {
		encoded = append(encoded, Encode(c.Elem, e))
	}
	slices.SortFunc(encoded, bytes.Compare)
	enc.Int32(int32(len(encoded)))
	for _, b := range encoded {
		enc.Raw(b)
	}
}

func (c Set[E]) Decode(dec *Decoder) map[E]struct{} {
	n := dec.Int32()
	if n < 0 {
		fail(errors.Errorf("unsupported set length %d", n))
	}
	out := make(map[E]struct{}, min(int(n), len(dec.Remaining())))
	for range n {
		out[c.Elem.Decode(dec)] = struct{}{}
	}
	return out
}

func (c Set[E]) Deterministic() bool { return IsDeterministic(c.Elem) }
func (c Set[E]) URN() string         { return Composite(urnSet, c.Elem) }

// Composite returns the identifier of a coder built from component coders.
func Composite(urn string, components ...any) string {
	s := urn + "("
	for i, c := range components {
		if i > 0 {
			s += ","
		}
		s += ID(c)
	}
	return s + ")"
}

func uvarintSize(u uint64) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], u)
}

// MakeCoder returns the default coder for the builtin type T.
// It panics for types that don't have one.
func MakeCoder[T any]() Coder[T] {
	var zero T
	var c any
	switch any(zero).(type) {
	case []byte:
		c = Bytes{}
	case string:
		c = String{}
	case bool:
		c = Bool{}
	case float64:
		c = Double{}
	case float32:
		c = float32Coder{}
	case int:
		c = VarInt[int]{}
	case int8:
		c = VarInt[int8]{}
	case int16:
		c = VarInt[int16]{}
	case int32:
		c = VarInt[int32]{}
	case int64:
		c = VarInt[int64]{}
	case uint:
		c = VarInt[uint]{}
	case uint8:
		c = VarInt[uint8]{}
	case uint16:
		c = VarInt[uint16]{}
	case uint32:
		c = VarInt[uint32]{}
	case uint64:
		c = VarInt[uint64]{}
	case mtime.Time:
		c = Timestamp{}
	default:
		panic(fmt.Sprintf("no default coder for type %T", zero))
	}
	return c.(Coder[T])
}

// float32Coder widens to a double on the wire.
type float32Coder struct{}

func (float32Coder) Encode(enc *Encoder, v float32) { enc.Double(float64(v)) }
func (float32Coder) Decode(dec *Decoder) float32    { return float32(dec.Double()) }
func (float32Coder) URN() string                    { return urnDouble }
