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

// Package coders contains the encoding capability used for keys, values,
// windows, and state.
//
// A Coder is always written in the nested context: encodings are self
// delimiting so they can be concatenated. The outermost value of a byte
// stream may instead be written in the whole stream context with
// [EncodeWholeStream], which omits any length prefix for coders that support
// it.
//
// Beyond encoding, coders expose the capabilities grouping and state rely on:
// [StructuralValue] for key equality, [IsDeterministic] for values persisted to
// external storage, [EstimatedSize], and [ID] for the identity of an encoding.
package coders

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// Coder encodes and decodes values of type E.
type Coder[E any] interface {
	Encode(enc *Encoder, v E)
	Decode(dec *Decoder) E
}

// structural is implemented by coders whose values have a cheaper comparable
// form than their encoding.
type structural[E any] interface {
	StructuralValue(v E) any
}

// deterministic is implemented by coders that know whether equal values
// always produce equal encodings.
type deterministic interface {
	Deterministic() bool
}

// sizer is implemented by coders that can estimate an encoded size without
// encoding.
type sizer[E any] interface {
	EncodedSize(v E) int
}

// urner is implemented by coders with a well known encoding identifier.
type urner interface {
	URN() string
}

// wholeStream is implemented by coders that encode differently when they own
// the rest of the stream.
type wholeStream[E any] interface {
	encodeWholeStream(enc *Encoder, v E)
	decodeWholeStream(dec *Decoder) E
}

// Encode encodes v in the nested context and returns the bytes.
func Encode[E any](c Coder[E], v E) []byte {
	enc := NewEncoder()
	c.Encode(enc, v)
	return enc.Data()
}

// Decode decodes a single nested value from data. Decoding failures
// are returned as an *Error.
func Decode[E any](c Coder[E], data []byte) (v E, err error) {
	defer recoverError(c, &err)
	dec := NewDecoder(data)
	v = c.Decode(dec)
	return v, nil
}

// EncodeWholeStream encodes v as the last value of a stream.
func EncodeWholeStream[E any](c Coder[E], v E) []byte {
	enc := NewEncoder()
	if ws, ok := c.(wholeStream[E]); ok {
		ws.encodeWholeStream(enc, v)
	} else {
		c.Encode(enc, v)
	}
	return enc.Data()
}

// DecodeWholeStream decodes data written by EncodeWholeStream.
func DecodeWholeStream[E any](c Coder[E], data []byte) (v E, err error) {
	defer recoverError(c, &err)
	dec := NewDecoder(data)
	if ws, ok := c.(wholeStream[E]); ok {
		return ws.decodeWholeStream(dec), nil
	}
	return c.Decode(dec), nil
}

func recoverError(c any, err *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(*Error); ok {
		if e.Coder == "" {
			e.Coder = ID(c)
		}
		*err = e
		return
	}
	panic(r)
}

// StructuralValue returns a comparable value such that two values have equal
// structural values iff they have equal encodings. Grouping uses it for key
// equality.
func StructuralValue[E any](c Coder[E], v E) any {
	if s, ok := c.(structural[E]); ok {
		return s.StructuralValue(v)
	}
	return string(Encode(c, v))
}

// IsDeterministic reports whether c is known to produce equal encodings for
// equal values. Coders that don't say are assumed not to be.
func IsDeterministic(c any) bool {
	if d, ok := c.(deterministic); ok {
		return d.Deterministic()
	}
	return false
}

// EstimatedSize returns the size of the nested encoding of v, computing it
// from the encoding if the coder can't estimate it directly.
func EstimatedSize[E any](c Coder[E], v E) int {
	if s, ok := c.(sizer[E]); ok {
		return s.EncodedSize(v)
	}
	return len(Encode(c, v))
}

// ID returns a stable identifier for the encoding a coder produces.
// Coders with the same ID are interchangeable.
func ID(c any) string {
	if c == nil {
		return ""
	}
	if u, ok := c.(urner); ok {
		return u.URN()
	}
	return "go:" + reflect.TypeOf(c).String()
}

// Error reports a failure to decode a value.
type Error struct {
	Coder string // Identifier of the failing coder.
	Err   error
}

func (e *Error) Error() string {
	if e.Coder == "" {
		return fmt.Sprintf("coder error: %v", e.Err)
	}
	return fmt.Sprintf("coder %v: %v", e.Coder, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrUnderflow is returned when the data ends before the value does.
	ErrUnderflow = errors.New("unexpected end of data")
	// ErrOverflow is returned when a varint doesn't fit in 64 bits.
	ErrOverflow = errors.New("varint overflows 64 bits")
)

// fail aborts decoding. It's recovered by Decode.
func fail(err error) {
	panic(&Error{Err: err})
}
