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
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Encoder accumulates encoded bytes.
type Encoder struct {
	data []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Data returns the bytes encoded so far.
func (e *Encoder) Data() []byte {
	return e.data
}

// Reset discards encoded data, keeping the buffer.
func (e *Encoder) Reset() {
	e.data = e.data[:0]
}

// Byte writes a single byte.
func (e *Encoder) Byte(b byte) {
	e.data = append(e.data, b)
}

// Raw writes the bytes without a length prefix.
func (e *Encoder) Raw(b []byte) {
	e.data = append(e.data, b...)
}

// Bytes writes a varint length prefix followed by the bytes.
func (e *Encoder) Bytes(b []byte) {
	e.Varint(uint64(len(b)))
	e.data = append(e.data, b...)
}

// Varint writes an unsigned base 128 varint.
func (e *Encoder) Varint(u uint64) {
	e.data = binary.AppendUvarint(e.data, u)
}

// Int64 writes a big endian int64.
func (e *Encoder) Int64(v int64) {
	e.data = binary.BigEndian.AppendUint64(e.data, uint64(v))
}

// Uint64 writes a big endian uint64.
func (e *Encoder) Uint64(v uint64) {
	e.data = binary.BigEndian.AppendUint64(e.data, v)
}

// Int32 writes a big endian int32.
func (e *Encoder) Int32(v int32) {
	e.data = binary.BigEndian.AppendUint32(e.data, uint32(v))
}

// Double writes the IEEE 754 bits of f, big endian.
func (e *Encoder) Double(f float64) {
	e.Uint64(math.Float64bits(f))
}

// Bool writes a single 0 or 1 byte.
func (e *Encoder) Bool(b bool) {
	if b {
		e.Byte(1)
		return
	}
	e.Byte(0)
}

// StringUtf8 writes a length prefixed string.
func (e *Encoder) StringUtf8(s string) {
	e.Varint(uint64(len(s)))
	e.data = append(e.data, s...)
}

// Decoder reads encoded values from a byte slice.
//
// Decoding failures panic with an *Error, which [Decode] recovers.
type Decoder struct {
	data []byte
}

// NewDecoder returns a decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Empty reports whether all data has been consumed.
func (d *Decoder) Empty() bool {
	return len(d.data) == 0
}

// Remaining returns the unconsumed bytes.
func (d *Decoder) Remaining() []byte {
	return d.data
}

func (d *Decoder) read(n int) []byte {
	if n < 0 || n > len(d.data) {
		fail(errors.Wrapf(ErrUnderflow, "reading %d bytes, %d remain", n, len(d.data)))
	}
	b := d.data[:n:n]
	d.data = d.data[n:]
	return b
}

// Byte reads a single byte.
func (d *Decoder) Byte() byte {
	return d.read(1)[0]
}

// Raw reads the rest of the data.
func (d *Decoder) Raw() []byte {
	return d.read(len(d.data))
}

// Bytes reads a varint length prefixed byte slice.
func (d *Decoder) Bytes() []byte {
	n := d.Varint()
	if n > uint64(len(d.data)) {
		fail(errors.Wrapf(ErrUnderflow, "length prefix %d exceeds %d remaining bytes", n, len(d.data)))
	}
	return d.read(int(n))
}

// Varint reads an unsigned base 128 varint.
func (d *Decoder) Varint() uint64 {
	u, n := binary.Uvarint(d.data)
	switch {
	case n == 0:
		fail(errors.Wrap(ErrUnderflow, "reading varint"))
	case n < 0:
		fail(ErrOverflow)
	}
	d.data = d.data[n:]
	return u
}

// Int64 reads a big endian int64.
func (d *Decoder) Int64() int64 {
	return int64(binary.BigEndian.Uint64(d.read(8)))
}

// Uint64 reads a big endian uint64.
func (d *Decoder) Uint64() uint64 {
	return binary.BigEndian.Uint64(d.read(8))
}

// Int32 reads a big endian int32.
func (d *Decoder) Int32() int32 {
	return int32(binary.BigEndian.Uint32(d.read(4)))
}

// Double reads a big endian IEEE 754 float64.
func (d *Decoder) Double() float64 {
	return math.Float64frombits(d.Uint64())
}

// Bool reads a single byte boolean.
func (d *Decoder) Bool() bool {
	switch b := d.Byte(); b {
	case 0:
		return false
	case 1:
		return true
	default:
		fail(errors.Errorf("invalid bool byte %#x", b))
	}
	return false
}

// StringUtf8 reads a length prefixed string.
func (d *Decoder) StringUtf8() string {
	return string(d.Bytes())
}
