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
	"context"

	"github.com/pkg/errors"
	"lostluck.dev/beam-windowing/coders"
	"lostluck.dev/beam-windowing/mtime"
)

// ValueTag addresses a single value. When windows merge, the most recently
// written value wins.
type ValueTag[T any] struct {
	id    string
	coder coders.Coder[T]
}

// Value returns a tag for a single value.
func Value[T any](id string, c coders.Coder[T]) ValueTag[T] {
	return ValueTag[T]{id: id, coder: c}
}

var _ Tag = ValueTag[int]{}

func (t ValueTag[T]) Spec() Spec {
	return Spec{ID: t.id, Kind: KindValue, Coder: coders.ID(t.coder)}
}

func (t ValueTag[T]) validate() error   { return checkTag(t.id, t.coder, KindValue) }
func (t ValueTag[T]) persistable() bool { return persistableCoder(t.coder) }

// Values are stored as a write sequence number followed by the value, so
// merges can find the latest write.
type stamped[T any] struct {
	seq uint64
	v   T
}

type stampedCoder[T any] struct {
	c coders.Coder[T]
}

func (sc stampedCoder[T]) Encode(enc *coders.Encoder, s stamped[T]) {
	enc.Varint(s.seq)
	sc.c.Encode(enc, s.v)
}

func (sc stampedCoder[T]) Decode(dec *coders.Decoder) stamped[T] {
	seq := dec.Varint()
	return stamped[T]{seq: seq, v: sc.c.Decode(dec)}
}

func (t ValueTag[T]) read(ctx context.Context, in *Internals, ns Namespace) (stamped[T], bool, error) {
	vals, err := in.get(ctx, ns, t)
	if err != nil || len(vals) == 0 {
		return stamped[T]{}, false, err
	}
	s, err := coders.Decode(coders.Coder[stamped[T]](stampedCoder[T]{t.coder}), vals[0])
	return s, err == nil, err
}

func (t ValueTag[T]) write(ctx context.Context, in *Internals, ns Namespace, s stamped[T]) error {
	return in.put(ctx, ns, t, [][]byte{coders.Encode(coders.Coder[stamped[T]](stampedCoder[T]{t.coder}), s)})
}

// Read returns the value, and whether one was written.
func (t ValueTag[T]) Read(ctx context.Context, a Accessor) (T, bool, error) {
	s, ok, err := t.read(ctx, a.in, a.ns)
	return s.v, ok, err
}

// Write replaces the value.
func (t ValueTag[T]) Write(ctx context.Context, a Accessor, v T) error {
	seq, err := a.in.nextSeq(ctx)
	if err != nil {
		return err
	}
	return t.write(ctx, a.in, a.ns, stamped[T]{seq: seq, v: v})
}

// Clear removes the value.
func (t ValueTag[T]) Clear(ctx context.Context, a Accessor) error {
	return a.in.put(ctx, a.ns, t, nil)
}

func (t ValueTag[T]) merge(ctx context.Context, in *Internals, sources []Namespace, result Namespace) error {
	latest, found, err := t.read(ctx, in, result)
	if err != nil {
		return err
	}
	for _, ns := range otherSources(sources, result) {
		s, ok, err := t.read(ctx, in, ns)
		if err != nil {
			return err
		}
		if ok && (!found || s.seq > latest.seq) {
			latest, found = s, true
		}
		if err := in.put(ctx, ns, t, nil); err != nil {
			return err
		}
	}
	if !found {
		return nil
	}
	return t.write(ctx, in, result, latest)
}

// seqTag holds the per key write sequence used to order value writes.
var seqTag = Value[uint64]("beam:internal:write_seq", coders.VarInt[uint64]{})

func (in *Internals) nextSeq(ctx context.Context) (uint64, error) {
	vals, err := in.get(ctx, GlobalNamespace, seqTag)
	if err != nil {
		return 0, err
	}
	var seq uint64
	if len(vals) > 0 {
		if seq, err = coders.Decode(coders.Coder[uint64](coders.VarInt[uint64]{}), vals[0]); err != nil {
			return 0, err
		}
	}
	seq++
	return seq, in.put(ctx, GlobalNamespace, seqTag, [][]byte{coders.Encode(coders.Coder[uint64](coders.VarInt[uint64]{}), seq)})
}

// Release drops the bookkeeping kept for the key. Call it once the key holds
// no other state.
func (in *Internals) Release(ctx context.Context) error {
	return in.put(ctx, GlobalNamespace, seqTag, nil)
}

// BagTag addresses an unordered collection of values. When windows merge,
// the bags are concatenated.
type BagTag[T any] struct {
	id    string
	coder coders.Coder[T]
}

// Bag returns a tag for a bag of values.
func Bag[T any](id string, c coders.Coder[T]) BagTag[T] {
	return BagTag[T]{id: id, coder: c}
}

var _ Tag = BagTag[int]{}

func (t BagTag[T]) Spec() Spec {
	return Spec{ID: t.id, Kind: KindBag, Coder: coders.ID(t.coder)}
}

func (t BagTag[T]) validate() error   { return checkTag(t.id, t.coder, KindBag) }
func (t BagTag[T]) persistable() bool { return persistableCoder(t.coder) }

// Append adds a value to the bag.
func (t BagTag[T]) Append(ctx context.Context, a Accessor, v T) error {
	return a.in.append(ctx, a.ns, t, coders.Encode(t.coder, v))
}

// Read returns the contents of the bag.
func (t BagTag[T]) Read(ctx context.Context, a Accessor) ([]T, error) {
	vals, err := a.in.get(ctx, a.ns, t)
	if err != nil {
		return nil, err
	}
	return decodeAll(t.coder, vals)
}

// IsEmpty reports whether nothing is in the bag.
func (t BagTag[T]) IsEmpty(ctx context.Context, a Accessor) (bool, error) {
	vals, err := a.in.get(ctx, a.ns, t)
	return len(vals) == 0, err
}

// Clear empties the bag.
func (t BagTag[T]) Clear(ctx context.Context, a Accessor) error {
	return a.in.put(ctx, a.ns, t, nil)
}

func (t BagTag[T]) merge(ctx context.Context, in *Internals, sources []Namespace, result Namespace) error {
	others := otherSources(sources, result)
	if len(others) == 0 {
		return nil
	}
	merged, err := in.get(ctx, result, t)
	if err != nil {
		return err
	}
	for _, ns := range others {
		vals, err := in.get(ctx, ns, t)
		if err != nil {
			return err
		}
		merged = append(merged, vals...)
		if err := in.put(ctx, ns, t, nil); err != nil {
			return err
		}
	}
	return in.put(ctx, result, t, merged)
}

// WatermarkHoldTag addresses a hold on the output watermark. Adding to a
// hold keeps the earliest time, and merging holds keeps the earliest of them.
type WatermarkHoldTag struct {
	id string
}

// WatermarkHold returns a tag for a watermark hold.
func WatermarkHold(id string) WatermarkHoldTag {
	return WatermarkHoldTag{id: id}
}

var _ Tag = WatermarkHoldTag{}

// Spec returns the hold's identity, which is only its id.
func (t WatermarkHoldTag) Spec() Spec {
	return Spec{ID: t.id, Kind: KindWatermarkHold}
}

func (t WatermarkHoldTag) validate() error {
	if t.id == "" {
		return errors.New("watermark_hold state tag has an empty id")
	}
	return nil
}

func (t WatermarkHoldTag) persistable() bool { return true }

func (t WatermarkHoldTag) read(ctx context.Context, in *Internals, ns Namespace) (mtime.Time, bool, error) {
	vals, err := in.get(ctx, ns, t)
	if err != nil || len(vals) == 0 {
		return 0, false, err
	}
	hold, err := coders.Decode(coders.Coder[mtime.Time](coders.Timestamp{}), vals[0])
	return hold, err == nil, err
}

func (t WatermarkHoldTag) write(ctx context.Context, in *Internals, ns Namespace, hold mtime.Time) error {
	return in.put(ctx, ns, t, [][]byte{coders.Encode(coders.Coder[mtime.Time](coders.Timestamp{}), hold)})
}

// Add holds the watermark at ts, unless it's already held earlier.
func (t WatermarkHoldTag) Add(ctx context.Context, a Accessor, ts mtime.Time) error {
	hold, ok, err := t.read(ctx, a.in, a.ns)
	if err != nil {
		return err
	}
	if ok && hold <= ts {
		return nil
	}
	return t.write(ctx, a.in, a.ns, ts)
}

// Read returns the hold, and whether there is one.
func (t WatermarkHoldTag) Read(ctx context.Context, a Accessor) (mtime.Time, bool, error) {
	return t.read(ctx, a.in, a.ns)
}

// Clear releases the hold.
func (t WatermarkHoldTag) Clear(ctx context.Context, a Accessor) error {
	return a.in.put(ctx, a.ns, t, nil)
}

func (t WatermarkHoldTag) merge(ctx context.Context, in *Internals, sources []Namespace, result Namespace) error {
	earliest, found, err := t.read(ctx, in, result)
	if err != nil {
		return err
	}
	for _, ns := range otherSources(sources, result) {
		hold, ok, err := t.read(ctx, in, ns)
		if err != nil {
			return err
		}
		if ok && (!found || hold < earliest) {
			earliest, found = hold, true
		}
		if err := in.put(ctx, ns, t, nil); err != nil {
			return err
		}
	}
	if !found {
		return nil
	}
	return t.write(ctx, in, result, earliest)
}

// CombiningTag addresses an accumulator that inputs are added to with a
// CombineFn. When windows merge, the accumulators are merged.
//
// The combine function is not part of the tag's identity: tags that only
// differ in their function address the same accumulator.
type CombiningTag[A, I, O any] struct {
	id    string
	coder coders.Coder[A]
	fn    CombineFn[A, I, O]
}

// Combining returns a tag for an accumulator, encoded with the accumulator
// coder.
func Combining[A, I, O any](id string, accumCoder coders.Coder[A], fn CombineFn[A, I, O]) CombiningTag[A, I, O] {
	return CombiningTag[A, I, O]{id: id, coder: accumCoder, fn: fn}
}

var _ Tag = CombiningTag[int, int, int]{}

func (t CombiningTag[A, I, O]) Spec() Spec {
	return Spec{ID: t.id, Kind: KindCombining, Coder: coders.ID(t.coder)}
}

func (t CombiningTag[A, I, O]) validate() error {
	if err := checkTag(t.id, t.coder, KindCombining); err != nil {
		return err
	}
	if t.fn == nil {
		return errors.Errorf("combining state tag %q has no combine fn", t.id)
	}
	return nil
}

func (t CombiningTag[A, I, O]) persistable() bool { return persistableCoder(t.coder) }

// ReadAccumulator returns the accumulator, which is the zero value if
// nothing was added.
func (t CombiningTag[A, I, O]) ReadAccumulator(ctx context.Context, a Accessor) (A, error) {
	return t.readAccum(ctx, a.in, a.ns)
}

func (t CombiningTag[A, I, O]) readAccum(ctx context.Context, in *Internals, ns Namespace) (A, error) {
	var acc A
	vals, err := in.get(ctx, ns, t)
	if err != nil || len(vals) == 0 {
		return acc, err
	}
	return coders.Decode(t.coder, vals[0])
}

func (t CombiningTag[A, I, O]) writeAccum(ctx context.Context, in *Internals, ns Namespace, acc A) error {
	return in.put(ctx, ns, t, [][]byte{coders.Encode(t.coder, acc)})
}

// Add adds an input to the accumulator.
func (t CombiningTag[A, I, O]) Add(ctx context.Context, a Accessor, v I) error {
	acc, err := t.readAccum(ctx, a.in, a.ns)
	if err != nil {
		return err
	}
	return t.writeAccum(ctx, a.in, a.ns, t.fn.AddInput(acc, v))
}

// AddAccumulator merges another accumulator into the stored one.
func (t CombiningTag[A, I, O]) AddAccumulator(ctx context.Context, a Accessor, other A) error {
	acc, err := t.readAccum(ctx, a.in, a.ns)
	if err != nil {
		return err
	}
	return t.writeAccum(ctx, a.in, a.ns, t.fn.MergeAccumulators(acc, other))
}

// Read returns the output of the accumulator.
func (t CombiningTag[A, I, O]) Read(ctx context.Context, a Accessor) (O, error) {
	acc, err := t.readAccum(ctx, a.in, a.ns)
	if err != nil {
		var o O
		return o, err
	}
	return t.fn.ExtractOutput(acc), nil
}

// Clear resets the accumulator.
func (t CombiningTag[A, I, O]) Clear(ctx context.Context, a Accessor) error {
	return a.in.put(ctx, a.ns, t, nil)
}

func (t CombiningTag[A, I, O]) merge(ctx context.Context, in *Internals, sources []Namespace, result Namespace) error {
	others := otherSources(sources, result)
	if len(others) == 0 {
		return nil
	}
	acc, err := t.readAccum(ctx, in, result)
	if err != nil {
		return err
	}
	for _, ns := range others {
		other, err := t.readAccum(ctx, in, ns)
		if err != nil {
			return err
		}
		acc = t.fn.MergeAccumulators(acc, other)
		if err := in.put(ctx, ns, t, nil); err != nil {
			return err
		}
	}
	return t.writeAccum(ctx, in, result, acc)
}
