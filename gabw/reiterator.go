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

package gabw

import "iter"

// Reiterator reads a sequence forward, and can be copied to read the rest of
// the sequence again independently.
type Reiterator[E any] interface {
	// Next returns the next element, or false at the end of the sequence.
	Next() (E, bool)
	// Copy returns a reiterator at the same position. Advancing either one
	// doesn't move the other.
	Copy() Reiterator[E]
}

// Reiterable is a sequence that can be read more than once.
type Reiterable[E any] interface {
	Reiterator() Reiterator[E]
}

// Values are the contents of a pane.
type Values[E any] interface {
	Reiterable[E]
	All() iter.Seq[E]
}

// all ranges over a fresh reiterator of r.
func all[E any](r Reiterable[E]) iter.Seq[E] {
	return func(yield func(E) bool) {
		it := r.Reiterator()
		for {
			e, ok := it.Next()
			if !ok || !yield(e) {
				return
			}
		}
	}
}

// Slice is a Reiterable over a fixed collection.
type Slice[E any] []E

func (s Slice[E]) Reiterator() Reiterator[E] { return &SliceReiterator[E]{s: s} }
func (s Slice[E]) All() iter.Seq[E]          { return all[E](s) }

// SliceReiterator reads a slice.
type SliceReiterator[E any] struct {
	s []E
	i int
}

func (r *SliceReiterator[E]) Next() (E, bool) {
	if r.i >= len(r.s) {
		var zero E
		return zero, false
	}
	r.i++
	return r.s[r.i-1], true
}

func (r *SliceReiterator[E]) Copy() Reiterator[E] {
	c := *r
	return &c
}

// Peeking adds look ahead to a Reiterator.
type Peeking[E any] struct {
	it     Reiterator[E]
	next   E
	peeked bool
	ok     bool
}

// NewPeeking wraps it.
func NewPeeking[E any](it Reiterator[E]) *Peeking[E] {
	return &Peeking[E]{it: it}
}

func (p *Peeking[E]) fill() {
	if !p.peeked {
		p.next, p.ok = p.it.Next()
		p.peeked = true
	}
}

// HasNext reports whether there is another element.
func (p *Peeking[E]) HasNext() bool {
	p.fill()
	return p.ok
}

// Peek returns the next element without consuming it.
func (p *Peeking[E]) Peek() (E, bool) {
	p.fill()
	return p.next, p.ok
}

func (p *Peeking[E]) Next() (E, bool) {
	p.fill()
	p.peeked = false
	e, ok := p.next, p.ok
	var zero E
	p.next = zero
	return e, ok
}

// Copy returns a Peeking reiterator at the same position, including any
// element already peeked.
func (p *Peeking[E]) Copy() Reiterator[E] {
	return &Peeking[E]{it: p.it.Copy(), next: p.next, peeked: p.peeked, ok: p.ok}
}

var (
	_ Reiterator[int] = (*SliceReiterator[int])(nil)
	_ Reiterator[int] = (*Peeking[int])(nil)
	_ Values[int]     = Slice[int](nil)
)
