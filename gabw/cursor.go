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

import (
	"iter"

	"github.com/pkg/errors"
)

// ErrNotReiterable is returned for input that can only be read once.
var ErrNotReiterable = errors.New("input must be a slice or a Reiterable")

// Cursor is an immutable position in a sequence.
//
// Elements are pulled from the source once, on first access, into a singly
// linked buffer shared by all cursors over the source. Copying a Cursor
// copies the position; Advance returns a new one. Buffered elements behind
// every live cursor are garbage collected, so the buffer only spans from the
// oldest cursor still held to the furthest one read.
//
// Cursors over the same source may be used from a single goroutine only.
type Cursor[E any] struct {
	n *node[E]
}

// node is one position of the buffer. Nodes are filled in order: a node's
// successor exists only once it has been filled.
type node[E any] struct {
	src    Reiterator[E]
	filled bool
	ok     bool
	v      E
	next   *node[E]
}

func (n *node[E]) fill() {
	if n.filled {
		return
	}
	n.v, n.ok = n.src.Next()
	n.filled = true
	if n.ok {
		n.next = &node[E]{src: n.src}
	}
	// The end of the sequence holds nothing, and the source isn't needed
	// past it.
	n.src = nil
}

// NewCursor returns a cursor at the start of input, which must be a []E or
// a Reiterable[E].
func NewCursor[E any](input any) (Cursor[E], error) {
	switch in := input.(type) {
	case []E:
		return cursorOver(Slice[E](in).Reiterator()), nil
	case Reiterable[E]:
		return cursorOver(in.Reiterator()), nil
	}
	return Cursor[E]{}, errors.Wrapf(ErrNotReiterable, "got %T", input)
}

func cursorOver[E any](it Reiterator[E]) Cursor[E] {
	return Cursor[E]{n: &node[E]{src: it}}
}

// Peek returns the element at the cursor, or false at the end.
func (c Cursor[E]) Peek() (E, bool) {
	c.n.fill()
	return c.n.v, c.n.ok
}

// Done reports whether the cursor is at the end of the sequence.
func (c Cursor[E]) Done() bool {
	_, ok := c.Peek()
	return !ok
}

// Advance returns the cursor after this one. At the end, the cursor stays
// where it is.
func (c Cursor[E]) Advance() Cursor[E] {
	c.n.fill()
	if !c.n.ok {
		return c
	}
	return Cursor[E]{n: c.n.next}
}

// Same reports whether both cursors are at the same position of the same
// sequence.
func (c Cursor[E]) Same(o Cursor[E]) bool {
	return c.n == o.n
}

// All ranges over the elements from the cursor to the end.
func (c Cursor[E]) All() iter.Seq[E] {
	return func(yield func(E) bool) {
		for {
			e, ok := c.Peek()
			if !ok || !yield(e) {
				return
			}
			c = c.Advance()
		}
	}
}

// Reiterator returns a Reiterator starting at the cursor.
func (c Cursor[E]) Reiterator() Reiterator[E] {
	return &cursorReiterator[E]{c: c}
}

type cursorReiterator[E any] struct {
	c Cursor[E]
}

func (r *cursorReiterator[E]) Next() (E, bool) {
	e, ok := r.c.Peek()
	r.c = r.c.Advance()
	return e, ok
}

func (r *cursorReiterator[E]) Copy() Reiterator[E] {
	return &cursorReiterator[E]{c: r.c}
}
