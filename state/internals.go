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
	"lostluck.dev/beam-windowing/window"
)

// Namespace scopes state within a key, usually to a window.
type Namespace string

// GlobalNamespace is state shared by all windows of a key.
const GlobalNamespace Namespace = ""

// WindowNamespace returns the namespace of the window, using its encoding.
// It never equals GlobalNamespace, even for windows that encode to nothing.
func WindowNamespace(w window.Window, c coders.Coder[window.Window]) Namespace {
	return Namespace("w" + string(coders.Encode(c, w)))
}

// Address is the location of a single state cell.
type Address struct {
	Key       string
	Namespace Namespace
	Tag       Spec
}

// Backend stores encoded state cells. A cell is a list of encoded values;
// single valued state uses a list of one.
//
// Backends must be safe for concurrent use across keys. Calls for a
// single key are never concurrent.
type Backend interface {
	// Get returns the values of the cell, or nil if it's empty.
	Get(ctx context.Context, addr Address) ([][]byte, error)
	// Put replaces the values of the cell. Putting no values clears it.
	Put(ctx context.Context, addr Address, vals [][]byte) error
	// Append adds a value to the end of the cell.
	Append(ctx context.Context, addr Address, val []byte) error
}

// persistent is implemented by backends that store state outside the
// process.
type persistent interface {
	Persistent() bool
}

// IsPersistent reports whether the backend keeps state outside the process.
func IsPersistent(b Backend) bool {
	p, ok := b.(persistent)
	return ok && p.Persistent()
}

// Internals is the state of a single key.
type Internals struct {
	backend Backend
	key     string
}

// NewInternals returns the state of the key, encoded, in the backend.
func NewInternals(b Backend, key []byte) *Internals {
	return &Internals{backend: b, key: string(key)}
}

// Key returns the encoded key.
func (in *Internals) Key() []byte {
	return []byte(in.key)
}

// Namespace returns an accessor to state in the namespace.
func (in *Internals) Namespace(ns Namespace) Accessor {
	return Accessor{in: in, ns: ns}
}

func (in *Internals) addr(ns Namespace, t Tag) Address {
	return Address{Key: in.key, Namespace: ns, Tag: t.Spec()}
}

func (in *Internals) get(ctx context.Context, ns Namespace, t Tag) ([][]byte, error) {
	vals, err := in.backend.Get(ctx, in.addr(ns, t))
	return vals, errors.Wrapf(err, "reading state %v", t.Spec())
}

func (in *Internals) put(ctx context.Context, ns Namespace, t Tag, vals [][]byte) error {
	return errors.Wrapf(in.backend.Put(ctx, in.addr(ns, t), vals), "writing state %v", t.Spec())
}

func (in *Internals) append(ctx context.Context, ns Namespace, t Tag, val []byte) error {
	return errors.Wrapf(in.backend.Append(ctx, in.addr(ns, t), val), "appending state %v", t.Spec())
}

// Merge merges the cells of each tag in the source namespaces into the result
// namespace. The result namespace may also be one of the sources.
func (in *Internals) Merge(ctx context.Context, sources []Namespace, result Namespace, tags ...Tag) error {
	for _, t := range tags {
		if err := t.merge(ctx, in, sources, result); err != nil {
			return errors.Wrapf(err, "merging state %v", t.Spec())
		}
	}
	return nil
}

// Clear empties the cells of the tags in the namespace.
func (in *Internals) Clear(ctx context.Context, ns Namespace, tags ...Tag) error {
	for _, t := range tags {
		if err := in.put(ctx, ns, t, nil); err != nil {
			return err
		}
	}
	return nil
}

// Accessor is the state of a key in one namespace.
type Accessor struct {
	in *Internals
	ns Namespace
}

// Namespace returns the accessor's namespace.
func (a Accessor) Namespace() Namespace {
	return a.ns
}

// decodeAll decodes each encoded value with the coder.
func decodeAll[T any](c coders.Coder[T], vals [][]byte) ([]T, error) {
	out := make([]T, 0, len(vals))
	for _, b := range vals {
		v, err := coders.Decode(c, b)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// otherSources returns the sources that aren't the result.
func otherSources(sources []Namespace, result Namespace) []Namespace {
	var out []Namespace
	for _, s := range sources {
		if s != result {
			out = append(out, s)
		}
	}
	return out
}
