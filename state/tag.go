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

// Package state contains the typed addresses of per key, per window state
// and the storage that backs them.
//
// State in Beam is associated with a key and a window. A Tag names one cell
// of that state, and knows how to read, write, and merge it. Two tags refer
// to the same cell when their [Spec]s are equal: the id, the kind of state,
// and the identity of the coder. Behaviour carried by a tag, such as the
// function of a combining tag, is not part of its identity.
package state

import (
	"context"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"lostluck.dev/beam-windowing/coders"
)

// Kind is the kind of state a tag addresses.
type Kind int

const (
	KindValue Kind = iota + 1
	KindBag
	KindWatermarkHold
	KindCombining
)

var kindNames = map[Kind]string{
	KindValue:         "value",
	KindBag:           "bag",
	KindWatermarkHold: "watermark_hold",
	KindCombining:     "combining",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	n, ok := kindNames[k]
	if !ok {
		return nil, errors.Errorf("unknown state kind %d", int(k))
	}
	return []byte(n), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for kind, n := range kindNames {
		if n == string(b) {
			*k = kind
			return nil
		}
	}
	return errors.Errorf("unknown state kind %q", b)
}

// Spec is the serializable identity of a tag.
type Spec struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Coder string `json:"coder,omitempty"`
}

func (s Spec) String() string {
	if s.Coder == "" {
		return fmt.Sprintf("%v:%v", s.Kind, s.ID)
	}
	return fmt.Sprintf("%v:%v[%v]", s.Kind, s.ID, s.Coder)
}

// Tag is implemented by all state tags.
type Tag interface {
	Spec() Spec

	// merge combines the cells of the tag in the source namespaces into the
	// result namespace, and clears the sources.
	merge(ctx context.Context, in *Internals, sources []Namespace, result Namespace) error
	validate() error
	persistable() bool
}

// Equal reports whether two tags address the same state.
func Equal(a, b Tag) bool {
	return a.Spec() == b.Spec()
}

// MarshalSpec returns the deterministic JSON form of the tag's identity.
func MarshalSpec(t Tag) ([]byte, error) {
	return json.Marshal(t.Spec(), json.Deterministic(true))
}

// Validate checks that each tag is fully configured, and that tags sharing an
// id agree on their spec.
func Validate(tags ...Tag) error {
	var err error
	seen := map[string]Spec{}
	for _, t := range tags {
		if t == nil {
			err = multierr.Append(err, errors.New("nil state tag"))
			continue
		}
		if verr := t.validate(); verr != nil {
			err = multierr.Append(err, verr)
			continue
		}
		spec := t.Spec()
		if prev, ok := seen[spec.ID]; ok && prev != spec {
			err = multierr.Append(err, errors.Errorf("state id %q used with conflicting specs %v and %v", spec.ID, prev, spec))
		}
		seen[spec.ID] = spec
	}
	return err
}

// ValidatePersistable checks that the tags can be written to external
// storage, which requires deterministic coders.
func ValidatePersistable(tags ...Tag) error {
	err := Validate(tags...)
	for _, t := range tags {
		if t != nil && !t.persistable() {
			err = multierr.Append(err, errors.Errorf("state %v has a non deterministic coder and can't be persisted", t.Spec()))
		}
	}
	return err
}

func checkTag(id string, coder any, kind Kind) error {
	if id == "" {
		return errors.Errorf("%v state tag has an empty id", kind)
	}
	if coder == nil {
		return errors.Errorf("%v state tag %q has no coder", kind, id)
	}
	return nil
}

func persistableCoder(c any) bool {
	return coders.IsDeterministic(c)
}
