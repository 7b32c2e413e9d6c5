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

package direct

import (
	"context"
	"runtime"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	beam "lostluck.dev/beam-windowing"
	"lostluck.dev/beam-windowing/coders"
	"lostluck.dev/beam-windowing/gabw"
	"lostluck.dev/beam-windowing/mtime"
	"lostluck.dev/beam-windowing/window"
)

const (
	URNWindowInto = "beam:transform:window_into:v1"
	URNGroupByKey = "beam:transform:group_by_key:v1"
)

// WindowInto returns the transform reassigning windows with b.
func WindowInto(b beam.Bound) Transform {
	return Transform{URN: URNWindowInto, Name: b.Name(), Payload: b}
}

func evalWindowInto(_ context.Context, ec *EvalContext, t Transform, in Collection) (Collection, error) {
	b, ok := t.Payload.(beam.Bound)
	if !ok {
		return Collection{}, errors.Errorf("WindowInto payload must be a beam.Bound, got %T", t.Payload)
	}
	s, err := b.Apply(in.Strategy)
	if err != nil {
		return Collection{}, err
	}
	fn := s.WindowFn()
	out := make([]window.Value[any], 0, len(in.Elements))
	for _, e := range in.Elements {
		ws, err := fn.AssignWindows(e.Timestamp)
		if err != nil {
			return Collection{}, errors.Wrapf(err, "assigning windows at %v", e.Timestamp)
		}
		e.Windows = ws
		if e.Pane == (window.PaneInfo{}) {
			e.Pane = window.NoFiringPane
		}
		out = append(out, e)
	}
	ec.Logger.Debug("windows assigned", "strategy", s)
	return Collection{Strategy: s, Elements: out}, nil
}

type grouper interface {
	group(ctx context.Context, ec *EvalContext, name string, in Collection) (Collection, error)
}

// GroupByKey returns the transform grouping beam.KV[K, V] elements by key
// and window. It outputs a beam.KV[K, []V] element per pane.
func GroupByKey[K, V any](name string, keyCoder coders.Coder[K], valueCoder coders.Coder[V]) Transform {
	return Transform{URN: URNGroupByKey, Name: name, Payload: gbk[K, V]{key: keyCoder, value: valueCoder}}
}

func evalGroupByKey(ctx context.Context, ec *EvalContext, t Transform, in Collection) (Collection, error) {
	g, ok := t.Payload.(grouper)
	if !ok {
		return Collection{}, errors.Errorf("GroupByKey payload must come from direct.GroupByKey, got %T", t.Payload)
	}
	return g.group(ctx, ec, t.Name, in)
}

type gbk[K, V any] struct {
	key   coders.Coder[K]
	value coders.Coder[V]
}

type keyed[K, V any] struct {
	key    K
	values []window.Value[V]
}

func (g gbk[K, V]) group(ctx context.Context, ec *EvalContext, name string, in Collection) (Collection, error) {
	keys, err := g.byKey(in.Elements)
	if err != nil {
		return Collection{}, err
	}

	opt := ec.Options
	opt.Name = name
	opt.Logger = ec.Logger
	engine, err := gabw.New(in.Strategy, g.key, g.value, &opt)
	if err != nil {
		return Collection{}, err
	}

	n := opt.Parallelism
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	// Each key is processed by exactly one worker.
	shards := make([][]int, n)
	for i, k := range keys {
		s := xxhash.Sum64(coders.Encode(g.key, k.key)) % uint64(n)
		shards[s] = append(shards[s], i)
	}

	results := make([][]window.Value[any], len(keys))
	eg, ctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		eg.Go(func() error {
			for _, i := range shard {
				k := keys[i]
				slices.SortStableFunc(k.values, func(a, b window.Value[V]) int {
					return mtime.Compare(a.Timestamp, b.Timestamp)
				})
				err := engine.ProcessElement(ctx, k.key, k.values, func(p gabw.Pane[K, V]) {
					results[i] = append(results[i], window.Value[any]{
						Value:     beam.Pair(p.Key, slices.Collect(p.Values.All())),
						Timestamp: p.Timestamp,
						Windows:   []window.Window{p.Window},
						Pane:      p.Info,
					})
				})
				if err != nil {
					return errors.Wrapf(err, "grouping key %v", k.key)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Collection{}, err
	}
	ec.Logger.Debug("grouped", "keys", len(keys), "workers", n)
	return Collection{
		Strategy: beam.GroupedStrategy(in.Strategy),
		Elements: slices.Concat(results...),
	}, nil
}

// byKey groups the elements by the structural value of their key, in order
// of first appearance.
func (g gbk[K, V]) byKey(elms []window.Value[any]) ([]*keyed[K, V], error) {
	var keys []*keyed[K, V]
	index := map[any]*keyed[K, V]{}
	for _, e := range elms {
		kv, ok := e.Value.(beam.KV[K, V])
		if !ok {
			return nil, errors.Errorf("GroupByKey needs %T elements, got %T", kv, e.Value)
		}
		sv := coders.StructuralValue(g.key, kv.Key)
		k, ok := index[sv]
		if !ok {
			k = &keyed[K, V]{key: kv.Key}
			index[sv] = k
			keys = append(keys, k)
		}
		k.values = append(k.values, window.Value[V]{Value: kv.Value, Timestamp: e.Timestamp, Windows: e.Windows, Pane: e.Pane})
	}
	return keys, nil
}
