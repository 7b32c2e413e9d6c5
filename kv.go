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

package beam

import (
	"fmt"

	"lostluck.dev/beam-windowing/coders"
)

// KV is a key value pair.
type KV[K, V any] struct {
	Key   K
	Value V
}

// Pair returns a KV of the key and value.
func Pair[K, V any](k K, v V) KV[K, V] {
	return KV[K, V]{Key: k, Value: v}
}

func (kv KV[K, V]) String() string {
	return fmt.Sprintf("(%v, %v)", kv.Key, kv.Value)
}

const urnKV = "beam:coder:kv:v1"

// KVCoder encodes the key followed by the value.
type KVCoder[K, V any] struct {
	Key   coders.Coder[K]
	Value coders.Coder[V]
}

func (c KVCoder[K, V]) Encode(enc *coders.Encoder, kv KV[K, V]) {
	c.Key.Encode(enc, kv.Key)
	c.Value.Encode(enc, kv.Value)
}

func (c KVCoder[K, V]) Decode(dec *coders.Decoder) KV[K, V] {
	k := c.Key.Decode(dec)
	return KV[K, V]{Key: k, Value: c.Value.Decode(dec)}
}

func (c KVCoder[K, V]) Deterministic() bool {
	return coders.IsDeterministic(c.Key) && coders.IsDeterministic(c.Value)
}

func (c KVCoder[K, V]) URN() string { return coders.Composite(urnKV, c.Key, c.Value) }
