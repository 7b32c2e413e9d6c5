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

import "golang.org/x/exp/constraints"

// AccumulatorMerger merges two accumulators. Merging must be associative and
// commutative, and the zero value of A is the empty accumulator.
type AccumulatorMerger[A any] interface {
	MergeAccumulators(a, b A) A
}

// CombineFn folds inputs into an accumulator and extracts an output from it.
type CombineFn[A, I, O any] interface {
	AccumulatorMerger[A]
	AddInput(a A, i I) A
	ExtractOutput(a A) O
}

// SimpleMerge uses a merger as a CombineFn whose input and output are
// accumulators.
func SimpleMerge[A any](m AccumulatorMerger[A]) CombineFn[A, A, A] {
	return simpleMerge[A]{m}
}

type simpleMerge[A any] struct {
	AccumulatorMerger[A]
}

func (s simpleMerge[A]) AddInput(a, i A) A   { return s.MergeAccumulators(a, i) }
func (s simpleMerge[A]) ExtractOutput(a A) A { return a }

// SumFn sums numbers.
type SumFn[E constraints.Integer | constraints.Float] struct{}

func (SumFn[E]) MergeAccumulators(a, b E) E { return a + b }

// CountFn counts inputs of any type.
type CountFn[I any] struct{}

func (CountFn[I]) MergeAccumulators(a, b int64) int64 { return a + b }
func (CountFn[I]) AddInput(a int64, _ I) int64        { return a + 1 }
func (CountFn[I]) ExtractOutput(a int64) int64        { return a }

var _ CombineFn[int64, string, int64] = CountFn[string]{}
