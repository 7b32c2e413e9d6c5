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

// Package direct evaluates windowing and grouping transforms over bounded,
// in memory collections.
//
// A [Runner] maps transform URNs to [Evaluator]s. Each transform runs as a
// single bundle, whose logs are routed through the harness and forwarded to
// the runner's logger.
package direct

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	beam "lostluck.dev/beam-windowing"
	"lostluck.dev/beam-windowing/internal/beamopts"
	"lostluck.dev/beam-windowing/internal/harness"
	"lostluck.dev/beam-windowing/window"
)

// Collection is a bounded collection of windowed elements, with the
// strategy they were windowed by.
type Collection struct {
	Strategy beam.Strategy
	Elements []window.Value[any]
}

// Transform is an application of a transform to a collection.
type Transform struct {
	URN  string
	Name string
	// Payload configures the transform, and is interpreted by its evaluator.
	Payload any
}

// EvalContext is what an evaluator sees of the runner and the bundle.
type EvalContext struct {
	Data    *harness.DataContext
	Options beamopts.Struct
	Logger  *slog.Logger
}

// Evaluator executes one transform over a collection.
type Evaluator func(ctx context.Context, ec *EvalContext, t Transform, in Collection) (Collection, error)

// ErrUnknownTransform is returned for transforms without a registered
// evaluator.
var ErrUnknownTransform = errors.New("no evaluator for transform")

// Runner evaluates transforms in sequence.
type Runner struct {
	opts       beamopts.Struct
	evaluators map[string]Evaluator
}

// NewRunner returns a runner with no evaluators.
func NewRunner(opts ...beam.Options) *Runner {
	return &Runner{
		opts:       beamopts.Resolve(opts...),
		evaluators: map[string]Evaluator{},
	}
}

// Default returns a runner that evaluates WindowInto and GroupByKey.
func Default(opts ...beam.Options) *Runner {
	r := NewRunner(opts...)
	r.Register(URNWindowInto, evalWindowInto)
	r.Register(URNGroupByKey, evalGroupByKey)
	return r
}

// Register sets the evaluator for urn. Registering an urn twice panics.
func (r *Runner) Register(urn string, e Evaluator) {
	if _, ok := r.evaluators[urn]; ok {
		panic(errors.Errorf("evaluator for %q already registered", urn))
	}
	r.evaluators[urn] = e
}

// Run applies the transforms to in, in order, and returns the last output.
func (r *Runner) Run(ctx context.Context, in Collection, ts ...Transform) (Collection, error) {
	logger := r.opts.LoggerOrDefault()
	if r.opts.Name != "" {
		logger = logger.With(slog.String("runner", r.opts.Name))
	}
	for _, t := range ts {
		eval, ok := r.evaluators[t.URN]
		if !ok {
			return Collection{}, errors.Wrapf(ErrUnknownTransform, "%v (%v)", t.Name, t.URN)
		}
		out, err := r.bundle(ctx, logger, eval, t, in)
		if err != nil {
			return Collection{}, errors.Wrapf(err, "evaluating %v", t.Name)
		}
		in = out
	}
	return in, nil
}

// bundle evaluates t in a bundle of its own, forwarding its logs until it
// completes.
func (r *Runner) bundle(ctx context.Context, logger *slog.Logger, eval Evaluator, t Transform, in Collection) (Collection, error) {
	logs := make(chan *harness.LogEntry, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		harness.Forward(ctx, logs, logger)
	}()
	defer wg.Wait()
	defer close(logs)

	level := slog.LevelInfo
	if logger.Enabled(ctx, slog.LevelDebug) {
		level = slog.LevelDebug
	}
	dc := harness.NewDataContext(uuid.NewString(), logs, level)
	ec := &EvalContext{
		Data:    dc,
		Options: r.opts,
		Logger:  dc.LoggerForTransform(t.Name),
	}
	ec.Logger.Debug("bundle started", slog.String("urn", t.URN), slog.Int("elements", len(in.Elements)))
	out, err := eval(ctx, ec, t, in)
	if err != nil {
		return Collection{}, err
	}
	ec.Logger.Debug("bundle finished", slog.Int("elements", len(out.Elements)))
	return out, nil
}
