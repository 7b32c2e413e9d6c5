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

// Package synthetic produces reproducible keyed records and controlled
// pass through steps, for exercising grouping at scale.
package synthetic

import (
	"context"
	"iter"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	beam "lostluck.dev/beam-windowing"
	"lostluck.dev/beam-windowing/direct"
	"lostluck.dev/beam-windowing/mtime"
	"lostluck.dev/beam-windowing/window"
)

// SourceConfig configures a source of synthetic keyed records.
type SourceConfig struct {
	NumRecords         int
	NumKeys            int
	KeySize, ValueSize int
	// KeyDistribution is "uniform", the default, or "zipf".
	KeyDistribution string
	Start           mtime.Time
	// MeanInterarrival is the mean event time gap between consecutive
	// records. Gaps are exponentially distributed.
	MeanInterarrival time.Duration
	Seed             uint64
}

func (cfg SourceConfig) Validate() error {
	var err error
	if cfg.NumRecords < 0 {
		err = multierr.Append(err, errors.Errorf("negative record count %v", cfg.NumRecords))
	}
	if cfg.NumKeys < 1 {
		err = multierr.Append(err, errors.Errorf("need at least 1 key, got %v", cfg.NumKeys))
	}
	if cfg.KeySize < 0 || cfg.ValueSize < 0 {
		err = multierr.Append(err, errors.Errorf("negative key or value size %v, %v", cfg.KeySize, cfg.ValueSize))
	}
	switch cfg.KeyDistribution {
	case "", "uniform", "zipf":
	default:
		err = multierr.Append(err, errors.Errorf("unknown key distribution %q", cfg.KeyDistribution))
	}
	if cfg.MeanInterarrival < 0 {
		err = multierr.Append(err, errors.Errorf("negative interarrival %v", cfg.MeanInterarrival))
	}
	return err
}

// Records returns the records of cfg in timestamp order, in the global
// window. A config always produces the same records.
func Records(cfg SourceConfig) iter.Seq[window.Value[beam.KV[[]byte, []byte]]] {
	return func(yield func(window.Value[beam.KV[[]byte, []byte]]) bool) {
		r := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
		keys := make([][]byte, max(1, cfg.NumKeys))
		for i := range keys {
			keys[i] = randomBytes(r, cfg.KeySize)
		}
		pick := func() []byte { return keys[r.IntN(len(keys))] }
		if cfg.KeyDistribution == "zipf" && len(keys) > 1 {
			z := rand.NewZipf(r, 1.1, 1, uint64(len(keys)-1))
			pick = func() []byte { return keys[z.Uint64()] }
		}

		ts := cfg.Start
		mean := float64(cfg.MeanInterarrival.Milliseconds())
		for range cfg.NumRecords {
			v := window.Value[beam.KV[[]byte, []byte]]{
				Value:     beam.Pair(pick(), randomBytes(r, cfg.ValueSize)),
				Timestamp: ts,
				Windows:   []window.Window{window.GlobalWindow{}},
				Pane:      window.NoFiringPane,
			}
			if !yield(v) {
				return
			}
			ts = ts.Add(time.Duration(r.ExpFloat64()*mean) * time.Millisecond)
		}
	}
}

func randomBytes(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

// Source returns the records of cfg as a collection in the global window.
func Source(cfg SourceConfig) (direct.Collection, error) {
	if err := cfg.Validate(); err != nil {
		return direct.Collection{}, errors.Wrap(err, "invalid synthetic source")
	}
	c := direct.Collection{Strategy: beam.GlobalStrategy()}
	for v := range Records(cfg) {
		c.Elements = append(c.Elements, window.Value[any]{Value: v.Value, Timestamp: v.Timestamp, Windows: v.Windows, Pane: v.Pane})
	}
	return c, nil
}

const URNStep = "beam:transform:synthetic_step:v1"

// StepConfig configures a step that passes elements through, with
// controlled fan out and filtering.
type StepConfig struct {
	// OutputRecordsPerInputRecord is how many copies of each kept element
	// are output. Zero means one.
	OutputRecordsPerInputRecord uint
	// OutputFilterRatio is the fraction of elements dropped.
	OutputFilterRatio float64
	Seed              uint64
}

// Step returns the transform for a synthetic step. Runners evaluate it once
// it is registered with Register.
func Step(name string, cfg StepConfig) direct.Transform {
	return direct.Transform{URN: URNStep, Name: name, Payload: cfg}
}

// Register adds the synthetic step evaluator to r.
func Register(r *direct.Runner) {
	r.Register(URNStep, evalStep)
}

func evalStep(_ context.Context, ec *direct.EvalContext, t direct.Transform, in direct.Collection) (direct.Collection, error) {
	cfg, ok := t.Payload.(StepConfig)
	if !ok {
		return direct.Collection{}, errors.Errorf("synthetic step payload must be a StepConfig, got %T", t.Payload)
	}
	r := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	copies := max(1, cfg.OutputRecordsPerInputRecord)
	out := direct.Collection{Strategy: in.Strategy}
	for _, e := range in.Elements {
		if cfg.OutputFilterRatio > 0 && r.Float64() < cfg.OutputFilterRatio {
			continue
		}
		for range copies {
			out.Elements = append(out.Elements, e)
		}
	}
	ec.Logger.Debug("synthetic step", slog.Int("in", len(in.Elements)), slog.Int("out", len(out.Elements)))
	return out, nil
}
