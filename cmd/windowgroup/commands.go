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

package main

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	beam "lostluck.dev/beam-windowing"
	"lostluck.dev/beam-windowing/coders"
	"lostluck.dev/beam-windowing/direct"
	"lostluck.dev/beam-windowing/transforms/synthetic"
)

type globalFlags struct {
	verbose     bool
	parallelism int
	metrics     bool
}

func newRootCommand() *cobra.Command {
	var g globalFlags
	command := &cobra.Command{
		Use:           "windowgroup",
		Short:         "Window and group keyed records",
		SilenceUsage:  true,
	}
	command.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log window events")
	command.PersistentFlags().IntVar(&g.parallelism, "parallelism", 0, "workers grouping keys, 0 for one per CPU")
	command.PersistentFlags().BoolVar(&g.metrics, "metrics", false, "print grouping metrics to stderr when done")
	command.AddCommand(newRunCommand(&g), newSynthCommand(&g))
	return command
}

// runner returns the runner configured by the global flags, and a func to
// call once it is done.
func (g *globalFlags) runner(cmd *cobra.Command, name string) (*direct.Runner, func() error) {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	reg := prometheus.NewRegistry()
	r := direct.Default(beam.Name(name), beam.Logger(logger), beam.Parallelism(g.parallelism), beam.Metrics(reg))
	synthetic.Register(r)

	done := func() error {
		if !g.metrics {
			return nil
		}
		mfs, err := reg.Gather()
		if err != nil {
			return err
		}
		enc := expfmt.NewEncoder(cmd.ErrOrStderr(), expfmt.NewFormat(expfmt.TypeTextPlain))
		for _, mf := range mfs {
			if err := enc.Encode(mf); err != nil {
				return err
			}
		}
		return nil
	}
	return r, done
}

func newRunCommand(g *globalFlags) *cobra.Command {
	var jobPath string
	command := &cobra.Command{
		Use:   "run",
		Short: "Run a job described in YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := loadJob(jobPath)
			if err != nil {
				return err
			}
			in, err := job.Input()
			if err != nil {
				return err
			}
			ts, err := job.Transforms()
			if err != nil {
				return err
			}
			r, done := g.runner(cmd, job.Name)
			out, err := r.Run(cmd.Context(), in, ts...)
			if err != nil {
				return err
			}
			if err := writePanes(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return done()
		},
	}
	command.Flags().StringVar(&jobPath, "job", "job.yaml", "path of the job file")
	return command
}

func newSynthCommand(g *globalFlags) *cobra.Command {
	var (
		src  synthetic.SourceConfig
		step synthetic.StepConfig
		win  WindowConfig
	)
	command := &cobra.Command{
		Use:   "synth",
		Short: "Group synthetic records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := synthetic.Source(src)
			if err != nil {
				return err
			}
			b, err := win.Bound()
			if err != nil {
				return err
			}
			step.Seed = src.Seed
			r, done := g.runner(cmd, "synth")
			out, err := r.Run(cmd.Context(), in,
				synthetic.Step("step", step),
				direct.WindowInto(b),
				direct.GroupByKey("synth", coders.Bytes{}, coders.Bytes{}),
			)
			if err != nil {
				return errors.Wrap(err, "grouping synthetic records")
			}
			if err := writePanes(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return done()
		},
	}
	f := command.Flags()
	f.IntVar(&src.NumRecords, "records", 1000, "number of records")
	f.IntVar(&src.NumKeys, "keys", 10, "number of distinct keys")
	f.IntVar(&src.KeySize, "key-size", 4, "key size in bytes")
	f.IntVar(&src.ValueSize, "value-size", 8, "value size in bytes")
	f.StringVar(&src.KeyDistribution, "distribution", "uniform", "key distribution, uniform or zipf")
	f.DurationVar(&src.MeanInterarrival, "interarrival", time.Second, "mean event time between records")
	f.Uint64Var(&src.Seed, "seed", 1, "random seed")
	f.UintVar(&step.OutputRecordsPerInputRecord, "fanout", 1, "copies of each record")
	f.Float64Var(&step.OutputFilterRatio, "filter", 0, "fraction of records dropped")
	f.StringVar(&win.Fn, "fn", "fixed", "window fn: global, fixed, sliding, or sessions")
	f.DurationVar(&win.Size, "size", time.Minute, "fixed and sliding window size")
	f.DurationVar(&win.Period, "period", 10*time.Second, "sliding window period")
	f.DurationVar(&win.Gap, "gap", time.Minute, "session gap")
	f.StringVar(&win.Mode, "mode", "discarding", "accumulation mode")
	f.DurationVar(&win.AllowedLateness, "allowed-lateness", 0, "allowed lateness")
	return command
}
