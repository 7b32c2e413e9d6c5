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
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
	beam "lostluck.dev/beam-windowing"
	"lostluck.dev/beam-windowing/coders"
	"lostluck.dev/beam-windowing/direct"
	"lostluck.dev/beam-windowing/mtime"
	"lostluck.dev/beam-windowing/window"
)

// Job is a grouping job read from YAML.
type Job struct {
	Name      string         `yaml:"name"`
	Windowing WindowConfig   `yaml:"windowing"`
	Records   []RecordConfig `yaml:"records"`
}

// WindowConfig describes the windowing applied before grouping.
type WindowConfig struct {
	// Fn is one of global, fixed, sliding, or sessions.
	Fn              string        `yaml:"fn"`
	Size            time.Duration `yaml:"size"`
	Period          time.Duration `yaml:"period"`
	Offset          time.Duration `yaml:"offset"`
	Gap             time.Duration `yaml:"gap"`
	Mode            string        `yaml:"mode"`
	AllowedLateness time.Duration `yaml:"allowedLateness"`
}

// RecordConfig is a single input record. The timestamp is either RFC 3339,
// or a duration since the epoch.
type RecordConfig struct {
	Key       string `yaml:"key"`
	Value     string `yaml:"value"`
	Timestamp string `yaml:"timestamp"`
}

func loadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading job")
	}
	var job Job
	if err := yaml.UnmarshalStrict(data, &job); err != nil {
		return nil, errors.Wrapf(err, "parsing job %v", path)
	}
	if job.Name == "" {
		job.Name = "windowgroup"
	}
	return &job, nil
}

// Bound returns the WindowInto transform the config describes.
func (c WindowConfig) Bound() (beam.Bound, error) {
	var fn window.Fn
	switch strings.ToLower(c.Fn) {
	case "", "global":
		fn = window.GlobalWindows{}
	case "fixed":
		fn = window.Fixed{Size: c.Size, Offset: c.Offset}
	case "sliding":
		fn = window.Sliding{Size: c.Size, Period: c.Period, Offset: c.Offset}
	case "sessions":
		fn = window.Sessions{Gap: c.Gap}
	default:
		return beam.Bound{}, errors.Errorf("unknown window fn %q", c.Fn)
	}
	b := beam.WindowInto(fn)
	switch strings.ToLower(c.Mode) {
	case "", "discarding":
		b = b.DiscardingFiredPanes()
	case "accumulating":
		b = b.AccumulatingFiredPanes()
	default:
		return beam.Bound{}, errors.Errorf("unknown accumulation mode %q", c.Mode)
	}
	if c.AllowedLateness != 0 {
		b = b.WithAllowedLateness(c.AllowedLateness)
	}
	return b, nil
}

func parseTimestamp(s string) (mtime.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return mtime.FromDuration(d), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, errors.Errorf("timestamp %q is neither a duration nor RFC 3339", s)
	}
	return mtime.FromTime(t), nil
}

// Input returns the job's records in the global window.
func (j *Job) Input() (direct.Collection, error) {
	c := direct.Collection{Strategy: beam.GlobalStrategy()}
	for i, r := range j.Records {
		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			return direct.Collection{}, errors.Wrapf(err, "record %d", i)
		}
		c.Elements = append(c.Elements, window.Value[any]{
			Value:     beam.Pair(r.Key, r.Value),
			Timestamp: ts,
			Windows:   []window.Window{window.GlobalWindow{}},
			Pane:      window.NoFiringPane,
		})
	}
	return c, nil
}

// Transforms returns the windowing and grouping of the job.
func (j *Job) Transforms() ([]direct.Transform, error) {
	b, err := j.Windowing.Bound()
	if err != nil {
		return nil, err
	}
	return []direct.Transform{
		direct.WindowInto(b),
		direct.GroupByKey(j.Name, coders.String{}, coders.String{}),
	}, nil
}

// paneRecord is a pane as printed.
type paneRecord struct {
	Key       string    `json:"key"`
	Values    []string  `json:"values"`
	Window    string    `json:"window"`
	Timestamp time.Time `json:"timestamp"`
	Timing    string    `json:"timing"`
	Index     int64     `json:"index"`
	First     bool      `json:"first,omitzero"`
	Last      bool      `json:"last,omitzero"`
}

// writePanes prints the grouped elements as JSON lines. Byte keys and values
// are printed in hex.
func writePanes(w io.Writer, out direct.Collection) error {
	for _, e := range out.Elements {
		rec := paneRecord{
			Timestamp: e.Timestamp.ToTime().UTC(),
			Timing:    e.Pane.Timing.String(),
			Index:     e.Pane.Index,
			First:     e.Pane.IsFirst,
			Last:      e.Pane.IsLast,
		}
		for _, win := range e.Windows {
			rec.Window = fmt.Sprint(win)
		}
		switch kv := e.Value.(type) {
		case beam.KV[string, []string]:
			rec.Key, rec.Values = kv.Key, kv.Value
		case beam.KV[[]byte, [][]byte]:
			rec.Key = hex.EncodeToString(kv.Key)
			for _, v := range kv.Value {
				rec.Values = append(rec.Values, hex.EncodeToString(v))
			}
		default:
			return errors.Errorf("can't print grouped element %T", e.Value)
		}
		if err := json.MarshalWrite(w, rec, json.Deterministic(true)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}
