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

package harness

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"time"

	"github.com/jba/slog/withsupport"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Severity is the severity of a LogEntry.
type Severity int32

const (
	SeverityUnspecified Severity = iota
	SeverityTrace
	SeverityDebug
	SeverityInfo
	SeverityNotice
	SeverityWarn
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityTrace:
		return "TRACE"
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityNotice:
		return "NOTICE"
	case SeverityWarn:
		return "WARN"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	}
	return "UNSPECIFIED"
}

// Level returns the slog level to report the severity at.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityTrace:
		return slog.LevelDebug - 4
	case SeverityDebug:
		return slog.LevelDebug
	case SeverityWarn:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	case SeverityCritical:
		return slog.LevelError + 4
	}
	return slog.LevelInfo
}

func severityOf(l slog.Level) Severity {
	switch {
	case l < slog.LevelDebug:
		return SeverityTrace
	case l < slog.LevelInfo:
		return SeverityDebug
	case l < slog.LevelWarn:
		return SeverityInfo
	case l < slog.LevelError:
		return SeverityWarn
	case l == slog.LevelError:
		return SeverityError
	}
	return SeverityCritical
}

// LogEntry is a single log message emitted while processing a bundle.
type LogEntry struct {
	Severity      Severity
	Timestamp     *timestamppb.Timestamp
	Message       string
	LogLocation   string
	InstructionID string
	TransformID   string
	CustomData    *structpb.Struct
}

type instructionID string

type handlerOptions struct {
	Level       slog.Leveler
	InstID      instructionID
	TransformID string
}

const transformIDKey = "beam:transform_id"

// withTransformID is recognized by the logging handler, and sets the
// transform of the entries instead of being a custom attribute.
func withTransformID(id string) slog.Attr {
	return slog.String(transformIDKey, id)
}

// loggingHandler converts records into LogEntries, and sends them on out.
type loggingHandler struct {
	out  chan<- *LogEntry
	opts handlerOptions
	goa  *withsupport.GroupOrAttrs
}

func newLoggingHandler(out chan<- *LogEntry, opts *handlerOptions) *loggingHandler {
	h := &loggingHandler{out: out}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *loggingHandler) Enabled(_ context.Context, l slog.Level) bool {
	lvl := slog.LevelInfo
	if h.opts.Level != nil {
		lvl = h.opts.Level.Level()
	}
	return l >= lvl
}

func (h *loggingHandler) WithGroup(name string) slog.Handler {
	h2 := *h
	h2.goa = h.goa.WithGroup(name)
	return &h2
}

func (h *loggingHandler) WithAttrs(as []slog.Attr) slog.Handler {
	h2 := *h
	var rest []slog.Attr
	for _, a := range as {
		if a.Key == transformIDKey {
			h2.opts.TransformID = a.Value.String()
			continue
		}
		rest = append(rest, a)
	}
	h2.goa = h.goa.WithAttrs(rest)
	return &h2
}

func (h *loggingHandler) Handle(ctx context.Context, r slog.Record) error {
	e := &LogEntry{
		Severity:      severityOf(r.Level),
		Message:       r.Message,
		InstructionID: string(h.opts.InstID),
		TransformID:   h.opts.TransformID,
	}
	if !r.Time.IsZero() {
		e.Timestamp = timestamppb.New(r.Time)
	}
	if r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		e.LogLocation = fmt.Sprintf("%s:%d", f.File, f.Line)
	}

	custom := map[string]any{}
	groups := h.goa.Apply(func(groups []string, a slog.Attr) {
		addAttr(custom, groups, a)
	})
	r.Attrs(func(a slog.Attr) bool {
		addAttr(custom, groups, a)
		return true
	})
	if len(custom) > 0 {
		s, err := structpb.NewStruct(custom)
		if err != nil {
			return errors.Wrapf(err, "encoding attributes of log %q", r.Message)
		}
		e.CustomData = s
	}
	select {
	case h.out <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// addAttr adds a to m, nested under groups. Empty attrs and groups are
// dropped.
func addAttr(m map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		as := a.Value.Group()
		if len(as) == 0 {
			return
		}
		if a.Key != "" {
			groups = append(slices.Clip(groups), a.Key)
		}
		for _, ga := range as {
			addAttr(m, groups, ga)
		}
		return
	}
	for _, g := range groups {
		sub, ok := m[g].(map[string]any)
		if !ok {
			sub = map[string]any{}
			m[g] = sub
		}
		m = sub
	}
	m[a.Key] = structValue(a.Value)
}

// structValue returns v as one of the types structpb accepts.
func structValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	}
	return v.String()
}

// Forward logs the entries received on in to logger, until in is closed.
func Forward(ctx context.Context, in <-chan *LogEntry, logger *slog.Logger) {
	for e := range in {
		attrs := make([]slog.Attr, 0, 4)
		if e.InstructionID != "" {
			attrs = append(attrs, slog.String("instruction", e.InstructionID))
		}
		if e.TransformID != "" {
			attrs = append(attrs, slog.String("transform", e.TransformID))
		}
		if e.LogLocation != "" {
			attrs = append(attrs, slog.String(slog.SourceKey, e.LogLocation))
		}
		data := e.CustomData.AsMap()
		for _, k := range slices.Sorted(maps.Keys(data)) {
			attrs = append(attrs, slog.Any(k, data[k]))
		}
		logger.LogAttrs(ctx, e.Severity.Level(), e.Message, attrs...)
	}
}
