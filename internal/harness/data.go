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

// Package harness holds what evaluators see of the bundle they process.
package harness

import "log/slog"

// DataContext holds the per bundle connectors of an evaluator. For now
// that's logging, routed as LogEntries tagged with the bundle and transform.
type DataContext struct {
	BundleID string

	logger *slog.Logger
}

// NewDataContext returns the context of a bundle, whose logs at level or
// above are sent on out.
func NewDataContext(bundleID string, out chan<- *LogEntry, level slog.Leveler) *DataContext {
	return &DataContext{
		BundleID: bundleID,
		logger: slog.New(newLoggingHandler(out, &handlerOptions{
			Level:  level,
			InstID: instructionID(bundleID),
		})),
	}
}

// LoggerForTransform produces a logger for transform with transformID, so
// messages can be matched up with their respective transform.
func (dc *DataContext) LoggerForTransform(transformID string) *slog.Logger {
	return dc.logger.With(withTransformID(transformID))
}
