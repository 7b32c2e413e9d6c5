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
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"lostluck.dev/beam-windowing/internal/beamopts"
	"lostluck.dev/beam-windowing/state"
)

// Options configure WindowInto, grouping engines, and runners.
// Each function takes a variadic list of options, where properties
// set in later options override the value of previously set properties.
type Options = beamopts.Options

// Name sets the name of the runner or transform in question, typically
// to make it easier to refer to in logs and metrics.
func Name(name string) Options {
	return &beamopts.Struct{
		Name: name,
	}
}

// Parallelism sets how many workers process keys concurrently.
func Parallelism(n int) Options {
	return &beamopts.Struct{
		Parallelism: n,
	}
}

// Logger sets where grouping engines and runners log.
func Logger(l *slog.Logger) Options {
	return &beamopts.Struct{
		Logger: l,
	}
}

// Metrics sets the registry grouping metrics are recorded in.
func Metrics(reg prometheus.Registerer) Options {
	return &beamopts.Struct{
		Metrics: reg,
	}
}

// StateBackend sets where window state is kept by engines that need it.
func StateBackend(b state.Backend) Options {
	return &beamopts.Struct{
		Backend: b,
	}
}
