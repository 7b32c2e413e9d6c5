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

// Package beam describes how the elements of a collection are windowed and
// grouped.
//
// A [Strategy] bundles the [window.Fn] that assigns elements to windows,
// the [trigger.Trigger] that decides when a window's contents are emitted,
// the [AccumulationMode] that says whether emitted contents are kept for
// later panes, and the allowed lateness of data. Strategies are values:
// every With method returns a new Strategy and leaves the receiver as is,
// so one strategy can be shared by many transforms.
//
// [WindowInto] changes the strategy of a collection. Unless it sets an
// allowed lateness itself, the lateness of the input is kept, so that
// changing only the window size doesn't shrink how long late data is
// accepted.
//
// Grouping is implemented in package gabw, and evaluated over in memory
// collections by package direct.
package beam
