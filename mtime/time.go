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

// Package mtime contains the event time representation used for windowing.
//
// Event time is kept at millisecond precision, which is what the Beam model
// and its wire formats use.
package mtime

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	// MinTimestamp is the minimum value for any event time.
	MinTimestamp Time = math.MinInt64 / 1000

	// MaxTimestamp is the maximum value for any event time.
	MaxTimestamp Time = math.MaxInt64 / 1000

	// EndOfGlobalWindowTime is the timestamp at the end of the global window.
	// It is one day before MaxTimestamp so that timers and holds at the end
	// of the global window can still be expressed.
	EndOfGlobalWindowTime = MaxTimestamp - Time(24*time.Hour/time.Millisecond)

	// ZeroTimestamp is the default zero value time, the Unix epoch.
	ZeroTimestamp Time = 0
)

// Time is the number of milliseconds since the Unix epoch.
type Time int64

// Normalize ensures a Time is within [MinTimestamp, MaxTimestamp].
func Normalize(t Time) Time {
	return Min(MaxTimestamp, Max(MinTimestamp, t))
}

// FromMilliseconds returns an event time from a milliseconds count.
func FromMilliseconds(ms int64) Time {
	return Normalize(Time(ms))
}

// FromDuration returns an event time that is the given duration after the epoch.
func FromDuration(d time.Duration) Time {
	return Normalize(Time(d.Milliseconds()))
}

// FromTime returns the event time for a wall clock time.
func FromTime(t time.Time) Time {
	return Normalize(Time(t.UnixMilli()))
}

// ToTime returns the wall clock time in UTC.
func (t Time) ToTime() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// Milliseconds returns the number of milliseconds since the epoch.
func (t Time) Milliseconds() int64 {
	return int64(t)
}

// Add returns the time plus the duration, truncated to milliseconds
// and clamped to the valid range.
func (t Time) Add(d time.Duration) Time {
	return t.saturatingAdd(d.Milliseconds())
}

// Subtract returns the time minus the duration.
func (t Time) Subtract(d time.Duration) Time {
	return t.saturatingAdd(-d.Milliseconds())
}

func (t Time) saturatingAdd(ms int64) Time {
	switch {
	case ms > 0 && int64(t) > int64(MaxTimestamp)-ms:
		return MaxTimestamp
	case ms < 0 && int64(t) < int64(MinTimestamp)-ms:
		return MinTimestamp
	}
	return Normalize(t + Time(ms))
}

// Before reports whether t is strictly earlier than o.
func (t Time) Before(o Time) bool { return t < o }

// After reports whether t is strictly later than o.
func (t Time) After(o Time) bool { return t > o }

func (t Time) String() string {
	switch t {
	case MinTimestamp:
		return "-inf"
	case MaxTimestamp:
		return "+inf"
	case EndOfGlobalWindowTime:
		return "glo"
	}
	return fmt.Sprintf("%d", int64(t))
}

// ToProto converts the time into a protocol buffer timestamp.
func (t Time) ToProto() *timestamppb.Timestamp {
	return timestamppb.New(t.ToTime())
}

// FromProto converts a protocol buffer timestamp into an event time.
// A nil timestamp maps to MinTimestamp.
func FromProto(ts *timestamppb.Timestamp) Time {
	if ts == nil {
		return MinTimestamp
	}
	return FromTime(ts.AsTime())
}

// DurationToProto converts a duration to its protocol buffer representation at
// millisecond precision.
func DurationToProto(d time.Duration) *durationpb.Duration {
	return durationpb.New(d.Truncate(time.Millisecond))
}

// Min returns the earlier of the two times.
func Min(a, b Time) Time {
	if a < b {
		return a
	}
	return b
}

// Max returns the later of the two times.
func Max(a, b Time) Time {
	if a > b {
		return a
	}
	return b
}

// Compare orders two times, for use with ordered containers.
func Compare(a, b Time) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
