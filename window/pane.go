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

package window

import (
	"fmt"

	"github.com/pkg/errors"
	"lostluck.dev/beam-windowing/coders"
)

// Timing describes when a pane fired relative to the watermark.
type Timing byte

const (
	Early   Timing = 0 // Before the watermark passed the end of the window.
	OnTime  Timing = 1 // The first firing after the watermark passed the end of the window.
	Late    Timing = 2 // After the on time firing.
	Unknown Timing = 3
)

func (t Timing) String() string {
	switch t {
	case Early:
		return "EARLY"
	case OnTime:
		return "ON_TIME"
	case Late:
		return "LATE"
	case Unknown:
		return "UNKNOWN"
	}
	return fmt.Sprintf("Timing(%d)", byte(t))
}

// PaneInfo describes a single firing of a window.
type PaneInfo struct {
	Timing          Timing
	IsFirst, IsLast bool
	// Index counts the firings of the window, starting at 0.
	Index int64
	// NonSpeculativeIndex counts the non early firings, and is -1 for early panes.
	NonSpeculativeIndex int64
}

var (
	// NoFiringPane is the pane of values that were never grouped.
	NoFiringPane = PaneInfo{Timing: Unknown, IsFirst: true, IsLast: true}
	// OnTimeAndOnlyFiring is the pane of a window that fired exactly once,
	// when the watermark passed its end.
	OnTimeAndOnlyFiring = PaneInfo{Timing: OnTime, IsFirst: true, IsLast: true}
)

func (p PaneInfo) String() string {
	return fmt.Sprintf("Pane{%v first=%v last=%v index=%d nonspec=%d}", p.Timing, p.IsFirst, p.IsLast, p.Index, p.NonSpeculativeIndex)
}

// The high nibble of the pane header says which indices follow.
const (
	paneFirst      = 0x0
	paneOneIndex   = 0x1
	paneTwoIndices = 0x2
)

func (p PaneInfo) header() byte {
	var b byte
	if p.IsFirst {
		b |= 0x01
	}
	if p.IsLast {
		b |= 0x02
	}
	return b | byte(p.Timing)<<2
}

// PaneCoder encodes panes as a single header byte followed by up to two varint
// indices.
type PaneCoder struct{}

func (PaneCoder) Encode(enc *coders.Encoder, p PaneInfo) {
	switch {
	case (p.Index == 0 && p.NonSpeculativeIndex == 0) || p.Timing == Unknown:
		enc.Byte(paneFirst<<4 | p.header())
	case p.Index == p.NonSpeculativeIndex || p.Timing == Early:
		enc.Byte(paneOneIndex<<4 | p.header())
		enc.Varint(uint64(p.Index))
	default:
		enc.Byte(paneTwoIndices<<4 | p.header())
		enc.Varint(uint64(p.Index))
		enc.Varint(uint64(p.NonSpeculativeIndex))
	}
}

func (PaneCoder) Decode(dec *coders.Decoder) PaneInfo {
	b := dec.Byte()
	p := PaneInfo{
		IsFirst: b&0x01 == 0x01,
		IsLast:  b&0x02 == 0x02,
		Timing:  Timing((b >> 2) & 0x03),
	}
	if p.Timing == Early {
		p.NonSpeculativeIndex = -1
	}
	switch b >> 4 {
	case paneFirst:
	case paneOneIndex:
		p.Index = int64(dec.Varint())
		if p.Timing != Early {
			p.NonSpeculativeIndex = p.Index
		}
	case paneTwoIndices:
		p.Index = int64(dec.Varint())
		p.NonSpeculativeIndex = int64(dec.Varint())
	default:
		panic(&coders.Error{Coder: "pane", Err: errors.Errorf("unknown pane encoding %#x", b>>4)})
	}
	return p
}

func (PaneCoder) Deterministic() bool { return true }
