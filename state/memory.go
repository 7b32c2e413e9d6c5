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

package state

import (
	"context"
	"slices"
	"sync"
)

// MemoryBackend keeps state in process.
type MemoryBackend struct {
	mu    sync.Mutex
	cells map[Address][][]byte
}

// NewMemoryBackend returns an empty in memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{cells: map[Address][][]byte{}}
}

var _ Backend = (*MemoryBackend)(nil)

func (b *MemoryBackend) Get(_ context.Context, addr Address) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.cells[addr]), nil
}

func (b *MemoryBackend) Put(_ context.Context, addr Address, vals [][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(vals) == 0 {
		delete(b.cells, addr)
		return nil
	}
	b.cells[addr] = slices.Clone(vals)
	return nil
}

func (b *MemoryBackend) Append(_ context.Context, addr Address, val []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cells[addr] = append(b.cells[addr], val)
	return nil
}

// Len returns the number of non empty cells.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cells)
}
