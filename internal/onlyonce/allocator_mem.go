// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package onlyonce

import (
	"context"
	"sync"
)

// Memory 进程内分配器
type Memory struct {
	mu  sync.RWMutex
	ids map[string]int
}

// NewMemory 创建内存版分配器
func NewMemory() *Memory {
	return &Memory{ids: make(map[string]int)}
}

func (m *Memory) ID(ctx context.Context, entity string) (int, error) {
	m.mu.RLock()
	id, ok := m.ids[entity]
	m.mu.RUnlock()
	if ok {
		return id, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.ids[entity]; ok {
		return id, nil
	}
	id = len(m.ids)
	m.ids[entity] = id
	return id, nil
}

func (m *Memory) Lookup(ctx context.Context, entity string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ids[entity]
	return id, ok, nil
}

func (m *Memory) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids), nil
}

func (m *Memory) Close() error { return nil }

var _ Allocator = (*Memory)(nil)
