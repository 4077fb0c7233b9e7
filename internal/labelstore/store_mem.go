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

package labelstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StoreMem 内存实现
type StoreMem struct {
	mu       sync.RWMutex
	labels   []*Label
	byEntity map[string][]*Label
}

// NewStoreMem 创建内存版台账
func NewStoreMem() *StoreMem {
	return &StoreMem{byEntity: make(map[string][]*Label)}
}

func (s *StoreMem) Record(ctx context.Context, l *Label) error {
	cp := *l
	if cp.ID == "" {
		cp.ID = "lbl-" + uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.mu.Lock()
	s.labels = append(s.labels, &cp)
	s.byEntity[cp.Entity] = append(s.byEntity[cp.Entity], &cp)
	s.mu.Unlock()
	l.ID, l.CreatedAt = cp.ID, cp.CreatedAt
	return nil
}

func (s *StoreMem) ListByEntity(ctx context.Context, entity string, limit int) ([]*Label, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byEntity[entity]
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]*Label, len(list))
	for i, l := range list {
		cp := *l
		out[i] = &cp
	}
	return out, nil
}

func (s *StoreMem) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.labels), nil
}

func (s *StoreMem) Close() {}

var _ Store = (*StoreMem)(nil)
