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

// Package labelstore 人工标注结果台账：每次提问的应答或失败都记一条，只追加不修改。
package labelstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ryan2x/lense/pkg/config"
	lerrors "github.com/ryan2x/lense/pkg/errors"
)

// Outcome 提问结果
type Outcome string

const (
	OutcomeAnswer  Outcome = "answer"
	OutcomeFailure Outcome = "failure"
)

// Label 一条标注记录
type Label struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	Entity     string    `json:"entity"`
	OnlyOnceID int       `json:"only_once_id"`
	JobID      int       `json:"job_id"`
	QueryID    int       `json:"query_id"`
	Outcome    Outcome   `json:"outcome"`
	Answer     int       `json:"answer"` // 仅 OutcomeAnswer 有意义
	CreatedAt  time.Time `json:"created_at"`
}

// Store 标注台账
type Store interface {
	// Record 追加一条记录；ID、CreatedAt 为空时由存储填充
	Record(ctx context.Context, l *Label) error
	// ListByEntity 按写入顺序返回某实体的记录，limit<=0 时默认 100
	ListByEntity(ctx context.Context, entity string, limit int) ([]*Label, error)
	// Count 记录总数
	Count(ctx context.Context) (int, error)
	Close()
}

const defaultListLimit = 100

// New 按配置创建台账；type 为空或 memory 时使用内存实现
func New(ctx context.Context, cfg config.LabelStoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewStoreMem(), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, lerrors.Wrap(lerrors.ErrInvalidArg, "label_store.dsn is required for postgres")
		}
		return NewStorePg(ctx, cfg.DSN)
	}
	return nil, fmt.Errorf("%w: label_store.type %q", lerrors.ErrInvalidArg, cfg.Type)
}
