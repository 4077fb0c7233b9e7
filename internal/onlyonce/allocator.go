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

// Package onlyonce 把应用侧实体 key 映射为稳定、从 0 起连续的 onlyOnceID。
// 同一实体总得到同一个 id，服务端据此保证一个 worker 不会对同一实体作答两次。
package onlyonce

import (
	"context"
	"fmt"

	"github.com/ryan2x/lense/pkg/config"
	lerrors "github.com/ryan2x/lense/pkg/errors"
)

// Allocator 实体 → onlyOnceID
type Allocator interface {
	// ID 返回实体的 id；首次出现时分配下一个 id
	ID(ctx context.Context, entity string) (int, error)
	// Lookup 只查询不分配
	Lookup(ctx context.Context, entity string) (int, bool, error)
	// Len 已分配的 id 数
	Len(ctx context.Context) (int, error)
	Close() error
}

// New 按配置创建分配器；type 为空或 memory 时使用内存实现
func New(ctx context.Context, cfg config.OnlyOnceConfig) (Allocator, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		if cfg.URL == "" {
			return nil, lerrors.Wrap(lerrors.ErrInvalidArg, "only_once.url is required for redis")
		}
		return NewRedis(ctx, cfg.URL, cfg.KeyPrefix)
	}
	return nil, fmt.Errorf("%w: only_once.type %q", lerrors.ErrInvalidArg, cfg.Type)
}
