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
	"errors"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix redis key 前缀
const DefaultKeyPrefix = "lense:onlyonce"

// allocScript 在一个 hash 内原子地“已有则返回，否则以 HLEN 为新 id 写入”，保证 id 连续
var allocScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if v then
  return tonumber(v)
end
local n = redis.call('HLEN', KEYS[1])
redis.call('HSET', KEYS[1], ARGV[1], n)
return n
`)

// Redis 多进程共享的分配器：同一 redis 上的所有 lense 进程对同一实体得到同一 id
type Redis struct {
	rdb   *redis.Client
	key   string
	owned bool
}

// NewRedis 按 URL 连接 redis（redis://[:password@]host:port/db）
func NewRedis(ctx context.Context, url, keyPrefix string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	r := NewRedisWithClient(rdb, keyPrefix)
	r.owned = true
	return r, nil
}

// NewRedisWithClient 复用已有连接；Close 不会关闭传入的 client
func NewRedisWithClient(rdb *redis.Client, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Redis{rdb: rdb, key: keyPrefix + ":ids"}
}

func (r *Redis) ID(ctx context.Context, entity string) (int, error) {
	n, err := allocScript.Run(ctx, r.rdb, []string{r.key}, entity).Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Redis) Lookup(ctx context.Context, entity string) (int, bool, error) {
	n, err := r.rdb.HGet(ctx, r.key, entity).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.rdb.HLen(ctx, r.key).Result()
	return int(n), err
}

func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.rdb.Close()
}

var _ Allocator = (*Redis)(nil)
