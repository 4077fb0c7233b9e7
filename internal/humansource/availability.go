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

package humansource

import (
	"context"
	"time"

	"github.com/ryan2x/lense/internal/wire"
	"github.com/ryan2x/lense/pkg/metrics"
	"github.com/ryan2x/lense/pkg/tracing"
)

// NoAnswer 阻塞式查询未在时限内得到应答，调用方按 0 人可用处理
const NoAnswer = -1

// PollAvailability 异步查询可接 onlyOnceID 的空闲 worker 数，cb 在应答到达时被调用一次。
// 同一 onlyOnceID 的多次查询按调用顺序一一对应各自的应答。
func (c *Client) PollAvailability(onlyOnceID int, cb func(int)) error {
	if cb == nil {
		cb = func(int) {}
	}
	key := int32(onlyOnceID)

	c.orderMu.Lock()
	defer c.orderMu.Unlock()
	if c.isClosed() {
		return ErrClientClosed
	}

	c.mu.Lock()
	c.polls[key] = append(c.polls[key], cb)
	c.pendingPolls++
	c.mu.Unlock()
	metrics.PendingPolls.Inc()

	if err := c.send(wire.NewPollAvailability(key)); err != nil {
		c.retractLastPoll(key)
		return err
	}
	return nil
}

// retractLastPoll 撤回刚登记但未发出的查询；调用方持有 orderMu，因此它必然是该 key 的队尾
func (c *Client) retractLastPoll(key int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.polls[key]
	if len(queue) == 0 {
		return
	}
	queue[len(queue)-1] = nil
	if len(queue) == 1 {
		delete(c.polls, key)
	} else {
		c.polls[key] = queue[:len(queue)-1]
	}
	c.pendingPolls--
	metrics.PendingPolls.Dec()
}

// PollAvailabilityBlocking 同步查询可用人数，最多等待 poll timeout（默认 1s）。
// 超时、ctx 取消、连接关闭或发送失败时返回 NoAnswer；已登记的回调不撤回，迟到的应答被静默消费。
func (c *Client) PollAvailabilityBlocking(ctx context.Context, onlyOnceID int) int {
	ctx, span := tracing.StartPollSpan(ctx, onlyOnceID)
	defer span.End()

	start := time.Now()
	result := make(chan int, 1)
	err := c.PollAvailability(onlyOnceID, func(n int) {
		select {
		case result <- n:
		default:
		}
	})
	if err != nil {
		span.RecordError(err)
		return NoAnswer
	}

	timer := time.NewTimer(c.pollTimeout)
	defer timer.Stop()
	select {
	case n := <-result:
		metrics.PollDuration.Observe(time.Since(start).Seconds())
		return n
	case <-timer.C:
		metrics.PollTimeoutTotal.Inc()
		c.logger.Debug("availability poll timed out", "only_once_id", onlyOnceID, "timeout", c.pollTimeout)
		return NoAnswer
	case <-ctx.Done():
		return NoAnswer
	case <-c.done:
		return NoAnswer
	}
}
