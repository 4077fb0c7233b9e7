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

// Package hiring 招募子系统客户端：独立连接，请求与响应仅按 requestID 关联。
package hiring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ryan2x/lense/internal/transport"
	"github.com/ryan2x/lense/internal/wire"
	lerrors "github.com/ryan2x/lense/pkg/errors"
	"github.com/ryan2x/lense/pkg/log"
	"github.com/ryan2x/lense/pkg/metrics"
	"github.com/ryan2x/lense/pkg/tracing"
)

// DefaultRequestTimeout 单次请求等待上限
const DefaultRequestTimeout = 10 * time.Second

var (
	// ErrTimeout 在时限内未收到响应
	ErrTimeout = fmt.Errorf("hiring: %w", lerrors.ErrTimeout)
	// ErrClosed 客户端已关闭或连接已断
	ErrClosed = fmt.Errorf("hiring: %w", lerrors.ErrClosed)
)

// Option 客户端可选配置
type Option func(*Client)

// WithLogger 设置日志
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRequestTimeout 设置单次请求等待上限，<=0 忽略
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit 限制 Hire 的频率（每秒 qps 次，突发 burst）；qps<=0 不限
func WithRateLimit(qps float64, burst int) Option {
	return func(c *Client) {
		if qps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(qps), burst)
	}
}

// Client 招募客户端
type Client struct {
	conn    *transport.Conn
	logger  *log.Logger
	timeout time.Duration
	limiter *rate.Limiter

	nextID  atomic.Int32
	mu      sync.Mutex
	pending map[int32]chan wire.HireResponse

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// Dial 连接招募服务
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	conn, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return newClient(conn, opts...), nil
}

// New 在已建立的连接上创建客户端
func New(conn net.Conn, opts ...Option) *Client {
	return newClient(transport.New(conn), opts...)
}

func newClient(conn *transport.Conn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		logger:  log.Nop(),
		timeout: DefaultRequestTimeout,
		pending: make(map[int32]chan wire.HireResponse),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	go c.receiveLoop()
	return c
}

// NumHireable 当前可招募的 worker 数
func (c *Client) NumHireable(ctx context.Context) (int, error) {
	resp, err := c.roundTrip(ctx, wire.HireRequest{Type: wire.HireNumAvailable})
	if err != nil {
		return 0, err
	}
	return int(resp.NumWorkers), nil
}

// Hire 发布招募 n 个 worker 的任务，返回招募页面地址
func (c *Client) Hire(ctx context.Context, n int) (string, error) {
	if n <= 0 {
		return "", lerrors.Wrapf(lerrors.ErrInvalidArg, "hire %d workers", n)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", lerrors.Wrap(err, "hire rate limit")
		}
	}
	resp, err := c.roundTrip(ctx, wire.HireRequest{Type: wire.HireWorkers, NumToHire: int32(n)})
	if err != nil {
		return "", err
	}
	return resp.PostURL, nil
}

func (c *Client) roundTrip(ctx context.Context, req wire.HireRequest) (resp wire.HireResponse, err error) {
	op := req.Type.String()
	req.RequestID = c.nextID.Add(1) - 1
	ctx, span := tracing.StartHireSpan(ctx, op, int(req.RequestID))
	defer func() {
		status := "ok"
		switch {
		case errors.Is(err, ErrTimeout):
			status = "timeout"
		case err != nil:
			status = "error"
			span.RecordError(err)
		}
		metrics.HireRequestsTotal.WithLabelValues(op, status).Inc()
		span.End()
	}()

	if c.closed.Load() {
		return resp, ErrClosed
	}
	ch := make(chan wire.HireResponse, 1)
	c.mu.Lock()
	c.pending[req.RequestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
	}()

	if err := c.conn.Send(req.Marshal()); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return resp, ErrClosed
		}
		return resp, lerrors.Wrapf(err, "send %s", op)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp = <-ch:
		return resp, nil
	case <-timer.C:
		c.logger.Warn("hiring request timed out", "op", op, "request_id", req.RequestID, "timeout", c.timeout)
		return resp, ErrTimeout
	case <-ctx.Done():
		return resp, ctx.Err()
	case <-c.done:
		return resp, ErrClosed
	}
}

func (c *Client) receiveLoop() {
	defer close(c.done)
	for {
		frame, err := c.conn.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.closed.Load() {
				c.logger.Error("hiring receive failed", "error", err)
			}
			return
		}
		resp, err := wire.UnmarshalHireResponse(frame)
		if err != nil {
			c.logger.Warn("drop undecodable hiring response", "error", err)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.RequestID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("no waiter for hiring response", "request_id", resp.RequestID)
			continue
		}
		select {
		case ch <- resp:
		default:
		}
	}
}

// Done 接收循环退出后关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close 关闭连接；可重复调用
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
