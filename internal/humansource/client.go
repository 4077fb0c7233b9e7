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

// Package humansource 人工服务客户端：在一条连接上复用 Job 发布、Job 内提问、Job 释放与可用人数查询，
// 由单个接收 goroutine 把每条异步响应路由回发起方注册的回调。
//
// 关联方式：Job 按 jobID 下标、提问按 jobID+queryID 下标；可用人数查询的响应没有独立 id，
// 只能按 onlyOnceID 的 FIFO 顺序匹配，因此同一 key 的登记顺序必须等于发送顺序。
//
// 回调在接收 goroutine 上、释放分发锁之后执行，可以重入客户端（例如在 onAccepted 中发起提问），
// 但不能在回调里调用 PollAvailabilityBlocking：它等待的应答正要由同一个 goroutine 投递。
package humansource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ryan2x/lense/internal/transport"
	"github.com/ryan2x/lense/internal/wire"
	lerrors "github.com/ryan2x/lense/pkg/errors"
	"github.com/ryan2x/lense/pkg/log"
	"github.com/ryan2x/lense/pkg/metrics"
)

// DefaultPollTimeout 阻塞式可用人数查询的等待上限
const DefaultPollTimeout = time.Second

// ErrClientClosed 客户端已关闭
var ErrClientClosed = fmt.Errorf("humansource: client %w", lerrors.ErrClosed)

// Option 客户端可选配置
type Option func(*Client)

// WithLogger 设置日志；默认丢弃
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPollTimeout 设置阻塞式查询的等待上限，<=0 忽略
func WithPollTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollTimeout = d
		}
	}
}

// WithMaxFrameBytes 设置单帧上限（仅 Dial 时生效）
func WithMaxFrameBytes(n int) Option {
	return func(c *Client) {
		c.maxFrame = n
	}
}

// WithHumanCorrectnessProb 设置模拟误差模型的初始正确率；非法值保留默认
func WithHumanCorrectnessProb(p float64) Option {
	return func(c *Client) {
		if m, err := NewErrorModel(p); err == nil {
			c.errModel = m
		}
	}
}

type queryRecord struct {
	onSuccess func(int)
	onFailure func()
}

type jobRecord struct {
	onlyOnceID  int32
	onAccepted  func()
	onAbandoned func()
	queries     []*queryRecord
	forgotten   bool
}

// Client 人工服务客户端，由 Dial/New 创建，调用方负责 Close
type Client struct {
	id          string
	conn        *transport.Conn
	logger      *log.Logger
	pollTimeout time.Duration
	maxFrame    int

	// orderMu 覆盖 PostJob 与可用人数查询的“登记 + 发送”，保证登记顺序即发送顺序
	orderMu sync.Mutex

	// mu 分发锁：jobs、polls 只在持有 mu 时读写
	mu           sync.Mutex
	jobs         []*jobRecord
	forgotten    int
	queries      int
	polls        map[int32][]func(int)
	pendingPolls int

	modelMu  sync.RWMutex
	errModel ErrorModel

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// Dial 连接人工服务并启动接收循环
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	c := newClient(opts...)
	conn, err := transport.Dial(ctx, addr, transport.WithMaxFrameBytes(c.maxFrame))
	if err != nil {
		return nil, err
	}
	c.start(conn)
	c.logger.Info("connected to human source", "addr", addr)
	return c, nil
}

// New 在已建立的连接上创建客户端并启动接收循环
func New(conn net.Conn, opts ...Option) *Client {
	c := newClient(opts...)
	c.start(transport.New(conn, transport.WithMaxFrameBytes(c.maxFrame)))
	return c
}

func newClient(opts ...Option) *Client {
	m, _ := NewErrorModel(DefaultHumanCorrectnessProb)
	c := &Client{
		id:          uuid.New().String(),
		logger:      log.Nop(),
		pollTimeout: DefaultPollTimeout,
		maxFrame:    transport.DefaultMaxFrameBytes,
		polls:       make(map[int32][]func(int)),
		errModel:    m,
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("client_id", c.id)
	return c
}

func (c *Client) start(conn *transport.Conn) {
	c.conn = conn
	go c.receiveLoop()
}

// ID 客户端实例 id
func (c *Client) ID() string {
	return c.id
}

// Done 接收循环退出后关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close 关闭连接，接收循环随之退出；可重复调用，不等待接收循环
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
		c.logger.Debug("human source client closed")
	})
	return c.closeErr
}

func (c *Client) isClosed() bool {
	return c.closed.Load()
}

func (c *Client) receiveLoop() {
	defer close(c.done)
	for {
		frame, err := c.conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) || c.isClosed() {
				c.logger.Debug("receive loop stopped", "reason", "end of stream")
				return
			}
			// 帧边界已丢失，无法继续
			c.logger.Error("receive failed, stopping receive loop", "error", err)
			return
		}
		resp, err := wire.UnmarshalResponse(frame)
		if err != nil {
			if c.isClosed() {
				return
			}
			c.logger.Warn("drop undecodable response", "error", err, "size", len(frame))
			continue
		}
		c.dispatch(resp)
	}
}

func (c *Client) dispatch(resp wire.Response) {
	metrics.ResponsesTotal.WithLabelValues(resp.Type.String()).Inc()
	fn := c.resolve(resp)
	if fn == nil || c.isClosed() {
		return
	}
	c.invoke(resp, fn)
}

// resolve 在分发锁内找到接收方，返回待执行的回调；找不到返回 nil
func (c *Client) resolve(resp wire.Response) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch resp.Type {
	case wire.HumanArrival, wire.HumanExit:
		job := c.jobLocked(resp.JobID)
		if job == nil {
			c.miss(resp)
			return nil
		}
		if resp.Type == wire.HumanArrival {
			return job.onAccepted
		}
		return job.onAbandoned

	case wire.QueryAnswer, wire.QueryFailure:
		q := c.queryLocked(resp.JobID, resp.QueryID)
		if q == nil {
			c.miss(resp)
			return nil
		}
		if resp.Type == wire.QueryFailure {
			return q.onFailure
		}
		if q.onSuccess == nil {
			return nil
		}
		answer, cb := int(resp.Answer), q.onSuccess
		return func() { cb(answer) }

	case wire.NumAvailableAnswer:
		key := resp.OnlyOnceID()
		queue := c.polls[key]
		if len(queue) == 0 {
			c.miss(resp)
			return nil
		}
		cb := queue[0]
		queue[0] = nil
		if len(queue) == 1 {
			delete(c.polls, key)
		} else {
			c.polls[key] = queue[1:]
		}
		c.pendingPolls--
		metrics.PendingPolls.Dec()
		count := int(resp.Count())
		return func() { cb(count) }
	}

	c.logger.Warn("drop response of unknown type", "type", resp.Type.String(), "job_id", resp.JobID)
	return nil
}

func (c *Client) miss(resp wire.Response) {
	metrics.CorrelationMissTotal.WithLabelValues(resp.Type.String()).Inc()
	c.logger.Debug("no recipient for response",
		"type", resp.Type.String(), "job_id", resp.JobID, "query_id", resp.QueryID)
}

func (c *Client) invoke(resp wire.Response, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("callback panicked", "type", resp.Type.String(), "job_id", resp.JobID, "panic", r)
		}
	}()
	fn()
}

func (c *Client) jobLocked(jobID int32) *jobRecord {
	if jobID < 0 || int(jobID) >= len(c.jobs) {
		return nil
	}
	job := c.jobs[jobID]
	if job.forgotten {
		return nil
	}
	return job
}

func (c *Client) queryLocked(jobID, queryID int32) *queryRecord {
	job := c.jobLocked(jobID)
	if job == nil || queryID < 0 || int(queryID) >= len(job.queries) {
		return nil
	}
	return job.queries[queryID]
}

func (c *Client) send(req wire.Request) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	if err := c.conn.Send(req.Marshal()); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return ErrClientClosed
		}
		c.logger.Error("send failed", "type", req.Type.String(), "job_id", req.JobID, "error", err)
		return lerrors.Wrapf(err, "send %s", req.Type)
	}
	metrics.RequestsTotal.WithLabelValues(req.Type.String()).Inc()
	return nil
}

// Stats 客户端快照
type Stats struct {
	ID            string `json:"id"`
	RemoteAddr    string `json:"remote_addr"`
	Jobs          int    `json:"jobs"`
	ForgottenJobs int    `json:"forgotten_jobs"`
	Queries       int    `json:"queries"`
	PendingPolls  int    `json:"pending_polls"`
	Closed        bool   `json:"closed"`
}

// Stats 返回当前登记表规模
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		ID:            c.id,
		Jobs:          len(c.jobs),
		ForgottenJobs: c.forgotten,
		Queries:       c.queries,
		PendingPolls:  c.pendingPolls,
		Closed:        c.isClosed(),
	}
	if addr := c.conn.RemoteAddr(); addr != nil {
		s.RemoteAddr = addr.String()
	}
	return s
}
