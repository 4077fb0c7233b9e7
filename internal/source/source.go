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

// Package source 面向应用的人工标注来源：按实体发布 Job，在 worker 接单后交出 HumanHandle，
// 把每次提问的结果写入标注台账；可选地连接招募子系统。
package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ryan2x/lense/internal/hiring"
	"github.com/ryan2x/lense/internal/humansource"
	"github.com/ryan2x/lense/internal/labelstore"
	"github.com/ryan2x/lense/internal/onlyonce"
	"github.com/ryan2x/lense/pkg/config"
	"github.com/ryan2x/lense/pkg/log"
	"github.com/ryan2x/lense/pkg/tracing"
)

const (
	// DefaultPayload 实体未提供渲染描述时发送的空 JSON
	DefaultPayload = "{}"

	defaultDialTimeout = 5 * time.Second
)

// ErrHiringDisabled 未启用或未能连接招募子系统
var ErrHiringDisabled = errors.New("source: hiring disabled")

// Option HumanSource 可选配置
type Option func(*HumanSource)

// WithHiring 接入招募客户端
func WithHiring(c *hiring.Client) Option {
	return func(s *HumanSource) {
		s.hiring = c
	}
}

// WithLogger 设置日志
func WithLogger(l *log.Logger) Option {
	return func(s *HumanSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecordTimeout 设置单条台账写入的上限，<=0 忽略
func WithRecordTimeout(d time.Duration) Option {
	return func(s *HumanSource) {
		if d > 0 {
			s.recordTimeout = d
		}
	}
}

// HumanSource 人工标注来源；拥有其下所有连接与存储，Close 一并释放
type HumanSource struct {
	humans *humansource.Client
	hiring *hiring.Client
	ids    onlyonce.Allocator
	labels labelstore.Store
	logger *log.Logger

	recordTimeout time.Duration
	recorder      *recorder

	closeOnce sync.Once
	closeErr  error
}

// New 由已创建的组件组装
func New(humans *humansource.Client, ids onlyonce.Allocator, labels labelstore.Store, opts ...Option) *HumanSource {
	s := &HumanSource{
		humans:        humans,
		ids:           ids,
		labels:        labels,
		logger:        log.Nop(),
		recordTimeout: defaultRecordTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	s.recorder = newRecorder(labels, s.logger, s.recordTimeout)
	return s
}

// Open 按配置连接人工服务（必需）与招募子系统（可选，失败只禁用招募），并创建分配器与台账
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (*HumanSource, error) {
	if logger == nil {
		logger = log.Nop()
	}
	hs := cfg.HumanSource
	dialCtx, cancel := context.WithTimeout(ctx, config.ParseDuration(hs.DialTimeout, defaultDialTimeout))
	defer cancel()

	humans, err := humansource.Dial(dialCtx, hs.Addr(),
		humansource.WithLogger(logger),
		humansource.WithPollTimeout(config.ParseDuration(hs.PollTimeout, humansource.DefaultPollTimeout)),
		humansource.WithMaxFrameBytes(hs.MaxFrameBytes),
		humansource.WithHumanCorrectnessProb(cfg.Simulation.HumanCorrectnessProb),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to human GUI", "addr", hs.Addr())

	ids, err := onlyonce.New(ctx, cfg.OnlyOnce)
	if err != nil {
		_ = humans.Close()
		return nil, err
	}
	labels, err := labelstore.New(ctx, cfg.LabelStore)
	if err != nil {
		_ = humans.Close()
		_ = ids.Close()
		return nil, err
	}

	opts := []Option{WithLogger(logger)}
	if cfg.Hiring.Enable {
		addr := cfg.Hiring.Addr(hs.Host)
		hc, err := hiring.Dial(dialCtx, addr,
			hiring.WithLogger(logger),
			hiring.WithRequestTimeout(config.ParseDuration(cfg.Hiring.RequestTimeout, hiring.DefaultRequestTimeout)),
			hiring.WithRateLimit(cfg.Hiring.QPS, cfg.Hiring.Burst),
		)
		if err != nil {
			logger.Info("failed to connect to hiring service, programmatic hiring disabled", "addr", addr, "error", err)
		} else {
			opts = append(opts, WithHiring(hc))
		}
	}
	return New(humans, ids, labels, opts...), nil
}

// MakeJobPosting 为实体发布一个 Job；worker 接单后以 HumanHandle 调用 onReady（在接收 goroutine 上）
func (s *HumanSource) MakeJobPosting(ctx context.Context, entity, payload string, onReady func(*HumanHandle)) error {
	id, err := s.ids.ID(ctx, entity)
	if err != nil {
		return err
	}
	_, span := tracing.StartJobSpan(ctx, entity, id)
	defer span.End()

	if payload == "" {
		payload = DefaultPayload
	}
	h := newHumanHandle(s, entity, id)
	job, err := s.humans.PostJob(id, payload, func() {
		<-h.ready
		if onReady != nil {
			onReady(h)
		}
	}, h.disconnect)
	if err != nil {
		span.RecordError(err)
		close(h.ready)
		return err
	}
	h.job = job
	close(h.ready)
	return nil
}

// AvailableHumans 阻塞查询可接该实体的空闲 worker 数；超时或失败返回 humansource.NoAnswer
func (s *HumanSource) AvailableHumans(ctx context.Context, entity string) int {
	id, err := s.ids.ID(ctx, entity)
	if err != nil {
		s.logger.Warn("allocate only-once id failed", "entity", entity, "error", err)
		return humansource.NoAnswer
	}
	return s.humans.PollAvailabilityBlocking(ctx, id)
}

// HiringEnabled 是否接入了招募子系统
func (s *HumanSource) HiringEnabled() bool {
	return s.hiring != nil
}

// NumHireable 可招募的 worker 数
func (s *HumanSource) NumHireable(ctx context.Context) (int, error) {
	if s.hiring == nil {
		return 0, ErrHiringDisabled
	}
	return s.hiring.NumHireable(ctx)
}

// Hire 发布招募，返回招募页面地址
func (s *HumanSource) Hire(ctx context.Context, n int) (string, error) {
	if s.hiring == nil {
		return "", ErrHiringDisabled
	}
	url, err := s.hiring.Hire(ctx, n)
	if err != nil {
		return "", err
	}
	s.logger.Info("hiring posted", "workers", n, "url", url)
	return url, nil
}

// SetHumanCorrectnessProb 更新模拟误差模型
func (s *HumanSource) SetHumanCorrectnessProb(p float64) error {
	return s.humans.SetHumanCorrectnessProb(p)
}

// ErrorModel 当前模拟误差模型
func (s *HumanSource) ErrorModel() humansource.ErrorModel {
	return s.humans.ErrorModel()
}

// Labels 标注台账
func (s *HumanSource) Labels() labelstore.Store {
	return s.labels
}

// Client 底层人工服务客户端
func (s *HumanSource) Client() *humansource.Client {
	return s.humans
}

// Stats 状态快照
type Stats struct {
	Human    humansource.Stats `json:"human"`
	Hiring   bool              `json:"hiring"`
	Entities int               `json:"entities"`
	Labels   int               `json:"labels"`
}

// Stats 汇总连接、分配器与台账状态
func (s *HumanSource) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Human: s.humans.Stats(), Hiring: s.hiring != nil}
	n, err := s.ids.Len(ctx)
	if err != nil {
		return st, err
	}
	st.Entities = n
	if st.Labels, err = s.labels.Count(ctx); err != nil {
		return st, err
	}
	return st, nil
}

// Done 人工服务连接的接收循环退出后关闭
func (s *HumanSource) Done() <-chan struct{} {
	return s.humans.Done()
}

// Close 关闭全部连接，写完排队中的标注记录后关闭存储；可重复调用
func (s *HumanSource) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("closing connections")
		s.closeErr = s.humans.Close()
		if s.hiring != nil {
			_ = s.hiring.Close()
		}
		s.recorder.close()
		if err := s.ids.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		s.labels.Close()
	})
	return s.closeErr
}
