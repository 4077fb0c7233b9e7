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

package source

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryan2x/lense/internal/humansource"
	"github.com/ryan2x/lense/internal/labelstore"
	"github.com/ryan2x/lense/pkg/tracing"
)

// HumanHandle 一个已接单的 worker 在一个 Job 上的会话
type HumanHandle struct {
	source     *HumanSource
	entity     string
	onlyOnceID int

	job   *humansource.JobHandle
	ready chan struct{} // job 赋值后关闭

	disconnectOnce sync.Once
	disconnected   chan struct{}
}

func newHumanHandle(s *HumanSource, entity string, onlyOnceID int) *HumanHandle {
	return &HumanHandle{
		source:       s,
		entity:       entity,
		onlyOnceID:   onlyOnceID,
		ready:        make(chan struct{}),
		disconnected: make(chan struct{}),
	}
}

// Entity 所属实体
func (h *HumanHandle) Entity() string { return h.entity }

// OnlyOnceID 实体的 onlyOnceID
func (h *HumanHandle) OnlyOnceID() int { return h.onlyOnceID }

// JobID 服务端 jobID
func (h *HumanHandle) JobID() int { return h.job.ID() }

// Disconnected worker 离开后关闭
func (h *HumanHandle) Disconnected() <-chan struct{} {
	return h.disconnected
}

func (h *HumanHandle) disconnect() {
	<-h.ready
	h.disconnectOnce.Do(func() {
		close(h.disconnected)
		h.source.logger.Info("human left job", "entity", h.entity, "job_id", h.job.ID())
	})
}

// MakeQuery 向该 worker 提一个问题；结果先排入台账写入队列，再回调 onAnswer / onFailure（均可为 nil）
func (h *HumanHandle) MakeQuery(ctx context.Context, payload string, onAnswer func(int), onFailure func()) (int, error) {
	if payload == "" {
		payload = DefaultPayload
	}
	qs := &querySpan{}
	var qid int
	var launched sync.WaitGroup
	launched.Add(1)
	record := func(outcome labelstore.Outcome, answer int) {
		launched.Wait()
		h.record(outcome, qid, answer)
		qs.finish(outcome)
	}
	qid, err := h.job.LaunchQuery(payload,
		func(answer int) {
			record(labelstore.OutcomeAnswer, answer)
			if onAnswer != nil {
				onAnswer(answer)
			}
		},
		func() {
			record(labelstore.OutcomeFailure, 0)
			if onFailure != nil {
				onFailure()
			}
		},
	)
	launched.Done()
	if err != nil {
		return qid, err
	}
	_, span := tracing.StartQuerySpan(ctx, h.job.ID(), qid)
	qs.start(span)
	return qid, nil
}

func (h *HumanHandle) record(outcome labelstore.Outcome, queryID, answer int) {
	s := h.source
	l := &labelstore.Label{
		ClientID:   s.humans.ID(),
		Entity:     h.entity,
		OnlyOnceID: h.onlyOnceID,
		JobID:      h.job.ID(),
		QueryID:    queryID,
		Outcome:    outcome,
		Answer:     answer,
		CreatedAt:  time.Now(),
	}
	if !s.recorder.add(l) {
		s.logger.Warn("drop label after close", "entity", h.entity, "job_id", l.JobID, "query_id", queryID)
	}
}

// Release 结束 Job，释放 worker
func (h *HumanHandle) Release() error {
	return h.job.Release()
}

// Forget 丢弃该 Job 在客户端的登记；之后的响应不再投递
func (h *HumanHandle) Forget() {
	h.job.Forget()
}

// ErrorModel 按变量选项数生成误差表；选项数不在 [2, MaxAnswerOptions] 的变量对应 nil
func (h *HumanHandle) ErrorModel(variableSizes []int) [][][]float64 {
	m := h.source.ErrorModel()
	out := make([][][]float64, len(variableSizes))
	for i, k := range variableSizes {
		if t, err := m.Table(k); err == nil {
			out[i] = t
		}
	}
	return out
}

// querySpan 提问 span：从发出到结果回调；回调可能早于 span 创建
type querySpan struct {
	mu      sync.Mutex
	span    trace.Span
	outcome labelstore.Outcome
}

func (q *querySpan) start(span trace.Span) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.outcome != "" {
		span.SetAttributes(attribute.String("query.outcome", string(q.outcome)))
		span.End()
		return
	}
	q.span = span
}

func (q *querySpan) finish(outcome labelstore.Outcome) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outcome = outcome
	if q.span != nil {
		q.span.SetAttributes(attribute.String("query.outcome", string(outcome)))
		q.span.End()
		q.span = nil
	}
}
