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
	"errors"
	"sync"

	"github.com/ryan2x/lense/internal/wire"
	"github.com/ryan2x/lense/pkg/metrics"
)

// ErrJobForgotten Job 已被 Forget，不能再提问
var ErrJobForgotten = errors.New("humansource: job forgotten")

// PostJob 发布一个 Job：分配下一个 jobID、登记回调并发送。
// onAccepted 在有 worker 接单时触发，onAbandoned 在 worker 离开时触发；均可为 nil。
// jobID 从 0 起连续分配，并发调用时按发送顺序递增，永不复用。
func (c *Client) PostJob(onlyOnceID int, payload string, onAccepted, onAbandoned func()) (*JobHandle, error) {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	c.mu.Lock()
	id := int32(len(c.jobs))
	job := &jobRecord{
		onlyOnceID:  int32(onlyOnceID),
		onAccepted:  onAccepted,
		onAbandoned: onAbandoned,
	}
	c.jobs = append(c.jobs, job)
	c.mu.Unlock()

	if err := c.send(wire.NewPostJob(id, int32(onlyOnceID), payload)); err != nil {
		// 服务端不知道这个 id，回调永远不会触发
		c.mu.Lock()
		c.forgetLocked(job)
		c.mu.Unlock()
		return nil, err
	}
	metrics.JobsPostedTotal.Inc()
	c.logger.Debug("job posted", "job_id", id, "only_once_id", onlyOnceID)
	return &JobHandle{client: c, id: id}, nil
}

// JobHandle 绑定一个 jobID 的句柄
type JobHandle struct {
	client *Client
	id     int32

	// queryMu 覆盖 queryID 分配与发送，保证服务端收到提问的顺序与编号一致
	queryMu sync.Mutex
}

// ID 服务端可见的 jobID
func (h *JobHandle) ID() int {
	return int(h.id)
}

// LaunchQuery 在 Job 内追加一次提问，返回分配的 queryID（每个 Job 从 0 起连续）。
// 应答到达时调用 onSuccess(answer)，服务端放弃时调用 onFailure；Release 之后的迟到响应照常投递。
func (h *JobHandle) LaunchQuery(payload string, onSuccess func(int), onFailure func()) (int, error) {
	h.queryMu.Lock()
	defer h.queryMu.Unlock()
	c := h.client
	if c.isClosed() {
		return -1, ErrClientClosed
	}

	c.mu.Lock()
	job := c.jobs[h.id]
	if job.forgotten {
		c.mu.Unlock()
		return -1, ErrJobForgotten
	}
	qid := int32(len(job.queries))
	job.queries = append(job.queries, &queryRecord{onSuccess: onSuccess, onFailure: onFailure})
	c.queries++
	c.mu.Unlock()

	if err := c.send(wire.NewQuery(h.id, qid, payload)); err != nil {
		return int(qid), err
	}
	return int(qid), nil
}

// Release 结束 Job，释放正在作答的 worker；登记保留，已发出的提问仍可收到应答
func (h *JobHandle) Release() error {
	return h.client.send(wire.NewReleaseJob(h.id))
}

// Forget 丢弃该 Job 的全部回调与提问记录。之后关于它的响应按无接收方丢弃；jobID 不会被复用。
func (h *JobHandle) Forget() {
	c := h.client
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgetLocked(c.jobs[h.id])
}

func (c *Client) forgetLocked(job *jobRecord) {
	if job.forgotten {
		return
	}
	job.forgotten = true
	job.onAccepted, job.onAbandoned = nil, nil
	c.queries -= len(job.queries)
	job.queries = nil
	c.forgotten++
}
