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

	"github.com/ryan2x/lense/internal/labelstore"
	"github.com/ryan2x/lense/pkg/log"
	"github.com/ryan2x/lense/pkg/metrics"
)

// defaultRecordTimeout 单条台账写入的上限
const defaultRecordTimeout = 5 * time.Second

// recorder 台账写入队列：接收 goroutine 只入队，由独立 goroutine 按到达顺序写入存储
type recorder struct {
	store   labelstore.Store
	logger  *log.Logger
	timeout time.Duration

	mu     sync.Mutex
	queue  []*labelstore.Label
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newRecorder(store labelstore.Store, logger *log.Logger, timeout time.Duration) *recorder {
	r := &recorder{
		store:   store,
		logger:  logger,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// add 入队，不阻塞；关闭后返回 false
func (r *recorder) add(l *labelstore.Label) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.queue = append(r.queue, l)
	r.mu.Unlock()
	r.signal()
	return true
}

func (r *recorder) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *recorder) run() {
	defer close(r.done)
	for {
		r.mu.Lock()
		batch, closed := r.queue, r.closed
		r.queue = nil
		r.mu.Unlock()

		for _, l := range batch {
			r.write(l)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-r.wake
	}
}

func (r *recorder) write(l *labelstore.Label) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.store.Record(ctx, l); err != nil {
		r.logger.Error("record label failed", "entity", l.Entity, "job_id", l.JobID, "query_id", l.QueryID, "error", err)
		return
	}
	metrics.LabelsRecordedTotal.WithLabelValues(string(l.Outcome)).Inc()
}

// close 停止接收并写完已入队的记录
func (r *recorder) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.signal()
	<-r.done
}
