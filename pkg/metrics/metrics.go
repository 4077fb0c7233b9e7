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

package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		RequestsTotal, ResponsesTotal, CorrelationMissTotal,
		PendingPolls, PollTimeoutTotal, PollDuration,
		JobsPostedTotal, HireRequestsTotal, LabelsRecordedTotal,
	)
}

// RequestsTotal 发往人工服务的请求数（按类型）
var RequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lense_requests_total",
		Help: "发往人工服务的请求数",
	},
	[]string{"type"}, // job_posting | query | job_release | num_available
)

// ResponsesTotal 收到的响应数（按类型）
var ResponsesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lense_responses_total",
		Help: "收到的响应数",
	},
	[]string{"type"},
)

// CorrelationMissTotal 找不到接收方而被丢弃的响应
var CorrelationMissTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lense_correlation_miss_total",
		Help: "无匹配回调而被丢弃的响应数",
	},
	[]string{"type"},
)

// PendingPolls 尚未收到应答的可用人数查询
var PendingPolls = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "lense_pending_polls",
		Help: "等待应答的可用人数查询数",
	},
)

// PollTimeoutTotal 阻塞式查询超时次数
var PollTimeoutTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "lense_poll_timeouts_total",
		Help: "阻塞式可用人数查询超时次数",
	},
)

// PollDuration 阻塞式查询耗时（秒）
var PollDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "lense_poll_duration_seconds",
		Help:    "阻塞式可用人数查询耗时（秒）",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
	},
)

// JobsPostedTotal 已发布的 Job 数
var JobsPostedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "lense_jobs_posted_total",
		Help: "已发布的 Job 数",
	},
)

// HireRequestsTotal 招募子系统请求数
var HireRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lense_hire_requests_total",
		Help: "招募子系统请求数",
	},
	[]string{"op", "status"}, // op: num_available | hire; status: ok | error | timeout
)

// LabelsRecordedTotal 写入台账的标注数
var LabelsRecordedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lense_labels_recorded_total",
		Help: "写入台账的标注数",
	},
	[]string{"outcome"}, // answer | failure
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
