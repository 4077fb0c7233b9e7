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

// Package wire 人工服务协议的消息编解码。消息为 protobuf 线格式（无生成代码，直接用 protowire），
// 外层由 transport 按 varint 长度前缀分帧。
//
//	APIRequest  { 1 type, 2 jobID, 3 queryID, 4 onlyOnceID, 5 JSON }
//	APIResponse { 1 type, 2 jobID, 3 queryID, 4 queryAnswer }
//
// NumAvailableQuery 响应没有独立的关联 id：onlyOnceID 放在 jobID 字段，人数放在 queryAnswer 字段。
package wire

import (
	"errors"
	"fmt"
)

// ErrMalformed 消息体无法解析
var ErrMalformed = errors.New("wire: malformed message")

// RequestType 请求类型
type RequestType int32

const (
	JobPosting RequestType = iota
	Query
	JobRelease
	NumAvailableQuery
)

func (t RequestType) String() string {
	switch t {
	case JobPosting:
		return "job_posting"
	case Query:
		return "query"
	case JobRelease:
		return "job_release"
	case NumAvailableQuery:
		return "num_available"
	}
	return fmt.Sprintf("request_type(%d)", int32(t))
}

// ResponseType 响应类型
type ResponseType int32

const (
	HumanArrival ResponseType = iota
	HumanExit
	QueryAnswer
	QueryFailure
	NumAvailableAnswer
)

func (t ResponseType) String() string {
	switch t {
	case HumanArrival:
		return "human_arrival"
	case HumanExit:
		return "human_exit"
	case QueryAnswer:
		return "query_answer"
	case QueryFailure:
		return "query_failure"
	case NumAvailableAnswer:
		return "num_available"
	}
	return fmt.Sprintf("response_type(%d)", int32(t))
}

// Request 客户端 → 服务端
type Request struct {
	Type       RequestType
	JobID      int32
	QueryID    int32
	OnlyOnceID int32
	Payload    string // 原样转发给 worker 浏览器的 JSON
}

// Response 服务端 → 客户端
type Response struct {
	Type    ResponseType
	JobID   int32
	QueryID int32
	Answer  int32
}

// OnlyOnceID NumAvailableAnswer 的关联键
func (r Response) OnlyOnceID() int32 { return r.JobID }

// Count NumAvailableAnswer 携带的可用人数
func (r Response) Count() int32 { return r.Answer }

// NewPostJob 发布 Job
func NewPostJob(jobID, onlyOnceID int32, payload string) Request {
	return Request{Type: JobPosting, JobID: jobID, OnlyOnceID: onlyOnceID, Payload: payload}
}

// NewQuery 对已发布的 Job 追加一次提问
func NewQuery(jobID, queryID int32, payload string) Request {
	return Request{Type: Query, JobID: jobID, QueryID: queryID, Payload: payload}
}

// NewReleaseJob 结束 Job，释放正在作答的 worker
func NewReleaseJob(jobID int32) Request {
	return Request{Type: JobRelease, JobID: jobID}
}

// NewPollAvailability 查询可接该 onlyOnceID 的空闲 worker 数；jobID 固定为 0
func NewPollAvailability(onlyOnceID int32) Request {
	return Request{Type: NumAvailableQuery, JobID: 0, OnlyOnceID: onlyOnceID}
}

// NewAvailabilityAnswer 构造可用人数应答（测试桩与模拟服务端用）
func NewAvailabilityAnswer(onlyOnceID, count int32) Response {
	return Response{Type: NumAvailableAnswer, JobID: onlyOnceID, Answer: count}
}
