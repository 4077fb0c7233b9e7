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

package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// 招募子系统消息：独立连接，仅按 requestID 关联
//
//	MTurkRequest  { 1 type, 2 requestID, 3 numToHire }
//	MTurkResponse { 1 type, 2 requestID, 3 numWorkers, 4 postURL }

// HireType 招募请求类型
type HireType int32

const (
	HireNumAvailable HireType = iota
	HireWorkers
)

func (t HireType) String() string {
	switch t {
	case HireNumAvailable:
		return "num_available"
	case HireWorkers:
		return "hire"
	}
	return fmt.Sprintf("hire_type(%d)", int32(t))
}

const (
	fieldRequestID  protowire.Number = 2
	fieldNumToHire  protowire.Number = 3
	fieldNumWorkers protowire.Number = 3
	fieldPostURL    protowire.Number = 4
)

// HireRequest 招募请求
type HireRequest struct {
	Type      HireType
	RequestID int32
	NumToHire int32 // 仅 HireWorkers
}

// HireResponse 招募响应
type HireResponse struct {
	Type       HireType
	RequestID  int32
	NumWorkers int32  // HireNumAvailable 的结果
	PostURL    string // HireWorkers 的招募页面
}

// Marshal 编码招募请求
func (r HireRequest) Marshal() []byte {
	b := make([]byte, 0, 12)
	b = appendInt32(b, fieldType, int32(r.Type))
	b = appendInt32(b, fieldRequestID, r.RequestID)
	if r.Type == HireWorkers {
		b = appendInt32(b, fieldNumToHire, r.NumToHire)
	}
	return b
}

// Marshal 编码招募响应
func (r HireResponse) Marshal() []byte {
	b := make([]byte, 0, 16+len(r.PostURL))
	b = appendInt32(b, fieldType, int32(r.Type))
	b = appendInt32(b, fieldRequestID, r.RequestID)
	b = appendInt32(b, fieldNumWorkers, r.NumWorkers)
	if r.PostURL != "" {
		b = appendString(b, fieldPostURL, r.PostURL)
	}
	return b
}

// UnmarshalHireRequest 解码招募请求
func UnmarshalHireRequest(b []byte) (HireRequest, error) {
	var r HireRequest
	err := walk(b, func(f field) error {
		if f.typ != protowire.VarintType {
			return nil
		}
		switch f.num {
		case fieldType:
			r.Type = HireType(int32(f.value))
		case fieldRequestID:
			r.RequestID = int32(f.value)
		case fieldNumToHire:
			r.NumToHire = int32(f.value)
		}
		return nil
	})
	return r, err
}

// UnmarshalHireResponse 解码招募响应
func UnmarshalHireResponse(b []byte) (HireResponse, error) {
	var r HireResponse
	err := walk(b, func(f field) error {
		switch {
		case f.num == fieldType && f.typ == protowire.VarintType:
			r.Type = HireType(int32(f.value))
		case f.num == fieldRequestID && f.typ == protowire.VarintType:
			r.RequestID = int32(f.value)
		case f.num == fieldNumWorkers && f.typ == protowire.VarintType:
			r.NumWorkers = int32(f.value)
		case f.num == fieldPostURL && f.typ == protowire.BytesType:
			r.PostURL = string(f.bytes)
		}
		return nil
	})
	return r, err
}
