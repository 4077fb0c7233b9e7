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

// 字段号
const (
	fieldType       protowire.Number = 1
	fieldJobID      protowire.Number = 2
	fieldQueryID    protowire.Number = 3
	fieldOnlyOnceID protowire.Number = 4
	fieldPayload    protowire.Number = 5
	fieldAnswer     protowire.Number = 4
)

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	// int32 按 proto 语义符号扩展为 64 位
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Marshal 编码请求
func (r Request) Marshal() []byte {
	b := make([]byte, 0, 16+len(r.Payload))
	b = appendInt32(b, fieldType, int32(r.Type))
	b = appendInt32(b, fieldJobID, r.JobID)
	if r.Type == Query {
		b = appendInt32(b, fieldQueryID, r.QueryID)
	}
	if r.Type == JobPosting || r.Type == NumAvailableQuery {
		b = appendInt32(b, fieldOnlyOnceID, r.OnlyOnceID)
	}
	if r.Payload != "" {
		b = appendString(b, fieldPayload, r.Payload)
	}
	return b
}

// Marshal 编码响应
func (r Response) Marshal() []byte {
	b := make([]byte, 0, 16)
	b = appendInt32(b, fieldType, int32(r.Type))
	b = appendInt32(b, fieldJobID, r.JobID)
	b = appendInt32(b, fieldQueryID, r.QueryID)
	b = appendInt32(b, fieldAnswer, r.Answer)
	return b
}

// field 单个已解析字段；varint 与 bytes 二选一
type field struct {
	num   protowire.Number
	typ   protowire.Type
	value uint64
	bytes []byte
}

// walk 逐字段遍历 b；未知字段与未知线类型一律跳过
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: tag: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			f.value = v
			n = m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			f.bytes = v
			n = m
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			n = m
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalRequest 解码请求（模拟服务端与测试用）
func UnmarshalRequest(b []byte) (Request, error) {
	var r Request
	err := walk(b, func(f field) error {
		switch {
		case f.num == fieldType && f.typ == protowire.VarintType:
			r.Type = RequestType(int32(f.value))
		case f.num == fieldJobID && f.typ == protowire.VarintType:
			r.JobID = int32(f.value)
		case f.num == fieldQueryID && f.typ == protowire.VarintType:
			r.QueryID = int32(f.value)
		case f.num == fieldOnlyOnceID && f.typ == protowire.VarintType:
			r.OnlyOnceID = int32(f.value)
		case f.num == fieldPayload && f.typ == protowire.BytesType:
			r.Payload = string(f.bytes)
		}
		return nil
	})
	return r, err
}

// UnmarshalResponse 解码响应
func UnmarshalResponse(b []byte) (Response, error) {
	var r Response
	err := walk(b, func(f field) error {
		if f.typ != protowire.VarintType {
			return nil
		}
		switch f.num {
		case fieldType:
			r.Type = ResponseType(int32(f.value))
		case fieldJobID:
			r.JobID = int32(f.value)
		case fieldQueryID:
			r.QueryID = int32(f.value)
		case fieldAnswer:
			r.Answer = int32(f.value)
		}
		return nil
	})
	return r, err
}
