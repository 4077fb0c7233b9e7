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

// Package transport 单条长连接上的分帧收发：每帧为 varint 长度前缀 + 消息体（protobuf delimited 格式）。
package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/protobuf/encoding/protowire"

	lerrors "github.com/ryan2x/lense/pkg/errors"
)

// DefaultMaxFrameBytes 单帧默认上限
const DefaultMaxFrameBytes = 4 << 20

var (
	// ErrFrameTooLarge 长度前缀超过上限；此后流已失去帧边界，只能关闭
	ErrFrameTooLarge = errors.New("transport: frame too large")
	// ErrTruncatedFrame 对端在一帧中途断开，帧内容不完整
	ErrTruncatedFrame = errors.New("transport: truncated frame")
	// ErrClosed 本端已关闭后继续发送
	ErrClosed = fmt.Errorf("transport: %w", lerrors.ErrClosed)
)

// Option Conn 可选配置
type Option func(*Conn)

// WithMaxFrameBytes 设置单帧上限，<=0 忽略
func WithMaxFrameBytes(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.maxFrame = n
		}
	}
}

// Conn 分帧连接。Send 可并发调用（发送锁保证帧不交错）；Receive 仅供单个接收循环调用。
type Conn struct {
	conn     net.Conn
	r        *bufio.Reader
	w        *bufio.Writer
	sendMu   sync.Mutex
	maxFrame int

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New 包装已建立的连接
func New(conn net.Conn, opts ...Option) *Conn {
	c := &Conn{
		conn:     conn,
		r:        bufio.NewReader(conn),
		w:        bufio.NewWriter(conn),
		maxFrame: DefaultMaxFrameBytes,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Dial 建立 TCP 连接
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, lerrors.Wrapf(err, "dial %s", addr)
	}
	return New(conn, opts...), nil
}

// Send 写出一帧并 flush
func (c *Conn) Send(frame []byte) error {
	if len(frame) > c.maxFrame {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(frame), c.maxFrame)
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	var hdr [binary.MaxVarintLen64]byte
	n := len(protowire.AppendVarint(hdr[:0], uint64(len(frame))))
	if _, err := c.w.Write(hdr[:n]); err != nil {
		return c.sendErr(err)
	}
	if _, err := c.w.Write(frame); err != nil {
		return c.sendErr(err)
	}
	if err := c.w.Flush(); err != nil {
		return c.sendErr(err)
	}
	return nil
}

func (c *Conn) sendErr(err error) error {
	if c.closed.Load() || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}

// Receive 阻塞读取下一帧。对端关闭或本端 Close 均返回 io.EOF；其余错误原样返回。
func (c *Conn) Receive() ([]byte, error) {
	size, err := binary.ReadUvarint(c.r)
	if err != nil {
		return nil, c.recvErr(err)
	}
	if size > uint64(c.maxFrame) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, c.maxFrame)
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(c.r, frame); err != nil {
		return nil, c.recvErr(err)
	}
	return frame, nil
}

// recvErr 本端关闭或帧边界处的 EOF 视为流结束；帧中途的 EOF 是传输故障
func (c *Conn) recvErr(err error) error {
	switch {
	case c.closed.Load() || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", ErrTruncatedFrame, err)
	}
	return err
}

// Close 关闭连接；可重复调用，之后的调用返回第一次的结果
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Closed 是否已调用 Close
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// RemoteAddr 对端地址
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
