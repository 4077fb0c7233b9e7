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

// Package humanservertest 测试用的远端人工服务桩：监听本地端口，接受一条连接，
// 按测试脚本读取请求、推送响应。也可通过 Handle 设置自动应答。
package humanservertest

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ryan2x/lense/internal/transport"
	"github.com/ryan2x/lense/internal/wire"
)

// DefaultWait 等待请求/连接的默认上限
const DefaultWait = 2 * time.Second

// Handler 自动应答：对每个请求返回要推送的响应
type Handler func(req wire.Request) []wire.Response

// Server 单连接桩服务
type Server struct {
	t      testing.TB
	ln     net.Listener
	ready  chan struct{}
	frames chan []byte

	mu      sync.Mutex
	conn    *transport.Conn
	handler Handler

	closeOnce sync.Once
}

// New 在 127.0.0.1 随机端口启动；测试结束时自动关闭
func New(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &Server{
		t:      t,
		ln:     ln,
		ready:  make(chan struct{}),
		frames: make(chan []byte, 256),
	}
	go s.accept()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) accept() {
	c, err := s.ln.Accept()
	if err != nil {
		return
	}
	conn := transport.New(c)
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	close(s.ready)
	for {
		frame, err := conn.Receive()
		if err != nil {
			close(s.frames)
			return
		}
		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h == nil {
			s.frames <- frame
			continue
		}
		req, err := wire.UnmarshalRequest(frame)
		if err != nil {
			continue
		}
		for _, resp := range h(req) {
			_ = conn.Send(resp.Marshal())
		}
	}
}

// Addr 监听地址 host:port
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Handle 设置自动应答；设置后收到的请求不再进入 NextRequest 队列
func (s *Server) Handle(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// WaitConn 等待客户端连上
func (s *Server) WaitConn() *transport.Conn {
	s.t.Helper()
	select {
	case <-s.ready:
	case <-time.After(DefaultWait):
		s.t.Fatalf("humanservertest: no client connected within %s", DefaultWait)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// NextFrame 取下一帧原始字节；超时或连接已断返回 nil, false
func (s *Server) NextFrame(wait time.Duration) ([]byte, bool) {
	select {
	case f, ok := <-s.frames:
		return f, ok
	case <-time.After(wait):
		return nil, false
	}
}

// NextRequest 取下一条请求，超时则测试失败
func (s *Server) NextRequest() wire.Request {
	s.t.Helper()
	f, ok := s.NextFrame(DefaultWait)
	require.True(s.t, ok, "humanservertest: no request within %s", DefaultWait)
	req, err := wire.UnmarshalRequest(f)
	require.NoError(s.t, err)
	return req
}

// NextHireRequest 取下一条招募请求
func (s *Server) NextHireRequest() wire.HireRequest {
	s.t.Helper()
	f, ok := s.NextFrame(DefaultWait)
	require.True(s.t, ok, "humanservertest: no hire request within %s", DefaultWait)
	req, err := wire.UnmarshalHireRequest(f)
	require.NoError(s.t, err)
	return req
}

// ExpectNoRequest 断言 wait 内没有新请求
func (s *Server) ExpectNoRequest(wait time.Duration) {
	s.t.Helper()
	f, ok := s.NextFrame(wait)
	require.False(s.t, ok, "humanservertest: unexpected frame %x", f)
}

// Send 推送原始帧
func (s *Server) Send(frame []byte) {
	s.t.Helper()
	require.NoError(s.t, s.WaitConn().Send(frame))
}

// SendResponse 推送一条响应
func (s *Server) SendResponse(r wire.Response) {
	s.t.Helper()
	s.Send(r.Marshal())
}

// SendHireResponse 推送一条招募响应
func (s *Server) SendHireResponse(r wire.HireResponse) {
	s.t.Helper()
	s.Send(r.Marshal())
}

// DropConn 断开当前连接（模拟远端关闭），监听保持
func (s *Server) DropConn() {
	s.t.Helper()
	_ = s.WaitConn().Close()
}

// Close 关闭监听与连接；可重复调用
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		_ = s.ln.Close()
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.mu.Unlock()
	})
}
