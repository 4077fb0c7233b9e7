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
	"math"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryan2x/lense/internal/hiring"
	"github.com/ryan2x/lense/internal/humanservertest"
	"github.com/ryan2x/lense/internal/humansource"
	"github.com/ryan2x/lense/internal/labelstore"
	"github.com/ryan2x/lense/internal/onlyonce"
	"github.com/ryan2x/lense/internal/wire"
	"github.com/ryan2x/lense/pkg/config"
)

func newTestSource(t *testing.T, opts ...Option) (*HumanSource, *humanservertest.Server) {
	t.Helper()
	srv := humanservertest.New(t)
	humans, err := humansource.Dial(context.Background(), srv.Addr(), humansource.WithPollTimeout(200*time.Millisecond))
	require.NoError(t, err)
	s := New(humans, onlyonce.NewMemory(), labelstore.NewStoreMem(), opts...)
	t.Cleanup(func() { _ = s.Close() })
	srv.WaitConn()
	return s, srv
}

func waitHandle(t *testing.T, ch <-chan *HumanHandle) *HumanHandle {
	t.Helper()
	select {
	case h := <-ch:
		return h
	case <-time.After(2 * time.Second):
		t.Fatal("no human accepted the job")
	}
	return nil
}

func TestMakeJobPosting_QueryRecordsLabel(t *testing.T) {
	ctx := context.Background()
	s, srv := newTestSource(t)

	ready := make(chan *HumanHandle, 1)
	require.NoError(t, s.MakeJobPosting(ctx, "doc-1", "", func(h *HumanHandle) { ready <- h }))

	post := srv.NextRequest()
	assert.Equal(t, wire.JobPosting, post.Type)
	assert.Equal(t, DefaultPayload, post.Payload)
	assert.EqualValues(t, 0, post.OnlyOnceID)

	srv.SendResponse(wire.Response{Type: wire.HumanArrival, JobID: post.JobID})
	h := waitHandle(t, ready)
	assert.Equal(t, "doc-1", h.Entity())
	assert.Equal(t, int(post.JobID), h.JobID())

	answers := make(chan int, 1)
	qid, err := h.MakeQuery(ctx, `{"variable":0}`, func(v int) { answers <- v }, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, qid)

	q := srv.NextRequest()
	assert.Equal(t, wire.Query, q.Type)
	srv.SendResponse(wire.Response{Type: wire.QueryAnswer, JobID: q.JobID, QueryID: q.QueryID, Answer: 3})

	select {
	case v := <-answers:
		assert.Equal(t, 3, v)
	case <-time.After(2 * time.Second):
		t.Fatal("answer not delivered")
	}
	var labels []*labelstore.Label
	require.Eventually(t, func() bool {
		labels, _ = s.Labels().ListByEntity(ctx, "doc-1", 0)
		return len(labels) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, labelstore.OutcomeAnswer, labels[0].Outcome)
	assert.Equal(t, 3, labels[0].Answer)
	assert.Equal(t, s.Client().ID(), labels[0].ClientID)
}

func TestMakeQuery_FailureRecorded(t *testing.T) {
	ctx := context.Background()
	s, srv := newTestSource(t)
	ready := make(chan *HumanHandle, 1)
	require.NoError(t, s.MakeJobPosting(ctx, "doc-2", "{}", func(h *HumanHandle) { ready <- h }))
	srv.NextRequest()
	srv.SendResponse(wire.Response{Type: wire.HumanArrival, JobID: 0})
	h := waitHandle(t, ready)

	failed := make(chan struct{}, 1)
	_, err := h.MakeQuery(ctx, "", nil, func() { failed <- struct{}{} })
	require.NoError(t, err)
	srv.NextRequest()
	srv.SendResponse(wire.Response{Type: wire.QueryFailure, JobID: 0, QueryID: 0})
	<-failed

	require.Eventually(t, func() bool {
		st, err := s.Stats(ctx)
		return err == nil && st.Labels == 1 && st.Entities == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMakeJobPosting_OnlyOnceIDPerEntity(t *testing.T) {
	ctx := context.Background()
	s, srv := newTestSource(t)
	for _, e := range []string{"a", "a", "b"} {
		require.NoError(t, s.MakeJobPosting(ctx, e, "{}", nil))
	}
	assert.EqualValues(t, 0, srv.NextRequest().OnlyOnceID)
	assert.EqualValues(t, 0, srv.NextRequest().OnlyOnceID)
	assert.EqualValues(t, 1, srv.NextRequest().OnlyOnceID)
}

func TestHumanHandle_Disconnected(t *testing.T) {
	ctx := context.Background()
	s, srv := newTestSource(t)
	ready := make(chan *HumanHandle, 1)
	require.NoError(t, s.MakeJobPosting(ctx, "doc", "{}", func(h *HumanHandle) { ready <- h }))
	srv.SendResponse(wire.Response{Type: wire.HumanArrival, JobID: 0})
	h := waitHandle(t, ready)

	srv.SendResponse(wire.Response{Type: wire.HumanExit, JobID: 0})
	select {
	case <-h.Disconnected():
	case <-time.After(2 * time.Second):
		t.Fatal("handle not disconnected")
	}
	require.NoError(t, h.Release())
	h.Forget()
}

func TestAvailableHumans(t *testing.T) {
	s, srv := newTestSource(t)
	srv.Handle(func(req wire.Request) []wire.Response {
		return []wire.Response{wire.NewAvailabilityAnswer(req.OnlyOnceID, 5)}
	})
	assert.Equal(t, 5, s.AvailableHumans(context.Background(), "doc"))
}

func TestAvailableHumans_Timeout(t *testing.T) {
	s, _ := newTestSource(t)
	assert.Equal(t, humansource.NoAnswer, s.AvailableHumans(context.Background(), "doc"))
}

func TestHiring_DisabledAndEnabled(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSource(t)
	_, err := s.NumHireable(ctx)
	assert.ErrorIs(t, err, ErrHiringDisabled)
	_, err = s.Hire(ctx, 1)
	assert.ErrorIs(t, err, ErrHiringDisabled)

	hsrv := humanservertest.New(t)
	hc, err := hiring.Dial(ctx, hsrv.Addr())
	require.NoError(t, err)
	s2, _ := newTestSource(t, WithHiring(hc))
	assert.True(t, s2.HiringEnabled())
	go func() {
		req := hsrv.NextHireRequest()
		hsrv.SendHireResponse(wire.HireResponse{Type: req.Type, RequestID: req.RequestID, PostURL: "https://workers.example/p"})
	}()
	url, err := s2.Hire(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "https://workers.example/p", url)
}

func TestErrorModel(t *testing.T) {
	s, _ := newTestSource(t)
	require.NoError(t, s.SetHumanCorrectnessProb(0.9))
	assert.InDelta(t, math.Log(0.9), s.ErrorModel().Agreement, 1e-12)

	h := newHumanHandle(s, "doc", 0)
	tables := h.ErrorModel([]int{2, 1, 40, 3})
	require.Len(t, tables, 4)
	assert.Len(t, tables[0], 2)
	assert.Nil(t, tables[1])
	assert.Nil(t, tables[2])
	assert.InDelta(t, math.Log(0.1/2), tables[3][0][1], 1e-12)
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, p, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return host, port
}

func TestOpen_HiringUnavailableDegrades(t *testing.T) {
	srv := humanservertest.New(t)
	host, port := splitAddr(t, srv.Addr())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, deadPort := splitAddr(t, ln.Addr().String())
	require.NoError(t, ln.Close())

	cfg := config.Default()
	cfg.HumanSource.Host = host
	cfg.HumanSource.Port = port
	cfg.Hiring.Enable = true
	cfg.Hiring.Port = deadPort
	cfg.Simulation.HumanCorrectnessProb = 0.8

	s, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.False(t, s.HiringEnabled())
	assert.Equal(t, 0.8, s.ErrorModel().CorrectnessProb)

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("client not stopped")
	}
}

func TestOpen_HumanSourceUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, deadPort := splitAddr(t, ln.Addr().String())
	require.NoError(t, ln.Close())

	cfg := config.Default()
	cfg.HumanSource.Host = "127.0.0.1"
	cfg.HumanSource.Port = deadPort
	_, err = Open(context.Background(), cfg, nil)
	assert.Error(t, err)
}

// slowStore 每次写入都要等待 delay 的台账
type slowStore struct {
	labelstore.Store
	delay time.Duration
}

func (s *slowStore) Record(ctx context.Context, l *labelstore.Label) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Store.Record(ctx, l)
}

func TestMakeQuery_SlowLedgerDoesNotStallDispatch(t *testing.T) {
	ctx := context.Background()
	srv := humanservertest.New(t)
	srv.Handle(func(req wire.Request) []wire.Response {
		switch req.Type {
		case wire.JobPosting:
			return []wire.Response{{Type: wire.HumanArrival, JobID: req.JobID}}
		case wire.Query:
			return []wire.Response{{Type: wire.QueryAnswer, JobID: req.JobID, QueryID: req.QueryID, Answer: 2}}
		case wire.NumAvailableQuery:
			return []wire.Response{wire.NewAvailabilityAnswer(req.OnlyOnceID, 4)}
		}
		return nil
	})
	humans, err := humansource.Dial(ctx, srv.Addr(), humansource.WithPollTimeout(500*time.Millisecond))
	require.NoError(t, err)
	inner := labelstore.NewStoreMem()
	s := New(humans, onlyonce.NewMemory(), &slowStore{Store: inner, delay: 1500 * time.Millisecond})
	defer s.Close()

	ready := make(chan *HumanHandle, 1)
	require.NoError(t, s.MakeJobPosting(ctx, "doc", "{}", func(h *HumanHandle) { ready <- h }))
	h := waitHandle(t, ready)

	answers := make(chan int, 1)
	_, err = h.MakeQuery(ctx, "{}", func(v int) { answers <- v }, nil)
	require.NoError(t, err)
	select {
	case v := <-answers:
		assert.Equal(t, 2, v)
	case <-time.After(time.Second):
		t.Fatal("answer callback waited for the ledger write")
	}

	start := time.Now()
	assert.Equal(t, 4, s.AvailableHumans(ctx, "doc"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// Close 写完排队中的记录
	require.NoError(t, s.Close())
	n, err := inner.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMakeQuery_LedgerWriteBounded(t *testing.T) {
	ctx := context.Background()
	srv := humanservertest.New(t)
	humans, err := humansource.Dial(ctx, srv.Addr())
	require.NoError(t, err)
	inner := labelstore.NewStoreMem()
	s := New(humans, onlyonce.NewMemory(), &slowStore{Store: inner, delay: time.Hour},
		WithRecordTimeout(50*time.Millisecond))
	srv.WaitConn()

	ready := make(chan *HumanHandle, 1)
	require.NoError(t, s.MakeJobPosting(ctx, "doc", "{}", func(h *HumanHandle) { ready <- h }))
	srv.NextRequest()
	srv.SendResponse(wire.Response{Type: wire.HumanArrival, JobID: 0})
	h := waitHandle(t, ready)

	failed := make(chan struct{}, 1)
	_, err = h.MakeQuery(ctx, "{}", nil, func() { failed <- struct{}{} })
	require.NoError(t, err)
	srv.NextRequest()
	srv.SendResponse(wire.Response{Type: wire.QueryFailure, JobID: 0, QueryID: 0})
	<-failed

	start := time.Now()
	require.NoError(t, s.Close())
	assert.Less(t, time.Since(start), time.Second)
	n, err := inner.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
