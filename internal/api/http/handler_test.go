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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryan2x/lense/internal/humansource"
	"github.com/ryan2x/lense/internal/labelstore"
	"github.com/ryan2x/lense/internal/source"
)

type fakeSource struct {
	stats     source.Stats
	statsErr  error
	available int
	labels    labelstore.Store
	done      chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{labels: labelstore.NewStoreMem(), done: make(chan struct{})}
}

func (f *fakeSource) Stats(ctx context.Context) (source.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeSource) AvailableHumans(ctx context.Context, entity string) int {
	return f.available
}

func (f *fakeSource) Labels() labelstore.Store {
	return f.labels
}

func (f *fakeSource) Done() <-chan struct{} {
	return f.done
}

func perform(t *testing.T, h *server.Hertz, path string) (int, map[string]any) {
	t.Helper()
	w := ut.PerformRequest(h.Engine, "GET", path, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body(), &body), "body: %s", resp.Body())
	return resp.StatusCode(), body
}

func TestHealthCheck(t *testing.T) {
	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(nil)
	h.GET("/api/health", func(ctx context.Context, c *app.RequestContext) {
		handler.HealthCheck(ctx, c)
	})
	code, body := perform(t, h, "/api/health")
	assert.Equal(t, 200, code)
	assert.Equal(t, "ok", body["status"])
}

func TestHealthCheck_Disconnected(t *testing.T) {
	src := newFakeSource()
	close(src.done)
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/health", NewHandler(src).HealthCheck)
	code, body := perform(t, h, "/api/health")
	assert.Equal(t, 503, code)
	assert.Equal(t, "disconnected", body["status"])
}

func TestStatus(t *testing.T) {
	src := newFakeSource()
	src.stats = source.Stats{Human: humansource.Stats{ID: "c1", Jobs: 3}, Entities: 2, Labels: 5}
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/status", NewHandler(src).Status)

	code, body := perform(t, h, "/api/status")
	require.Equal(t, 200, code)
	assert.Equal(t, true, body["connected"])
	st, ok := body["source"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, st["entities"])
	assert.EqualValues(t, 5, st["labels"])
}

func TestStatus_Error(t *testing.T) {
	src := newFakeSource()
	src.statsErr = errors.New("redis down")
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/status", NewHandler(src).Status)
	code, body := perform(t, h, "/api/status")
	assert.Equal(t, 500, code)
	assert.Equal(t, "redis down", body["error"])
}

func TestStatus_NoSource(t *testing.T) {
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/status", NewHandler(nil).Status)
	code, _ := perform(t, h, "/api/status")
	assert.Equal(t, 503, code)
}

func TestAvailability(t *testing.T) {
	src := newFakeSource()
	src.available = 4
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/availability/:entity", NewHandler(src).Availability)

	code, body := perform(t, h, "/api/availability/doc-1")
	require.Equal(t, 200, code)
	assert.Equal(t, "doc-1", body["entity"])
	assert.EqualValues(t, 4, body["available"])
	assert.Equal(t, false, body["timed_out"])

	src.available = humansource.NoAnswer
	code, body = perform(t, h, "/api/availability/doc-1")
	require.Equal(t, 200, code)
	assert.EqualValues(t, 0, body["available"])
	assert.Equal(t, true, body["timed_out"])
}

func TestLabels(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	for i := 0; i < 3; i++ {
		require.NoError(t, src.labels.Record(ctx, &labelstore.Label{Entity: "doc", QueryID: i, Outcome: labelstore.OutcomeAnswer, Answer: i}))
	}
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/labels/:entity", NewHandler(src).Labels)

	code, body := perform(t, h, "/api/labels/doc?limit=2")
	require.Equal(t, 200, code)
	list, ok := body["labels"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 2)

	code, body = perform(t, h, "/api/labels/other")
	require.Equal(t, 200, code)
	assert.Equal(t, []any{}, body["labels"])

	code, _ = perform(t, h, "/api/labels/doc?limit=x")
	assert.Equal(t, 400, code)
}
