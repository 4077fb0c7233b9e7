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
	"strings"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"

	"github.com/ryan2x/lense/internal/api/http/middleware"
	"github.com/ryan2x/lense/pkg/metrics"
)

func buildRouterForTest(metricsEnabled bool) *server.Hertz {
	r := NewRouter(NewHandler(newFakeSource()), middleware.NewMiddleware(nil))
	r.SetMetricsEnabled(metricsEnabled)
	return r.Build(":0")
}

func TestRouter_Routes(t *testing.T) {
	s := buildRouterForTest(true)
	for _, path := range []string{"/api/health", "/api/status", "/api/availability/e", "/api/labels/e"} {
		w := ut.PerformRequest(s.Engine, "GET", path, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
		assert.Equal(t, 200, w.Result().StatusCode(), path)
	}
}

func TestRouter_Metrics(t *testing.T) {
	metrics.RequestsTotal.WithLabelValues("job_posting").Inc()
	s := buildRouterForTest(true)
	w := ut.PerformRequest(s.Engine, "GET", "/metrics", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	assert.Equal(t, 200, resp.StatusCode())
	assert.True(t, strings.HasPrefix(string(resp.Header.ContentType()), "text/plain"))
	assert.Contains(t, string(resp.Body()), "lense_")
}

func TestRouter_MetricsDisabled(t *testing.T) {
	s := buildRouterForTest(false)
	w := ut.PerformRequest(s.Engine, "GET", "/metrics", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	assert.Equal(t, 404, w.Result().StatusCode())
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := buildRouterForTest(true)
	w := ut.PerformRequest(s.Engine, "OPTIONS", "/api/status", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	assert.Equal(t, 204, resp.StatusCode())
	assert.Equal(t, "*", string(resp.Header.Peek("Access-Control-Allow-Origin")))
}
