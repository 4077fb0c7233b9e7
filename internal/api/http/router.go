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
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"github.com/ryan2x/lense/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler        *Handler
	middleware     *middleware.Middleware
	metricsEnabled bool
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{
		handler:        handler,
		middleware:     mw,
		metricsEnabled: true,
	}
}

// SetMetricsEnabled 是否暴露 /metrics
func (r *Router) SetMetricsEnabled(enabled bool) {
	r.metricsEnabled = enabled
}

// Build 创建 Hertz 实例并注册路由；opts 追加在监听地址之后（如 tracer）
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	all := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(all...)
	h.Use(r.middleware.AccessLog(), r.middleware.CORS())

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)
	api.GET("/status", r.handler.Status)
	api.GET("/availability/:entity", r.handler.Availability)
	api.GET("/labels/:entity", r.handler.Labels)

	if r.metricsEnabled {
		h.GET("/metrics", r.handler.Metrics)
	}
	return h
}
