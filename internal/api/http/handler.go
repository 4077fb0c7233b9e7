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
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/ryan2x/lense/internal/humansource"
	"github.com/ryan2x/lense/internal/labelstore"
	"github.com/ryan2x/lense/internal/source"
	"github.com/ryan2x/lense/pkg/metrics"
)

// HumanSource Handler 依赖的人工来源能力
type HumanSource interface {
	Stats(ctx context.Context) (source.Stats, error)
	AvailableHumans(ctx context.Context, entity string) int
	Labels() labelstore.Store
	Done() <-chan struct{}
}

// Handler HTTP 处理器
type Handler struct {
	source  HumanSource
	started time.Time
}

// NewHandler 创建新的 HTTP 处理器；source 可为 nil（仅健康检查与指标可用）
func NewHandler(src HumanSource) *Handler {
	return &Handler{source: src, started: time.Now()}
}

func (h *Handler) connected() bool {
	if h.source == nil {
		return false
	}
	select {
	case <-h.source.Done():
		return false
	default:
		return true
	}
}

// HealthCheck 健康检查；与人工服务的连接断开后返回 503
// GET /api/health
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	status, code := "ok", consts.StatusOK
	if h.source != nil && !h.connected() {
		status, code = "disconnected", consts.StatusServiceUnavailable
	}
	c.JSON(code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"service":   "lense",
	})
}

// Status 连接与登记表快照
// GET /api/status
func (h *Handler) Status(ctx context.Context, c *app.RequestContext) {
	if h.source == nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "human source not configured"})
		return
	}
	st, err := h.source.Stats(ctx)
	if err != nil {
		hlog.CtxErrorf(ctx, "collect status failed: %v", err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]any{
		"source":         st,
		"connected":      h.connected(),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// Availability 阻塞查询可接该实体的空闲 worker 数
// GET /api/availability/:entity
func (h *Handler) Availability(ctx context.Context, c *app.RequestContext) {
	entity := c.Param("entity")
	if entity == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "entity is required"})
		return
	}
	if h.source == nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "human source not configured"})
		return
	}
	n := h.source.AvailableHumans(ctx, entity)
	c.JSON(consts.StatusOK, map[string]any{
		"entity":    entity,
		"available": max(n, 0),
		"timed_out": n == humansource.NoAnswer,
	})
}

// Labels 实体的标注记录
// GET /api/labels/:entity?limit=N
func (h *Handler) Labels(ctx context.Context, c *app.RequestContext) {
	entity := c.Param("entity")
	if h.source == nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "human source not configured"})
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	list, err := h.source.Labels().ListByEntity(ctx, entity, limit)
	if err != nil {
		hlog.CtxErrorf(ctx, "list labels for %s failed: %v", entity, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if list == nil {
		list = []*labelstore.Label{}
	}
	c.JSON(consts.StatusOK, map[string]any{"entity": entity, "labels": list})
}

// Metrics Prometheus 文本格式
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		hlog.CtxErrorf(ctx, "write metrics failed: %v", err)
		c.String(consts.StatusInternalServerError, "%s", err.Error())
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
