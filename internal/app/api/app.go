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

package api

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"github.com/ryan2x/lense/internal/api/http"
	"github.com/ryan2x/lense/internal/api/http/middleware"
	"github.com/ryan2x/lense/internal/app"
	"github.com/ryan2x/lense/internal/source"
	"github.com/ryan2x/lense/pkg/tracing"
)

// tracerShutdown 优雅关闭时关闭 OpenTelemetry provider
type tracerShutdown interface {
	Shutdown(ctx context.Context) error
}

// App 状态服务：持有人工来源连接，装配 HTTP Router、Handler、Middleware
type App struct {
	config   *app.Bootstrap
	source   *source.HumanSource
	router   *http.Router
	hertz    *server.Hertz
	tracerTP tracerShutdown
}

// NewApp 连接人工服务并创建应用（由 lense serve 调用）
func NewApp(ctx context.Context, bootstrap *app.Bootstrap) (*App, error) {
	src, err := source.Open(ctx, bootstrap.Config, bootstrap.Logger)
	if err != nil {
		return nil, fmt.Errorf("连接人工服务失败: %w", err)
	}
	return NewAppWithSource(bootstrap, src), nil
}

// NewAppWithSource 使用已打开的人工来源创建应用
func NewAppWithSource(bootstrap *app.Bootstrap, src *source.HumanSource) *App {
	handler := http.NewHandler(src)
	router := http.NewRouter(handler, middleware.NewMiddleware(bootstrap.Logger.With("component", "http")))
	router.SetMetricsEnabled(bootstrap.Config.Monitoring.Prometheus.Enable)
	return &App{config: bootstrap, source: src, router: router}
}

// Source 人工来源
func (a *App) Source() *source.HumanSource {
	return a.source
}

// Build 配置 hertz 日志与可选链路追踪，创建 Hertz 实例
func (a *App) Build(addr string) (*server.Hertz, error) {
	cfg := a.config.Config
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(a.config.Logger.Writer()),
		hertzslog.WithLevel(a.config.Logger.LevelVar()),
	))

	tr := cfg.Monitoring.Tracing
	endpoint := tr.ExportEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if !tr.Enable || endpoint == "" {
		a.hertz = a.router.Build(addr)
		return a.hertz, nil
	}

	serviceName := tr.ServiceName
	if serviceName == "" {
		serviceName = "lense"
	}
	tp, err := tracing.InitTracer(tracing.OTelConfig{
		ServiceName:    serviceName,
		ExportEndpoint: endpoint,
		Insecure:       tr.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化链路追踪失败: %w", err)
	}
	a.tracerTP = tp
	tracerOpt, tcfg := hertztracing.NewServerTracer()
	a.hertz = a.router.Build(addr, tracerOpt)
	a.hertz.Use(hertztracing.ServerMiddleware(tcfg))
	a.config.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", endpoint)
	return a.hertz, nil
}

// Run 启动 HTTP 服务，阻塞直到 Shutdown
func (a *App) Run(addr string) error {
	a.config.Logger.Info("status API starting", "addr", addr, "client_id", a.source.Client().ID())
	if _, err := a.Build(addr); err != nil {
		return err
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	if a.hertz != nil {
		firstErr = a.hertz.Shutdown(ctx)
	}
	if err := a.source.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.tracerTP != nil {
		if err := a.tracerTP.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
