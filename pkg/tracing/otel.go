// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "lense"

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartJobSpan 开始 job posting span
func StartJobSpan(ctx context.Context, entity string, onlyOnceID int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "human.job.post",
		trace.WithAttributes(
			attribute.String("entity", entity),
			attribute.Int("only_once.id", onlyOnceID),
		),
	)
}

// StartQuerySpan 开始 query span；span 在回调触发时结束
func StartQuerySpan(ctx context.Context, jobID int, queryID int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "human.query",
		trace.WithAttributes(
			attribute.Int("job.id", jobID),
			attribute.Int("query.id", queryID),
		),
	)
}

// StartPollSpan 开始可用人数查询 span
func StartPollSpan(ctx context.Context, onlyOnceID int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "human.availability.poll",
		trace.WithAttributes(
			attribute.Int("only_once.id", onlyOnceID),
		),
	)
}

// StartHireSpan 开始招募请求 span
func StartHireSpan(ctx context.Context, op string, requestID int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "hiring."+op,
		trace.WithAttributes(
			attribute.Int("request.id", requestID),
		),
	)
}
