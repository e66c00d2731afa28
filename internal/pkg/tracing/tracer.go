// internal/pkg/tracing/tracer.go
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"demandcast/internal/pkg/logger"
)

// Provider 只暴露关停能力，屏蔽 noop 与 SDK 实现的差异
type Provider interface {
	Shutdown(ctx context.Context) error
}

type noopProvider struct{}

func (noopProvider) Shutdown(context.Context) error { return nil }

// InitTracerProvider 初始化并注册全局 TracerProvider。
// jaegerEndpoint 为空时只设置 propagator，span 不会被导出。
func InitTracerProvider(serviceName, jaegerEndpoint string) (Provider, error) {
	// 无论是否导出 span，都需要在服务间传递上下文
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if jaegerEndpoint == "" {
		logger.L().Info().Msgf("Tracing export disabled for service '%s'", serviceName)
		return noopProvider{}, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)

	logger.L().Info().Msgf("Tracing initialized for service '%s' exporting to '%s'", serviceName, jaegerEndpoint)
	return tp, nil
}
