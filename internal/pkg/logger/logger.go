// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// base 是进程级别的根 logger，Init 之前使用 JSON 输出到 stderr
var base = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Init 设置服务名、日志级别与输出格式。pretty=true 时使用控制台格式（开发环境）。
func Init(serviceName, level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	base = zerolog.New(out).With().Timestamp().Str("service", serviceName).Logger()
}

// L 返回根 logger
func L() *zerolog.Logger {
	return &base
}

// Ctx 返回带有当前链路信息 (trace_id / span_id) 的 logger
func Ctx(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &base
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return &base
	}
	l := base.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &l
}
