// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	base.Store(&l)
}

// Init 初始化全局日志器。pretty 为 true 时输出适合本地调试的彩色控制台格式。
func Init(service, level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
	}

	l := zerolog.New(out).Level(lvl).With().Timestamp().Str("service", service).Logger()
	base.Store(&l)
}

// SetOutput 替换日志输出目标，主要给测试用。
func SetOutput(w io.Writer) {
	l := base.Load().Output(w)
	base.Store(&l)
}

// L 返回不带请求上下文的全局日志器。
func L() *zerolog.Logger {
	return base.Load()
}

// Ctx 返回携带 trace_id / span_id 的日志器，便于在 Jaeger 和日志之间互相跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := *base.Load()
	if ctx == nil {
		return &l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
	}
	return &l
}
