package middleware

import (
	"fmt"
	"slices"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/docqa/pkg/infra/tracing"
)

// Tracing 为每个请求开启服务端 span，并沿用请求头中的 W3C trace 上下文。
// 未注册 TracerProvider 时 span 为 no-op。
func Tracing(skipPaths ...string) gin.HandlerFunc {
	tracer := otel.Tracer(tracing.InstrumentationName)
	return func(c *gin.Context) {
		if slices.Contains(skipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Request.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				tracing.String("http.request.method", c.Request.Method),
				tracing.String("http.route", route),
			),
		)
		defer span.End()

		if rid := GetRequestID(c); rid != "" {
			span.SetAttributes(tracing.String("http.request_id", rid))
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(tracing.Int("http.response.status_code", status))
		if uid := GetUserID(c); uid != "" {
			span.SetAttributes(tracing.String("enduser.id", uid))
		}
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}
