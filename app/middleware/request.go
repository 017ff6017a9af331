package middleware

import (
	"time"

	"github.com/beego/beego/v2/server/web/context"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader 请求ID头
const RequestIDHeader = "X-Request-Id"

const requestStartKey = "requestStart"

// RequestID 为请求分配ID并记录开始时间
func RequestID(ctx *context.Context) {
	id := ctx.Input.Header(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	ctx.Input.SetData(RequestIDHeader, id)
	ctx.Input.SetData(requestStartKey, time.Now())
	ctx.Output.Header(RequestIDHeader, id)
}

// AccessLog 请求完成后输出访问日志
func AccessLog(logger *zap.Logger) func(*context.Context) {
	return func(ctx *context.Context) {
		fields := []zap.Field{
			zap.String("method", ctx.Input.Method()),
			zap.String("path", ctx.Input.URL()),
			zap.Int("status", ctx.ResponseWriter.Status),
		}
		if id, ok := ctx.Input.GetData(RequestIDHeader).(string); ok {
			fields = append(fields, zap.String("request_id", id))
		}
		if start, ok := ctx.Input.GetData(requestStartKey).(time.Time); ok {
			fields = append(fields, zap.Duration("elapsed", time.Since(start)))
		}
		logger.Info("request completed", fields...)
	}
}
